package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TabSwitchCountKey returns the key of a candidate's persisted tab-switch counter.
// It is scoped to one exam attempt so a reload restores the same count.
func (r *CacheKeyStruct) TabSwitchCountKey(examID, userID string) string {
	return fmt.Sprintf("user:%s:exam:%s:tab_switch_count", userID, examID)
}

// ExamDefinitionKey returns the cache key for an exam's full definition
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// RoomTabSwitchKey returns the hash holding server-side tab-switch counts per user
func (r *CacheKeyStruct) RoomTabSwitchKey(examID string) string {
	return fmt.Sprintf("exam:%s:room:tab_switches", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// RateLimitKey returns the counter key of a client's fixed rate-limit window
func (r *CacheKeyStruct) RateLimitKey(scope, clientIP string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, clientIP, window)
}

var CacheKey = NewCacheKeyStruct()

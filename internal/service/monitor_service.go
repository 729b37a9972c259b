package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// MonitorEvent is published on an exam's monitor channel for proctors.
type MonitorEvent struct {
	Type        string                   `json:"type"`
	UserID      string                   `json:"user_id,omitempty"`
	Count       int                      `json:"count,omitempty"`
	Leaderboard []model.LeaderboardEntry `json:"leaderboard,omitempty"`
	Timestamp   int64                    `json:"timestamp"`
}

// MonitorService records room activity and serves the proctor monitor.
// It is the room hub's event sink.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	rdb         *redis.Client
	counterTTL  time.Duration
	log         zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, rdb *redis.Client, counterTTL time.Duration, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		monitorRepo: monitorRepo,
		rdb:         rdb,
		counterTTL:  counterTTL,
		log:         log.With().Str("component", "monitor_service").Logger(),
	}
}

// TabSwitch records the candidate's latest count and queues a proctor event.
func (s *MonitorService) TabSwitch(ctx context.Context, examID, userID string, count int) {
	key := config.CacheKey.RoomTabSwitchKey(examID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, userID, count)
	pipe.Expire(ctx, key, s.counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("exam_id", examID).Msg("Record room tab switch failed")
	}

	s.record(ctx, examID, userID, model.ProctorEventTabSwitch, count)
}

// AutoSubmitted queues the candidate's own breach submission.
func (s *MonitorService) AutoSubmitted(ctx context.Context, examID, userID string) {
	s.record(ctx, examID, userID, model.ProctorEventAutoSubmitted, 0)
}

// ForceSubmitted queues a server-forced submission.
func (s *MonitorService) ForceSubmitted(ctx context.Context, examID, userID string, count int) {
	s.record(ctx, examID, userID, model.ProctorEventForceSubmit, count)
}

// Leaderboard publishes the room's standings to watching proctors.
func (s *MonitorService) Leaderboard(ctx context.Context, examID string, entries []model.LeaderboardEntry) {
	s.publish(ctx, examID, MonitorEvent{Type: "leaderboard", Leaderboard: entries, Timestamp: time.Now().Unix()})
}

// Subscribe opens the exam's monitor channel. The caller must Close it.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}

// ProctorSnapshot holds live tab-switch counts and recorded submissions per candidate.
type ProctorSnapshot struct {
	TabSwitches map[string]int64 // user_id → highest reported count
	Submissions map[string]int64 // user_id → forced/auto submissions
}

// GetProctorSnapshot fetches live and persisted counts concurrently.
func (s *MonitorService) GetProctorSnapshot(ctx context.Context, examID uuid.UUID) (*ProctorSnapshot, error) {
	snapshot := &ProctorSnapshot{
		TabSwitches: make(map[string]int64),
		Submissions: make(map[string]int64),
	}

	var (
		tabs        map[string]int64
		submissions map[string]int64
		tabsErr     error
		subErr      error
		wg          sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		tabs, tabsErr = s.monitorRepo.GetLiveTabSwitches(ctx, examID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		submissions, subErr = s.monitorRepo.GetSubmissionEvents(ctx, examID)
	}()

	wg.Wait()

	// Live counts are critical; persisted submissions are best-effort.
	if tabsErr != nil {
		return nil, tabsErr
	}
	if tabs != nil {
		snapshot.TabSwitches = tabs
	}
	if subErr == nil && submissions != nil {
		snapshot.Submissions = submissions
	} else if subErr != nil {
		s.log.Warn().Err(subErr).Msg("Fetch submission events failed")
	}

	return snapshot, nil
}

func (s *MonitorService) record(ctx context.Context, examID, userID string, kind model.ProctorEventKind, count int) {
	now := time.Now().Unix()
	event := model.ProctorEvent{ExamID: examID, UserID: userID, Kind: kind, Count: count, Timestamp: now}

	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal proctor event failed")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistProctorEventsQueue, data).Err(); err != nil {
		s.log.Error().Err(err).Str("exam_id", examID).Str("kind", string(kind)).Msg("Queue proctor event failed")
	}

	s.publish(ctx, examID, MonitorEvent{Type: string(kind), UserID: userID, Count: count, Timestamp: now})
}

func (s *MonitorService) publish(ctx context.Context, examID string, event MonitorEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID), data).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Publish monitor event failed")
	}
}

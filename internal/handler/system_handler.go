package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/realtime"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// SystemHandler reports process health, room counts and queue backlog.
type SystemHandler struct {
	rdb       *redis.Client
	hub       *realtime.Hub
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, hub *realtime.Hub, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		hub:       hub,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemStatus struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	// Realtime
	Rooms      int `json:"rooms"`
	Candidates int `json:"candidates"`

	// Worker Queues
	QueueProctorEvents int64 `json:"queue_proctor_events"`
	QueueReports       int64 `json:"queue_reports"`
	RedisOK            bool  `json:"redis_ok"`
}

// Status godoc
// GET /api/v1/system/status
func (h *SystemHandler) Status(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := systemStatus{
		Timestamp:  time.Now().Unix(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		HeapSys:    mem.HeapSys,
		NumGC:      mem.NumGC,
		GoVersion:  runtime.Version(),
		NumCPU:     runtime.NumCPU(),
	}
	st.Rooms, st.Candidates = h.hub.Stats()

	// ── Worker Queues (pipelined LLEN) ──
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	pipe := h.rdb.Pipeline()
	eventsCmd := pipe.LLen(ctx, config.WorkerKey.PersistProctorEventsQueue)
	reportsCmd := pipe.LLen(ctx, config.WorkerKey.PersistReportsQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Queue length check failed")
	} else {
		st.RedisOK = true
		st.QueueProctorEvents, _ = eventsCmd.Result()
		st.QueueReports, _ = reportsCmd.Result()
	}

	response.Success(c, http.StatusOK, st)
}

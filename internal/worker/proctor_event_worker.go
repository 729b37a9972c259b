package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ProctorEventWorker drains the proctor event queue into PostgreSQL.
type ProctorEventWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewProctorEventWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ProctorEventWorker {
	return &ProctorEventWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "proctor_event_worker").Logger(),
	}
}

func (w *ProctorEventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProctorEventWorker started")

	buffer := make([]*model.ProctorEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistProctorEventsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var event model.ProctorEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			// Malformed JSON can never succeed; log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &event)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *ProctorEventWorker) flushSafe(ctx context.Context, batch []*model.ProctorEvent) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ProctorEventWorker) bulkInsert(ctx context.Context, batch []*model.ProctorEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, e := range batch {
		examID, err := uuid.Parse(e.ExamID)
		if err != nil {
			// The fallback path drops the bad row individually.
			return err
		}
		rows = append(rows, []interface{}{
			examID, e.UserID, string(e.Kind), e.Count, time.Unix(e.Timestamp, 0),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"proctor_events"},
		[]string{"exam_id", "user_id", "kind", "count", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ProctorEventWorker) fallbackInsert(ctx context.Context, batch []*model.ProctorEvent) {
	requeueList := make([]*model.ProctorEvent, 0)

	for _, e := range batch {
		examID, err := uuid.Parse(e.ExamID)
		if err != nil {
			w.log.Error().Str("exam_id", e.ExamID).Msg("Dropping proctor event with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO proctor_events (exam_id, user_id, kind, count, recorded_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			examID, e.UserID, string(e.Kind), e.Count, time.Unix(e.Timestamp, 0),
		)
		if err != nil {
			w.log.Error().Err(err).Str("user_id", e.UserID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, e)
		}
	}

	if len(requeueList) > 0 {
		requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistProctorEventsQueue, requeueList)
	}
}

func (w *ProctorEventWorker) shutdown(buffer []*model.ProctorEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

// requeue pushes failed items back so a later flush retries them.
func requeue[T any](ctx context.Context, rdb *redis.Client, log zerolog.Logger, queue string, items []T) {
	pipe := rdb.Pipeline()
	for _, item := range items {
		data, _ := json.Marshal(item)
		pipe.RPush(ctx, queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	time.Sleep(2 * time.Second)
}

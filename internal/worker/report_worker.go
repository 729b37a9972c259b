package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	ReportBatchSize    = 50
	ReportBatchTimeout = 2 * time.Second
	ReportPollTimeout  = 1 * time.Second
)

// ReportWorker drains queued exam reports into PostgreSQL and clears the
// room's live tab-switch entry for each reporting candidate.
type ReportWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewReportWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ReportWorker {
	return &ReportWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "report_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ReportWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ReportWorker started")

	batch := make([]*model.Report, 0, ReportBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ReportBatchSize || time.Since(lastFlush) >= ReportBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, ReportPollTimeout, config.WorkerKey.PersistReportsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var r model.Report
			if err := json.Unmarshal([]byte(item[1]), &r); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &r)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert wrapper
// ----------------------------------------------------------------

func (w *ReportWorker) flushSafe(ctx context.Context, batch []*model.Report) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk report insert failed, using fallback")

		failed := make([]*model.Report, 0)
		for _, r := range batch {
			if err := w.persistSingle(ctx, r); err != nil {
				w.log.Error().Err(err).Str("user_id", r.UserID).Msg("persistSingle failed, requeueing")
				failed = append(failed, r)
			}
		}
		if len(failed) > 0 {
			requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistReportsQueue, failed)
		}
		return
	}

	w.log.Debug().Int("count", len(batch)).Msg("Reports persisted")
	w.bulkClearRoomCounters(ctx, batch)
}

// ----------------------------------------------------------------
// BULK PostgreSQL INSERT using UNNEST
// ----------------------------------------------------------------

func (w *ReportWorker) bulkInsert(ctx context.Context, batch []*model.Report) error {
	n := len(batch)

	examIDs := make([]uuid.UUID, 0, n)
	users := make([]string, 0, n)
	corrects := make([]int, 0, n)
	wrongs := make([]int, 0, n)
	verdicts := make([]string, 0, n)
	submittedAts := make([]time.Time, 0, n)

	for _, r := range batch {
		eID, err := uuid.Parse(r.ExamID)
		if err != nil {
			return err
		}
		examIDs = append(examIDs, eID)
		users = append(users, r.UserID)
		corrects = append(corrects, r.CorrectCount)
		wrongs = append(wrongs, r.WrongCount)
		verdicts = append(verdicts, string(r.Verdict))
		submittedAts = append(submittedAts, r.SubmittedAt)
	}

	query := `
		INSERT INTO exam_reports (exam_id, user_id, correct_count, wrong_count, verdict, submitted_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::varchar[],
			$3::int[],
			$4::int[],
			$5::varchar[],
			$6::timestamptz[]
		)
	`

	_, err := w.pool.Exec(ctx, query, examIDs, users, corrects, wrongs, verdicts, submittedAts)
	return err
}

// ----------------------------------------------------------------
// BULK Redis HDEL for the room's live tab-switch counts
// ----------------------------------------------------------------

func (w *ReportWorker) bulkClearRoomCounters(ctx context.Context, batch []*model.Report) {
	pipe := w.rdb.Pipeline()

	for _, r := range batch {
		pipe.HDel(ctx, config.CacheKey.RoomTabSwitchKey(r.ExamID), r.UserID)
	}

	_, _ = pipe.Exec(ctx)
}

// ----------------------------------------------------------------
// FALLBACK single insert
// ----------------------------------------------------------------

func (w *ReportWorker) persistSingle(ctx context.Context, r *model.Report) error {
	eID, err := uuid.Parse(r.ExamID)
	if err != nil {
		// Cannot ever succeed; drop it instead of requeueing forever.
		w.log.Error().Str("exam_id", r.ExamID).Msg("Dropping report with invalid UUID")
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO exam_reports (exam_id, user_id, correct_count, wrong_count, verdict, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		eID, r.UserID, r.CorrectCount, r.WrongCount, string(r.Verdict), r.SubmittedAt,
	)

	return err
}

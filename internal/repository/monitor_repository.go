package repository

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MonitorRepository provides data access for live exam monitoring.
// It combines PostgreSQL (persisted proctor events) and Redis (live room counters).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// GetLiveTabSwitches returns the highest tab-switch count each candidate has
// reported in the room.
func (r *MonitorRepository) GetLiveTabSwitches(ctx context.Context, examID uuid.UUID) (map[string]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.RoomTabSwitchKey(examID.String())).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(raw))
	for userID, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		result[userID] = n
	}
	return result, nil
}

// GetSubmissionEvents returns, per candidate, how many forced or automatic
// submissions were recorded for the given exam.
func (r *MonitorRepository) GetSubmissionEvents(ctx context.Context, examID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, COUNT(*)
		 FROM proctor_events
		 WHERE exam_id = $1 AND kind IN ($2, $3)
		 GROUP BY user_id`,
		examID, string(model.ProctorEventAutoSubmitted), string(model.ProctorEventForceSubmit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var userID string
		var count int64
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, err
		}
		result[userID] = count
	}
	return result, rows.Err()
}

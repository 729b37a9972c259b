package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// ErrNoQuestions is returned for an exam stored without questions.
var ErrNoQuestions = errors.New("exam has no questions")

// ExamService serves exam definitions from Redis, falling back to PostgreSQL.
type ExamService struct {
	examRepo *repository.ExamRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo *repository.ExamRepository, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// GetDefinition returns the exam definition. A cache miss loads from
// PostgreSQL and re-populates Redis.
func (s *ExamService) GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	key := config.CacheKey.ExamDefinitionKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var def model.ExamDefinition
		if err := json.Unmarshal(data, &def); err == nil {
			return &def, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt cached definition, reloading")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Redis read failed, falling back to PostgreSQL")
	}

	def, err := s.examRepo.GetDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}
	if def.QuestionCount() == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.cache(ctx, def); err != nil {
		s.log.Warn().Err(err).Str("exam_id", def.ID).Msg("Self-heal cache write failed")
	} else {
		s.log.Info().Str("exam_id", def.ID).Msg("Exam cache self-healed")
	}
	return def, nil
}

// Save validates and stores a definition, then refreshes its cache entry.
func (s *ExamService) Save(ctx context.Context, def *model.ExamDefinition) error {
	if err := validator.Struct(def); err != nil {
		return err
	}
	if err := s.examRepo.Upsert(ctx, def); err != nil {
		return fmt.Errorf("store exam: %w", err)
	}
	if err := s.cache(ctx, def); err != nil {
		return fmt.Errorf("cache exam: %w", err)
	}
	return nil
}

// PrewarmAllCaches loads every stored exam into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.examRepo.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(ids)).Msg("Prewarming exams...")

	warmed := 0
	for _, id := range ids {
		def, err := s.examRepo.GetDefinition(ctx, id)
		if err == nil {
			err = s.cache(ctx, def)
		}
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", id.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

func (s *ExamService) cache(ctx context.Context, def *model.ExamDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(def.ID), payload, 0).Err()
}

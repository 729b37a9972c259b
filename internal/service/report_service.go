package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/scoring"
)

// ErrReportMismatch is returned when a report does not fit its exam.
var ErrReportMismatch = errors.New("report does not match exam")

// ReportService accepts scored reports and queues them for persistence.
type ReportService struct {
	exams      *ExamService
	reportRepo *repository.ReportRepository
	rdb        *redis.Client
	log        zerolog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(exams *ExamService, reportRepo *repository.ReportRepository, rdb *redis.Client, log zerolog.Logger) *ReportService {
	return &ReportService{
		exams:      exams,
		reportRepo: reportRepo,
		rdb:        rdb,
		log:        log.With().Str("component", "report_service").Logger(),
	}
}

// Submit checks a report against its exam and queues it. The verdict is
// recomputed from the exam's passing marks so a client cannot claim a pass.
func (s *ReportService) Submit(ctx context.Context, req *model.SubmitReportRequest) (*model.Report, error) {
	examID, err := uuid.Parse(req.Exam)
	if err != nil {
		return nil, fmt.Errorf("exam id: %w", err)
	}
	def, err := s.exams.GetDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}

	correct := len(req.Result.CorrectAnswers)
	wrong := len(req.Result.WrongAnswers)
	if correct+wrong != def.QuestionCount() {
		return nil, fmt.Errorf("%w: %d answers for %d questions", ErrReportMismatch, correct+wrong, def.QuestionCount())
	}

	verdict := scoring.VerdictFor(correct, def.PassingMarks)
	if verdict != req.Result.Verdict {
		s.log.Warn().
			Str("exam_id", req.Exam).
			Str("user_id", req.User).
			Str("claimed", string(req.Result.Verdict)).
			Str("verdict", string(verdict)).
			Msg("Client verdict disagrees, using server verdict")
	}

	report := &model.Report{
		ExamID:       examID.String(),
		UserID:       req.User,
		CorrectCount: correct,
		WrongCount:   wrong,
		Verdict:      verdict,
		SubmittedAt:  time.Now().UTC(),
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistReportsQueue, payload).Err(); err != nil {
		return nil, fmt.Errorf("queue report: %w", err)
	}

	s.log.Info().
		Str("exam_id", report.ExamID).
		Str("user_id", report.UserID).
		Int("correct", correct).
		Str("verdict", string(verdict)).
		Msg("Report queued")
	return report, nil
}

// ListByExam returns the persisted reports of an exam.
func (s *ReportService) ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.Report, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.reportRepo.ListByExam(ctx, examID, limit)
}

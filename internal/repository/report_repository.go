package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ReportRepository reads persisted exam reports.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// ListByExam returns an exam's reports, newest first.
func (r *ReportRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.Report, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, user_id, correct_count, wrong_count, verdict, submitted_at
		 FROM exam_reports
		 WHERE exam_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2`, examID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]model.Report, 0)
	for rows.Next() {
		var rep model.Report
		var id uuid.UUID
		if err := rows.Scan(&id, &rep.UserID, &rep.CorrectCount, &rep.WrongCount, &rep.Verdict, &rep.SubmittedAt); err != nil {
			return nil, err
		}
		rep.ExamID = id.String()
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrExamNotFound is returned when no exam has the requested ID.
var ErrExamNotFound = errors.New("exam not found")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetDefinition loads an exam with its questions in order.
func (r *ExamRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	var row model.ExamRow
	var examID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, duration_seconds, passing_marks, total_marks
		 FROM exams WHERE id = $1`, id,
	).Scan(&examID, &row.Name, &row.Duration, &row.PassingMarks, &row.TotalMarks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT question_id, name, options, correct_option
		 FROM exam_questions WHERE exam_id = $1 ORDER BY position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	def := &model.ExamDefinition{
		ID:           examID.String(),
		Name:         row.Name,
		Duration:     row.Duration,
		PassingMarks: row.PassingMarks,
		TotalMarks:   row.TotalMarks,
	}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Name, &q.Options, &q.CorrectOption); err != nil {
			return nil, err
		}
		def.Questions = append(def.Questions, q)
	}
	return def, rows.Err()
}

// ListIDs returns the IDs of every stored exam.
func (r *ExamRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM exams ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Upsert stores an exam definition, replacing its questions, in one transaction.
func (r *ExamRepository) Upsert(ctx context.Context, def *model.ExamDefinition) error {
	id, err := uuid.Parse(def.ID)
	if err != nil {
		return fmt.Errorf("exam id: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO exams (id, name, duration_seconds, passing_marks, total_marks)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     duration_seconds = EXCLUDED.duration_seconds,
		     passing_marks = EXCLUDED.passing_marks,
		     total_marks = EXCLUDED.total_marks,
		     updated_at = NOW()`,
		id, def.Name, def.Duration, def.PassingMarks, def.TotalMarks,
	)
	if err != nil {
		return fmt.Errorf("upsert exam: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM exam_questions WHERE exam_id = $1`, id); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	rows := make([][]interface{}, 0, len(def.Questions))
	for i, q := range def.Questions {
		rows = append(rows, []interface{}{id, i, q.ID, q.Name, q.Options, q.CorrectOption})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"exam_questions"},
		[]string{"exam_id", "position", "question_id", "name", "options", "correct_option"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy questions: %w", err)
	}

	return tx.Commit(ctx)
}

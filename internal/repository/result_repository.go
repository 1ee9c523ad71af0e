package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// ResultRepository handles graded result data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Create inserts a graded result and fills in its id and timestamp.
func (r *ResultRepository) Create(ctx context.Context, res *model.Result) error {
	breakdown, err := json.Marshal(res.SubjectBreakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	details, err := json.Marshal(res.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO results
		   (attempt_id, user_id, percentage, correct_count, total_count,
		    total_time_spent, subject_breakdown, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		res.AttemptID, res.UserID, res.Percentage, res.CorrectCount, res.TotalCount,
		res.TotalTimeSpent, breakdown, details,
	).Scan(&res.ID, &res.CreatedAt)
}

// GetByID retrieves a result scoped to its owner.
func (r *ResultRepository) GetByID(ctx context.Context, id uuid.UUID, userID int) (*model.Result, error) {
	res := &model.Result{}
	var breakdown, details []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, user_id, percentage, correct_count, total_count,
		        total_time_spent, subject_breakdown, details, created_at
		 FROM results
		 WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&res.ID, &res.AttemptID, &res.UserID, &res.Percentage, &res.CorrectCount,
		&res.TotalCount, &res.TotalTimeSpent, &breakdown, &details, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(breakdown, &res.SubjectBreakdown); err != nil {
		return nil, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal(details, &res.Details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	return res, nil
}

// GetByAttempt returns the result id recorded for an attempt, if any.
// Backs the idempotent submit path: a retried submission for an attempt
// that already completed returns the original result.
func (r *ResultRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM results WHERE attempt_id = $1`, attemptID,
	).Scan(&id)
	return id, err
}

// ListByUser returns the user's completed attempts, newest first.
func (r *ResultRepository) ListByUser(ctx context.Context, userID, page, limit int) ([]model.HistoryEntry, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.attempt_id, a.exam_type, r.percentage, r.correct_count,
		        r.total_count, r.created_at
		 FROM results r
		 JOIN attempts a ON a.id = r.attempt_id
		 WHERE r.user_id = $1
		 ORDER BY r.created_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ResultID, &e.AttemptID, &e.ExamType, &e.Percentage,
			&e.CorrectCount, &e.TotalCount, &e.FinishedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

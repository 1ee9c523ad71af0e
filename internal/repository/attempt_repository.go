package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// AttemptRepository handles attempt and attempt-answer data access.
// PostgreSQL is the durable source of truth; Redis only carries the hot
// copy between autosave cycles.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt row in ACTIVE state.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts
		   (user_id, exam_type, question_ids, time_limit_seconds, remaining_seconds, cursor, status)
		 VALUES ($1, $2, $3, $4, $5, 0, $6)
		 RETURNING id, started_at`,
		a.UserID, a.ExamType, a.QuestionIDs, a.TimeLimitSeconds, a.TimeLimitSeconds,
		model.AttemptStatusActive,
	).Scan(&a.ID, &a.StartedAt)
}

// GetByID retrieves an attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, exam_type, question_ids, time_limit_seconds,
		        remaining_seconds, cursor, status, started_at, finished_at
		 FROM attempts
		 WHERE id = $1`, id,
	).Scan(&a.ID, &a.UserID, &a.ExamType, &a.QuestionIDs, &a.TimeLimitSeconds,
		&a.RemainingSeconds, &a.Cursor, &a.Status, &a.StartedAt, &a.FinishedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetActiveByUser returns the user's most recent unfinished attempt.
func (r *AttemptRepository) GetActiveByUser(ctx context.Context, userID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, exam_type, question_ids, time_limit_seconds,
		        remaining_seconds, cursor, status, started_at, finished_at
		 FROM attempts
		 WHERE user_id = $1 AND status = $2
		 ORDER BY started_at DESC
		 LIMIT 1`, userID, model.AttemptStatusActive,
	).Scan(&a.ID, &a.UserID, &a.ExamType, &a.QuestionIDs, &a.TimeLimitSeconds,
		&a.RemainingSeconds, &a.Cursor, &a.Status, &a.StartedAt, &a.FinishedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateProgress persists the countdown position and cursor from a
// snapshot.
func (r *AttemptRepository) UpdateProgress(ctx context.Context, id uuid.UUID, remaining, cursor int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET remaining_seconds = $1, cursor = $2, updated_at = NOW()
		 WHERE id = $3`,
		remaining, cursor, id)
	return err
}

// UpsertAnswers writes a full set of answer records for an attempt.
// Creates or updates without locking; last write wins per question.
func (r *AttemptRepository) UpsertAnswers(ctx context.Context, attemptID uuid.UUID, answers map[uuid.UUID]model.AnswerRecord) error {
	if len(answers) == 0 {
		return nil
	}

	n := len(answers)
	qids := make([]uuid.UUID, 0, n)
	states := make([]string, 0, n)
	options := make([]string, 0, n)
	spent := make([]int, 0, n)
	for qid, rec := range answers {
		qids = append(qids, qid)
		states = append(states, string(rec.State))
		options = append(options, rec.OptionID)
		spent = append(spent, rec.TimeSpentSeconds)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, state, option_id, time_spent)
		 SELECT $1, u.question_id, u.state, u.option_id, u.time_spent
		 FROM UNNEST($2::uuid[], $3::text[], $4::text[], $5::int[])
		   AS u (question_id, state, option_id, time_spent)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET state = EXCLUDED.state,
		     option_id = EXCLUDED.option_id,
		     time_spent = EXCLUDED.time_spent,
		     updated_at = NOW()`,
		attemptID, qids, states, options, spent,
	)
	return err
}

// ListAnswers loads the persisted answer records of an attempt.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]model.AnswerRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, state, option_id, time_spent
		 FROM attempt_answers
		 WHERE attempt_id = $1`, attemptID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := make(map[uuid.UUID]model.AnswerRecord)
	for rows.Next() {
		var qid uuid.UUID
		var rec model.AnswerRecord
		if err := rows.Scan(&qid, &rec.State, &rec.OptionID, &rec.TimeSpentSeconds); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers[qid] = rec
	}
	return answers, rows.Err()
}

// Complete marks an attempt as finished in a terminal state.
func (r *AttemptRepository) Complete(ctx context.Context, id uuid.UUID, status model.AttemptStatus, remaining int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, remaining_seconds = $2, finished_at = NOW(), updated_at = NOW()
		 WHERE id = $3`,
		status, remaining, id)
	return err
}

// ListAbandoned returns ACTIVE attempts that have seen no persistence
// activity since the cutoff. These are attempts whose owner vanished
// without resuming; the reaper force-finalizes them.
func (r *AttemptRepository) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, exam_type, question_ids, time_limit_seconds,
		        remaining_seconds, cursor, status, started_at, finished_at
		 FROM attempts
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`, model.AttemptStatusActive, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list abandoned: %w", err)
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.ExamType, &a.QuestionIDs, &a.TimeLimitSeconds,
			&a.RemainingSeconds, &a.Cursor, &a.Status, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

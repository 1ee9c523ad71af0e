package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// QuestionRepository handles question-bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// PickRandom draws count questions across the given subjects. Used when a
// new attempt is assembled; the drawn set is then fixed for the attempt's
// lifetime.
func (r *QuestionRepository) PickRandom(ctx context.Context, subjects []string, count int) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, options, correct_option, subject, topic
		 FROM questions
		 WHERE subject = ANY($1)
		 ORDER BY random()
		 LIMIT $2`, subjects, count,
	)
	if err != nil {
		return nil, fmt.Errorf("pick questions: %w", err)
	}
	defer rows.Close()

	return scanQuestions(rows)
}

// GetByIDs fetches questions preserving the order of ids. Missing ids are
// an error: an attempt must never grade against a partial question set.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, options, correct_option, subject, topic
		 FROM questions
		 WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	defer rows.Close()

	fetched, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*model.Question, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	ordered := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("question %s missing from bank", id)
		}
		ordered = append(ordered, *q)
	}
	return ordered, nil
}

type questionRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanQuestions(rows questionRows) ([]model.Question, error) {
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Options, &q.CorrectOption, &q.Subject, &q.Topic); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

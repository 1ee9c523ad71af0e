package model

import (
	"time"

	"github.com/google/uuid"
)

// SubjectScore is the per-subject slice of a result.
type SubjectScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// QuestionResult is the per-question detail of a graded attempt.
type QuestionResult struct {
	QuestionID       uuid.UUID   `json:"question_id"`
	State            AnswerState `json:"state"`
	SelectedOption   string      `json:"selected_option,omitempty"`
	CorrectOption    string      `json:"correct_option"`
	Correct          bool        `json:"correct"`
	TimeSpentSeconds int         `json:"time_spent_seconds"`
}

// Result is the graded outcome of a completed attempt.
type Result struct {
	ID               uuid.UUID               `json:"id"`
	AttemptID        uuid.UUID               `json:"attempt_id"`
	UserID           int                     `json:"user_id"`
	Percentage       float64                 `json:"percentage"`
	CorrectCount     int                     `json:"correct_answers"`
	TotalCount       int                     `json:"total_questions"`
	TotalTimeSpent   int                     `json:"total_time_spent"`
	SubjectBreakdown map[string]SubjectScore `json:"subject_breakdown"`
	Details          []QuestionResult        `json:"detailed_results"`
	CreatedAt        time.Time               `json:"created_at"`
}

// HistoryEntry is one row of the paginated exam history.
type HistoryEntry struct {
	ResultID     uuid.UUID `json:"result_id"`
	AttemptID    uuid.UUID `json:"attempt_id"`
	ExamType     string    `json:"exam_type"`
	Percentage   float64   `json:"percentage"`
	CorrectCount int       `json:"correct_answers"`
	TotalCount   int       `json:"total_questions"`
	FinishedAt   time.Time `json:"finished_at"`
}

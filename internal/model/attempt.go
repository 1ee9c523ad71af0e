package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states. SUBMITTING exists only on a
// live in-memory session; rows in PostgreSQL move straight from ACTIVE to a
// terminal state.
type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "NOT_STARTED"
	AttemptStatusActive     AttemptStatus = "ACTIVE"
	AttemptStatusSubmitting AttemptStatus = "SUBMITTING"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusFailed     AttemptStatus = "FAILED"
)

// Attempt represents one timed attempt at an exam, from start to submission
// or abandonment.
type Attempt struct {
	ID               uuid.UUID     `json:"id"`
	UserID           int           `json:"user_id"`
	ExamType         string        `json:"exam_type"`
	QuestionIDs      []uuid.UUID   `json:"question_ids"`
	TimeLimitSeconds int           `json:"time_limit_seconds"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Cursor           int           `json:"cursor"`
	Status           AttemptStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
}

// StartExamRequest is the payload for starting a new timed exam.
type StartExamRequest struct {
	Type             string   `json:"type" binding:"required,oneof=MOCK_EXAM SUBJECT_DRILL FULL_LENGTH"`
	Subjects         []string `json:"subjects" binding:"required,min=1,dive,min=1,max=64"`
	TimeLimitMinutes int      `json:"time_limit_minutes" binding:"required,min=1,max=480"`
	QuestionCount    int      `json:"question_count" binding:"required,min=1,max=200"`
}

// AnswerRequest records or clears a selection for one question. Skipped and
// OptionID are mutually exclusive; Skipped marks the question as deliberately
// passed over, which is distinct from never visited.
type AnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	OptionID   string    `json:"option_id" binding:"omitempty,max=10"`
	Skipped    bool      `json:"skipped"`
}

// NavigateRequest moves the active-question cursor.
type NavigateRequest struct {
	Index *int `json:"index" binding:"required"`
}

// AutosaveRequest merges client-held answer records into the server-side
// ledger and flushes a snapshot. Best-effort by contract.
type AutosaveRequest struct {
	SessionID uuid.UUID                    `json:"session_id" binding:"required"`
	Answers   map[uuid.UUID]AutosaveAnswer `json:"answers" binding:"required"`
}

// AutosaveAnswer is a single client-pushed answer record.
type AutosaveAnswer struct {
	OptionID  string `json:"option_id"`
	Skipped   bool   `json:"skipped"`
	TimeSpent int    `json:"time_spent" binding:"min=0"`
}

// SubmitRequest finalizes an attempt.
type SubmitRequest struct {
	SessionID uuid.UUID `json:"session_id" binding:"required"`
}

package websocket

import (
	"github.com/google/uuid"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single client message shape; unused fields stay
// zero depending on Action.
type RequestPayload struct {
	Action     Action    `json:"action"`
	QuestionID uuid.UUID `json:"question_id,omitempty"`
	OptionID   string    `json:"option_id,omitempty"`
	Skipped    bool      `json:"skipped,omitempty"`
	Index      int       `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSuccess Event = "success"
	EventPong    Event = "pong"
)

// ErrorResponse reports a failed action.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// SuccessResponse wraps an acknowledged action with its payload.
type SuccessResponse struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

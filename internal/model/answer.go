package model

// AnswerState is the explicit selection state of a question within an
// attempt. An absent record means UNANSWERED; SKIPPED means the user
// deliberately passed the question over. No sentinel option ids.
type AnswerState string

const (
	AnswerStateUnanswered AnswerState = "UNANSWERED"
	AnswerStateAnswered   AnswerState = "ANSWERED"
	AnswerStateSkipped    AnswerState = "SKIPPED"
)

// AnswerRecord is the per-question entry of the answer ledger.
type AnswerRecord struct {
	State            AnswerState `json:"state"`
	OptionID         string      `json:"option_id,omitempty"`
	TimeSpentSeconds int         `json:"time_spent_seconds"`
}

// Progress is derived from the ledger, never stored. The three buckets
// always sum to the attempt's question count.
type Progress struct {
	Answered          int     `json:"answered"`
	Skipped           int     `json:"skipped"`
	Unanswered        int     `json:"unanswered"`
	CompletionPercent float64 `json:"completion_percent"`
}

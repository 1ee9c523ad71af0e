package engine

import (
	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// ComputeProgress derives the answered/skipped/unanswered buckets from a
// ledger snapshot. Pure: no clock, no I/O. A record that only carries
// accumulated time still counts as unanswered, so no question is ever
// double-counted across buckets.
func ComputeProgress(totalQuestions int, answers map[uuid.UUID]model.AnswerRecord) model.Progress {
	p := model.Progress{}
	for _, rec := range answers {
		switch rec.State {
		case model.AnswerStateAnswered:
			p.Answered++
		case model.AnswerStateSkipped:
			p.Skipped++
		}
	}
	p.Unanswered = totalQuestions - p.Answered - p.Skipped
	if p.Unanswered < 0 {
		// Records for questions outside the attempt's set would violate the
		// bucket invariant; clamp rather than corrupt the view.
		p.Unanswered = 0
	}
	if totalQuestions > 0 {
		p.CompletionPercent = float64(p.Answered+p.Skipped) / float64(totalQuestions) * 100
	}
	return p
}

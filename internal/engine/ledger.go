package engine

import (
	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// Ledger is the authoritative mapping of question id to answer record for
// one attempt. Exactly one slot exists per question id; an absent slot means
// the question was never touched. The ledger is not safe for concurrent use
// on its own; the owning Session serializes all access.
type Ledger struct {
	records map[uuid.UUID]*model.AnswerRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[uuid.UUID]*model.AnswerRecord)}
}

func (l *Ledger) slot(questionID uuid.UUID) *model.AnswerRecord {
	rec, ok := l.records[questionID]
	if !ok {
		rec = &model.AnswerRecord{State: model.AnswerStateUnanswered}
		l.records[questionID] = rec
	}
	return rec
}

// Record upserts a selection for the question, preserving any accumulated
// time.
func (l *Ledger) Record(questionID uuid.UUID, optionID string) {
	rec := l.slot(questionID)
	rec.State = model.AnswerStateAnswered
	rec.OptionID = optionID
}

// Skip marks the question as deliberately skipped, preserving accumulated
// time and clearing any previous selection.
func (l *Ledger) Skip(questionID uuid.UUID) {
	rec := l.slot(questionID)
	rec.State = model.AnswerStateSkipped
	rec.OptionID = ""
}

// AddTime accumulates viewing time for the question without touching the
// selection. Negative amounts are ignored so accumulated time is monotonic.
func (l *Ledger) AddTime(questionID uuid.UUID, seconds int) {
	if seconds <= 0 {
		return
	}
	l.slot(questionID).TimeSpentSeconds += seconds
}

// Get returns a copy of the record for the question.
func (l *Ledger) Get(questionID uuid.UUID) (model.AnswerRecord, bool) {
	rec, ok := l.records[questionID]
	if !ok {
		return model.AnswerRecord{State: model.AnswerStateUnanswered}, false
	}
	return *rec, true
}

// Len returns the number of touched question slots.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Snapshot returns an immutable copy of the ledger for autosave or
// submission.
func (l *Ledger) Snapshot() map[uuid.UUID]model.AnswerRecord {
	out := make(map[uuid.UUID]model.AnswerRecord, len(l.records))
	for id, rec := range l.records {
		out[id] = *rec
	}
	return out
}

// Restore fully replaces the ledger contents. Used by the resume path,
// where the persisted snapshot is authoritative.
func (l *Ledger) Restore(records map[uuid.UUID]model.AnswerRecord) {
	l.records = make(map[uuid.UUID]*model.AnswerRecord, len(records))
	for id, rec := range records {
		cp := rec
		if cp.State == "" {
			cp.State = model.AnswerStateUnanswered
		}
		l.records[id] = &cp
	}
}

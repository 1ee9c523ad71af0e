package engine

import (
	"testing"

	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

func TestLedgerRecordPreservesTime(t *testing.T) {
	l := NewLedger()
	qid := uuid.New()

	l.AddTime(qid, 12)
	l.Record(qid, "b")

	rec, ok := l.Get(qid)
	if !ok {
		t.Fatal("expected a record")
	}
	if rec.State != model.AnswerStateAnswered || rec.OptionID != "b" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.TimeSpentSeconds != 12 {
		t.Fatalf("time lost on record: %d", rec.TimeSpentSeconds)
	}

	l.Record(qid, "c")
	rec, _ = l.Get(qid)
	if rec.OptionID != "c" || rec.TimeSpentSeconds != 12 {
		t.Fatalf("re-record should replace option only: %+v", rec)
	}
}

func TestLedgerSkipClearsSelection(t *testing.T) {
	l := NewLedger()
	qid := uuid.New()

	l.Record(qid, "a")
	l.AddTime(qid, 5)
	l.Skip(qid)

	rec, _ := l.Get(qid)
	if rec.State != model.AnswerStateSkipped {
		t.Fatalf("expected SKIPPED, got %s", rec.State)
	}
	if rec.OptionID != "" {
		t.Fatalf("skip must clear the selection, got %q", rec.OptionID)
	}
	if rec.TimeSpentSeconds != 5 {
		t.Fatalf("skip must preserve time, got %d", rec.TimeSpentSeconds)
	}
}

func TestLedgerAddTimeMonotonic(t *testing.T) {
	l := NewLedger()
	qid := uuid.New()

	l.AddTime(qid, 3)
	l.AddTime(qid, 0)
	l.AddTime(qid, -7)
	l.AddTime(qid, 4)

	rec, _ := l.Get(qid)
	if rec.TimeSpentSeconds != 7 {
		t.Fatalf("expected 7 accumulated seconds, got %d", rec.TimeSpentSeconds)
	}
	if rec.State != model.AnswerStateUnanswered {
		t.Fatalf("time alone must not change state, got %s", rec.State)
	}
}

func TestLedgerGetMissing(t *testing.T) {
	l := NewLedger()
	rec, ok := l.Get(uuid.New())
	if ok {
		t.Fatal("missing question should report ok=false")
	}
	if rec.State != model.AnswerStateUnanswered {
		t.Fatalf("zero record should be UNANSWERED, got %s", rec.State)
	}
	if l.Len() != 0 {
		t.Fatal("Get must not create a slot")
	}
}

func TestLedgerSnapshotIsDetached(t *testing.T) {
	l := NewLedger()
	qid := uuid.New()
	l.Record(qid, "a")

	snap := l.Snapshot()
	l.Record(qid, "d")
	l.AddTime(qid, 30)

	if snap[qid].OptionID != "a" || snap[qid].TimeSpentSeconds != 0 {
		t.Fatalf("snapshot mutated by later writes: %+v", snap[qid])
	}
}

func TestLedgerRestoreReplacesEverything(t *testing.T) {
	l := NewLedger()
	old := uuid.New()
	l.Record(old, "a")

	q1, q2 := uuid.New(), uuid.New()
	l.Restore(map[uuid.UUID]model.AnswerRecord{
		q1: {State: model.AnswerStateAnswered, OptionID: "b", TimeSpentSeconds: 40},
		q2: {TimeSpentSeconds: 9},
	})

	if _, ok := l.Get(old); ok {
		t.Fatal("restore must drop records absent from the snapshot")
	}
	r1, _ := l.Get(q1)
	if r1.OptionID != "b" || r1.TimeSpentSeconds != 40 {
		t.Fatalf("restored record mismatch: %+v", r1)
	}
	r2, _ := l.Get(q2)
	if r2.State != model.AnswerStateUnanswered {
		t.Fatalf("empty state should default to UNANSWERED, got %s", r2.State)
	}
}

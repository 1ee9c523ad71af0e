package engine

import (
	"testing"

	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

func TestComputeProgressBuckets(t *testing.T) {
	answers := map[uuid.UUID]model.AnswerRecord{
		uuid.New(): {State: model.AnswerStateAnswered, OptionID: "a"},
		uuid.New(): {State: model.AnswerStateAnswered, OptionID: "c"},
		uuid.New(): {State: model.AnswerStateSkipped},
		// Touched but never answered: still counts as unanswered.
		uuid.New(): {State: model.AnswerStateUnanswered, TimeSpentSeconds: 14},
	}

	p := ComputeProgress(10, answers)
	if p.Answered != 2 || p.Skipped != 1 || p.Unanswered != 7 {
		t.Fatalf("unexpected buckets: %+v", p)
	}
	if p.Answered+p.Skipped+p.Unanswered != 10 {
		t.Fatalf("buckets must sum to the question count: %+v", p)
	}
	if p.CompletionPercent != 30 {
		t.Fatalf("expected 30%% completion, got %v", p.CompletionPercent)
	}
}

func TestComputeProgressEmpty(t *testing.T) {
	p := ComputeProgress(5, nil)
	if p.Answered != 0 || p.Skipped != 0 || p.Unanswered != 5 {
		t.Fatalf("unexpected buckets: %+v", p)
	}
	if p.CompletionPercent != 0 {
		t.Fatalf("expected 0%% completion, got %v", p.CompletionPercent)
	}
}

func TestComputeProgressZeroQuestions(t *testing.T) {
	p := ComputeProgress(0, nil)
	if p.CompletionPercent != 0 {
		t.Fatalf("zero questions must not divide by zero, got %v", p.CompletionPercent)
	}
}

func TestComputeProgressClampsForeignRecords(t *testing.T) {
	answers := map[uuid.UUID]model.AnswerRecord{
		uuid.New(): {State: model.AnswerStateAnswered, OptionID: "a"},
		uuid.New(): {State: model.AnswerStateAnswered, OptionID: "b"},
	}
	p := ComputeProgress(1, answers)
	if p.Unanswered != 0 {
		t.Fatalf("unanswered must never go negative, got %d", p.Unanswered)
	}
}

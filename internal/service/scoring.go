package service

import (
	"github.com/google/uuid"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// BuildResult grades a finished attempt. Score computation is a plain ratio
// of correct answers over the attempt's question count; subject buckets are
// derived from the question metadata. Pure function, exercised directly by
// tests.
func BuildResult(attempt *model.Attempt, questions []model.Question, answers map[uuid.UUID]model.AnswerRecord, totalTimeSpent int) *model.Result {
	res := &model.Result{
		AttemptID:        attempt.ID,
		UserID:           attempt.UserID,
		TotalCount:       len(questions),
		TotalTimeSpent:   totalTimeSpent,
		SubjectBreakdown: make(map[string]model.SubjectScore),
		Details:          make([]model.QuestionResult, 0, len(questions)),
	}

	for _, q := range questions {
		rec, ok := answers[q.ID]
		if !ok {
			rec = model.AnswerRecord{State: model.AnswerStateUnanswered}
		}

		correct := rec.State == model.AnswerStateAnswered && rec.OptionID == q.CorrectOption
		if correct {
			res.CorrectCount++
		}

		bucket := res.SubjectBreakdown[q.Subject]
		bucket.Total++
		if correct {
			bucket.Correct++
		}
		res.SubjectBreakdown[q.Subject] = bucket

		res.Details = append(res.Details, model.QuestionResult{
			QuestionID:       q.ID,
			State:            rec.State,
			SelectedOption:   rec.OptionID,
			CorrectOption:    q.CorrectOption,
			Correct:          correct,
			TimeSpentSeconds: rec.TimeSpentSeconds,
		})
	}

	if res.TotalCount > 0 {
		res.Percentage = float64(res.CorrectCount) / float64(res.TotalCount) * 100
	}
	return res
}

package model

import (
	"github.com/google/uuid"
)

// Option is one answer choice of a question. Option identifiers are short
// stable strings ("a", "b", ...) unique within the question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a question-bank entry. CorrectOption never leaves the server
// surface before submission.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Prompt        string    `json:"prompt"`
	Options       []Option  `json:"options"`
	CorrectOption string    `json:"-"`
	Subject       string    `json:"subject"`
	Topic         string    `json:"topic"`
}

// QuestionForUser is a question as shipped to the exam taker: no answer key.
type QuestionForUser struct {
	ID      uuid.UUID `json:"id"`
	Prompt  string    `json:"prompt"`
	Options []Option  `json:"options"`
	Subject string    `json:"subject"`
	Topic   string    `json:"topic"`
}

// Sanitize strips the answer key from a bank question.
func (q *Question) Sanitize() QuestionForUser {
	return QuestionForUser{
		ID:      q.ID,
		Prompt:  q.Prompt,
		Options: q.Options,
		Subject: q.Subject,
		Topic:   q.Topic,
	}
}

// HasOption reports whether id names one of the question's options.
func (q *QuestionForUser) HasOption(id string) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

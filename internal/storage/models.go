package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AnswerEntry is one raw onboarding answer as submitted.
type AnswerEntry struct {
	ID         string
	QuestionID string
	AnswerJSON string
	CreatedAt  time.Time
}

// Nudge is a connection nudge the companion delivered to the person.
type Nudge struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

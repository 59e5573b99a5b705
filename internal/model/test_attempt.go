package model

import (
	"time"

	"github.com/google/uuid"
)

// TestAttempt is the durable result of a submitted or expired session.
type TestAttempt struct {
	ID           uuid.UUID         `json:"id"`
	SessionID    string            `json:"session_id"`
	UserID       uuid.UUID         `json:"user_id"`
	TestID       uuid.UUID         `json:"test_id"`
	Score        int               `json:"score"`
	EarnedPoints float64           `json:"earned_points"`
	TotalPoints  float64           `json:"total_points"`
	Passed       bool              `json:"passed"`
	Expired      bool              `json:"expired"`
	Answers      map[string]string `json:"answers"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at"`
}

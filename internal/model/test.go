package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the publication states of a test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

// QuestionType determines how an answer is graded.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// Test is a certification test definition.
type Test struct {
	ID               uuid.UUID    `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	TimeLimitMinutes int          `json:"time_limit_minutes"`
	PassingScore     float64      `json:"passing_score"`
	Status           TestStatus   `json:"status"`
	Template         TemplateType `json:"certificate_template"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	Questions        []Question   `json:"questions,omitempty"`
}

// Question belongs to a test. CorrectAnswer never leaves the server.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	TestID        uuid.UUID       `json:"test_id"`
	Text          string          `json:"question_text"`
	Type          QuestionType    `json:"question_type"`
	Options       json.RawMessage `json:"options,omitempty"`
	CorrectAnswer string          `json:"-"`
	Points        float64         `json:"points"`
	OrderNum      int             `json:"order_num"`
}

// Snapshot freezes the question as it is at session start.
func (q Question) Snapshot() QuestionSnapshot {
	points := q.Points
	if points <= 0 {
		points = 1
	}
	var opts json.RawMessage
	if len(q.Options) > 0 {
		opts = append(json.RawMessage(nil), q.Options...)
	}
	return QuestionSnapshot{
		ID:            q.ID,
		Text:          q.Text,
		Type:          q.Type,
		Options:       opts,
		CorrectAnswer: q.CorrectAnswer,
		Points:        points,
	}
}

package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates test session states.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusPaused    SessionStatus = "PAUSED"
	SessionStatusSubmitted SessionStatus = "SUBMITTED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
)

// QuestionSnapshot is a question materialized into a session at start.
// It keeps the correct answer so grading is unaffected by later test edits.
type QuestionSnapshot struct {
	ID            uuid.UUID       `json:"id"`
	Text          string          `json:"text"`
	Type          QuestionType    `json:"type"`
	Options       json.RawMessage `json:"options,omitempty"`
	CorrectAnswer string          `json:"correct_answer"`
	Points        float64         `json:"points"`
}

// TestSession is one user's timed attempt at a test, held by the session store.
type TestSession struct {
	ID                   string             `json:"id"`
	UserID               uuid.UUID          `json:"user_id"`
	TestID               uuid.UUID          `json:"test_id"`
	TestTitle            string             `json:"test_title"`
	PassingScore         float64            `json:"passing_score"`
	Questions            []QuestionSnapshot `json:"questions"`
	Answers              map[string]string  `json:"answers"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	FlaggedQuestions     []int              `json:"flagged_questions"`
	StartTime            time.Time          `json:"start_time"`
	TimeLimit            int                `json:"time_limit"`
	Status               SessionStatus      `json:"status"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Deadline is the instant the session stops being valid.
// Pausing does not move it.
func (s *TestSession) Deadline() time.Time {
	return s.StartTime.Add(time.Duration(s.TimeLimit) * time.Minute)
}

// WithinTime reports whether now - StartTime < TimeLimit.
func (s *TestSession) WithinTime(now time.Time) bool {
	return now.Sub(s.StartTime) < time.Duration(s.TimeLimit)*time.Minute
}

// Remaining returns the time left before the deadline, floored at zero.
func (s *TestSession) Remaining(now time.Time) time.Duration {
	left := s.Deadline().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// IsOpen reports whether the session still accepts operations.
func (s *TestSession) IsOpen() bool {
	return s.Status == SessionStatusActive || s.Status == SessionStatusPaused
}

// IsTerminal reports whether the session has been submitted or expired.
func (s *TestSession) IsTerminal() bool {
	return s.Status == SessionStatusSubmitted || s.Status == SessionStatusExpired
}

// HasQuestion reports whether the snapshot contains the question.
func (s *TestSession) HasQuestion(questionID string) bool {
	for _, q := range s.Questions {
		if q.ID.String() == questionID {
			return true
		}
	}
	return false
}

// IsFlagged reports whether index is marked for review.
func (s *TestSession) IsFlagged(index int) bool {
	i := sort.SearchInts(s.FlaggedQuestions, index)
	return i < len(s.FlaggedQuestions) && s.FlaggedQuestions[i] == index
}

// ToggleFlag flips the review mark of index and returns the new state.
// FlaggedQuestions is kept sorted and free of duplicates.
func (s *TestSession) ToggleFlag(index int) bool {
	i := sort.SearchInts(s.FlaggedQuestions, index)
	if i < len(s.FlaggedQuestions) && s.FlaggedQuestions[i] == index {
		s.FlaggedQuestions = append(s.FlaggedQuestions[:i], s.FlaggedQuestions[i+1:]...)
		return false
	}
	s.FlaggedQuestions = append(s.FlaggedQuestions, 0)
	copy(s.FlaggedQuestions[i+1:], s.FlaggedQuestions[i:])
	s.FlaggedQuestions[i] = index
	return true
}

// Clone returns a deep copy so store entries are never shared with callers.
func (s *TestSession) Clone() *TestSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Questions = make([]QuestionSnapshot, len(s.Questions))
	for i, q := range s.Questions {
		out.Questions[i] = q
		if len(q.Options) > 0 {
			out.Questions[i].Options = append(json.RawMessage(nil), q.Options...)
		}
	}
	out.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.FlaggedQuestions = append([]int(nil), s.FlaggedQuestions...)
	return &out
}

// Checkpoint extracts the mutable part of the session for durable persistence.
func (s *TestSession) Checkpoint() SessionCheckpoint {
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	return SessionCheckpoint{
		SessionID:            s.ID,
		Answers:              answers,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		FlaggedQuestions:     append([]int(nil), s.FlaggedQuestions...),
		Status:               s.Status,
		UpdatedAt:            s.UpdatedAt,
	}
}

// View renders the session for its owner, without correct answers.
func (s *TestSession) View(now time.Time) SessionView {
	questions := make([]QuestionForTaker, len(s.Questions))
	for i, q := range s.Questions {
		questions[i] = QuestionForTaker{
			ID:      q.ID,
			Text:    q.Text,
			Type:    q.Type,
			Options: q.Options,
			Points:  q.Points,
		}
	}
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	flagged := append([]int{}, s.FlaggedQuestions...)
	return SessionView{
		ID:                   s.ID,
		TestID:               s.TestID,
		TestTitle:            s.TestTitle,
		Status:               s.Status,
		Questions:            questions,
		Answers:              answers,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		FlaggedQuestions:     flagged,
		TotalQuestions:       len(s.Questions),
		StartTime:            s.StartTime,
		TimeLimit:            s.TimeLimit,
		RemainingSeconds:     int64(s.Remaining(now) / time.Second),
	}
}

// SessionCheckpoint is the mutable session state queued for persistence.
type SessionCheckpoint struct {
	SessionID            string            `json:"session_id"`
	Answers              map[string]string `json:"answers"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	FlaggedQuestions     []int             `json:"flagged_questions"`
	Status               SessionStatus     `json:"status"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// QuestionForTaker is a question as shown to the person taking the test.
type QuestionForTaker struct {
	ID      uuid.UUID       `json:"id"`
	Text    string          `json:"text"`
	Type    QuestionType    `json:"type"`
	Options json.RawMessage `json:"options,omitempty"`
	Points  float64         `json:"points"`
}

// SessionView is the client-facing projection of a TestSession.
type SessionView struct {
	ID                   string             `json:"session_id"`
	TestID               uuid.UUID          `json:"test_id"`
	TestTitle            string             `json:"test_title"`
	Status               SessionStatus      `json:"status"`
	Questions            []QuestionForTaker `json:"questions"`
	Answers              map[string]string  `json:"answers"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	FlaggedQuestions     []int              `json:"flagged_questions"`
	TotalQuestions       int                `json:"total_questions"`
	StartTime            time.Time          `json:"start_time"`
	TimeLimit            int                `json:"time_limit"`
	RemainingSeconds     int64              `json:"remaining_seconds"`
}

// AnswerRequest is the payload for answering a question.
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Value      string `json:"value" binding:"max=10000"`
}

// QuestionIndexRequest is the payload for goto and flag navigation.
type QuestionIndexRequest struct {
	Index *int `json:"index" binding:"required"`
}

// Package grading scores a session's answers against its question snapshot.
package grading

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/model"
)

// EssayGrader scores free-text answers. The returned credit is a fraction in [0, 1].
type EssayGrader interface {
	GradeEssay(ctx context.Context, q model.QuestionSnapshot, answer string) (float64, error)
}

// Result is the outcome of grading one session.
type Result struct {
	EarnedPoints float64
	TotalPoints  float64
	Correct      int
	Total        int
	Score        int
}

// Grader applies the per-type answer policy.
type Grader struct {
	essay EssayGrader
	log   zerolog.Logger
}

// New creates a Grader. A nil essay grader scores every essay zero.
func New(essay EssayGrader, log zerolog.Logger) *Grader {
	return &Grader{
		essay: essay,
		log:   log.With().Str("component", "grader").Logger(),
	}
}

// Grade returns the points earned by answer on q. Unanswered questions earn nothing.
func (g *Grader) Grade(ctx context.Context, q model.QuestionSnapshot, answer string, answered bool) float64 {
	if !answered {
		return 0
	}
	points := q.Points
	if points <= 0 {
		points = 1
	}

	switch q.Type {
	case model.QuestionTypeShortAnswer:
		if strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer)) {
			return points
		}
		return 0
	case model.QuestionTypeEssay:
		if g.essay == nil {
			return 0
		}
		credit, err := g.essay.GradeEssay(ctx, q, answer)
		if err != nil {
			g.log.Warn().Err(err).Str("question_id", q.ID.String()).Msg("Essay grading failed, scoring zero")
			return 0
		}
		return points * math.Max(0, math.Min(1, credit))
	default:
		// MULTIPLE_CHOICE and TRUE_FALSE
		if answer == q.CorrectAnswer {
			return points
		}
		return 0
	}
}

// GradeSession grades every question in the snapshot.
func (g *Grader) GradeSession(ctx context.Context, questions []model.QuestionSnapshot, answers map[string]string) Result {
	var res Result
	res.Total = len(questions)
	for _, q := range questions {
		points := q.Points
		if points <= 0 {
			points = 1
		}
		res.TotalPoints += points

		answer, ok := answers[q.ID.String()]
		earned := g.Grade(ctx, q, answer, ok)
		res.EarnedPoints += earned
		if earned >= points {
			res.Correct++
		}
	}
	res.Score = Percentage(res.EarnedPoints, res.TotalPoints)
	return res
}

// Percentage is round(100 * earned / total), or 0 when there is nothing to earn.
func Percentage(earned, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * earned / total))
}

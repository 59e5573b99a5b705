package grading

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/model"
	"google.golang.org/api/option"
)

var scorePattern = regexp.MustCompile(`(?i)score\s*:\s*(\d{1,3})`)

// GeminiEssayGrader asks a Gemini model to mark essays out of 100.
type GeminiEssayGrader struct {
	client *genai.Client
	model  *genai.GenerativeModel
	log    zerolog.Logger
}

// NewGeminiEssayGrader creates a grader for the named model.
func NewGeminiEssayGrader(ctx context.Context, apiKey, modelName string, log zerolog.Logger) (*GeminiEssayGrader, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	m := client.GenerativeModel(modelName)
	m.SetTemperature(0)

	return &GeminiEssayGrader{
		client: client,
		model:  m,
		log:    log.With().Str("component", "gemini_grader").Logger(),
	}, nil
}

// Close releases the underlying client.
func (g *GeminiEssayGrader) Close() error {
	return g.client.Close()
}

func (g *GeminiEssayGrader) GradeEssay(ctx context.Context, q model.QuestionSnapshot, answer string) (float64, error) {
	if strings.TrimSpace(answer) == "" {
		return 0, nil
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(essayPrompt(q, answer)))
	if err != nil {
		return 0, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return 0, errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	credit, err := parseEssayScore(b.String())
	if err != nil {
		return 0, err
	}
	g.log.Debug().Str("question_id", q.ID.String()).Float64("credit", credit).Msg("Essay graded")
	return credit, nil
}

func essayPrompt(q model.QuestionSnapshot, answer string) string {
	return fmt.Sprintf(`You are grading a certification exam essay.
Compare the candidate's answer with the reference answer and mark it out of 100.
Reply with a single line in the form "Score: N".

Question:
---
%s
---

Reference answer:
---
%s
---

Candidate answer:
---
%s
---
`, q.Text, q.CorrectAnswer, answer)
}

// parseEssayScore extracts "Score: N" and converts it to a fraction.
func parseEssayScore(text string) (float64, error) {
	m := scorePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no score in model reply %q", text)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parse score: %w", err)
	}
	if n > 100 {
		n = 100
	}
	return float64(n) / 100, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/certify-backend/internal/model"
)

// SessionRepository keeps the durable copy of test sessions.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Save upserts the whole session. Rows already SUBMITTED or EXPIRED are left untouched.
func (r *SessionRepository) Save(ctx context.Context, s *model.TestSession) error {
	flagged := s.FlaggedQuestions
	if flagged == nil {
		flagged = []int{}
	}
	answers := s.Answers
	if answers == nil {
		answers = map[string]string{}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO test_sessions (id, user_id, test_id, test_title, passing_score, questions, answers,
		                            current_question_index, flagged_questions, start_time, time_limit, status, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE
		 SET answers = EXCLUDED.answers,
		     current_question_index = EXCLUDED.current_question_index,
		     flagged_questions = EXCLUDED.flagged_questions,
		     status = EXCLUDED.status,
		     updated_at = EXCLUDED.updated_at
		 WHERE test_sessions.status IN ('ACTIVE', 'PAUSED')`,
		s.ID, s.UserID, s.TestID, s.TestTitle, s.PassingScore, s.Questions, answers,
		s.CurrentQuestionIndex, flagged, s.StartTime, s.TimeLimit, s.Status, s.UpdatedAt,
	)
	return err
}

// Get loads a durable session record.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.TestSession, error) {
	s := &model.TestSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, test_id, test_title, passing_score, questions, answers,
		        current_question_index, flagged_questions, start_time, time_limit, status, updated_at
		 FROM test_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.TestID, &s.TestTitle, &s.PassingScore, &s.Questions, &s.Answers,
		&s.CurrentQuestionIndex, &s.FlaggedQuestions, &s.StartTime, &s.TimeLimit, &s.Status, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	return s, nil
}

// ----------------------------------------------------------------
// Checkpoints
// ----------------------------------------------------------------

// BulkCheckpoint applies many checkpoints in one statement. A checkpoint
// older than the stored row, or targeting a closed session, is skipped.
func (r *SessionRepository) BulkCheckpoint(ctx context.Context, batch []model.SessionCheckpoint) error {
	n := len(batch)
	ids := make([]string, 0, n)
	answers := make([]string, 0, n)
	indexes := make([]int, 0, n)
	flagged := make([]string, 0, n)
	statuses := make([]string, 0, n)
	updatedAts := make([]time.Time, 0, n)

	for _, cp := range latestPerSession(batch) {
		a, err := json.Marshal(cp.Answers)
		if err != nil {
			return fmt.Errorf("encode answers: %w", err)
		}
		f, err := json.Marshal(nonNilInts(cp.FlaggedQuestions))
		if err != nil {
			return fmt.Errorf("encode flags: %w", err)
		}
		ids = append(ids, cp.SessionID)
		answers = append(answers, string(a))
		indexes = append(indexes, cp.CurrentQuestionIndex)
		flagged = append(flagged, string(f))
		statuses = append(statuses, string(cp.Status))
		updatedAts = append(updatedAts, cp.UpdatedAt)
	}

	query := `
		UPDATE test_sessions AS s
		SET answers = t.answers,
		    current_question_index = t.idx,
		    flagged_questions = t.flagged,
		    status = t.status,
		    updated_at = t.updated_at
		FROM (
			SELECT * FROM UNNEST(
				$1::text[],
				$2::jsonb[],
				$3::int[],
				$4::jsonb[],
				$5::text[],
				$6::timestamptz[]
			) AS u (id, answers, idx, flagged, status, updated_at)
		) AS t
		WHERE s.id = t.id
		  AND s.status IN ('ACTIVE', 'PAUSED')
		  AND s.updated_at <= t.updated_at
	`

	_, err := r.pool.Exec(ctx, query, ids, answers, indexes, flagged, statuses, updatedAts)
	return err
}

// Checkpoint applies a single checkpoint with the same guards as BulkCheckpoint.
func (r *SessionRepository) Checkpoint(ctx context.Context, cp model.SessionCheckpoint) error {
	answers := cp.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE test_sessions
		 SET answers = $1, current_question_index = $2, flagged_questions = $3, status = $4, updated_at = $5
		 WHERE id = $6 AND status IN ('ACTIVE', 'PAUSED') AND updated_at <= $5`,
		answers, cp.CurrentQuestionIndex, nonNilInts(cp.FlaggedQuestions), cp.Status, cp.UpdatedAt, cp.SessionID,
	)
	return err
}

// latestPerSession keeps the newest checkpoint of each session; UPDATE ... FROM
// applies at most one source row per target.
func latestPerSession(batch []model.SessionCheckpoint) []model.SessionCheckpoint {
	pos := make(map[string]int, len(batch))
	out := make([]model.SessionCheckpoint, 0, len(batch))
	for _, cp := range batch {
		i, seen := pos[cp.SessionID]
		if !seen {
			pos[cp.SessionID] = len(out)
			out = append(out, cp)
			continue
		}
		if !cp.UpdatedAt.Before(out[i].UpdatedAt) {
			out[i] = cp
		}
	}
	return out
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

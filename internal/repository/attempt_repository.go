package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/certify-backend/internal/model"
)

// AttemptRepository handles test attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// CreateOnce inserts the attempt unless one already exists for its session,
// in which case ErrDuplicate is returned and nothing is written.
func (r *AttemptRepository) CreateOnce(ctx context.Context, a *model.TestAttempt) error {
	answers := a.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO test_attempts (session_id, user_id, test_id, score, earned_points, total_points,
		                            passed, expired, answers, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (session_id) DO NOTHING
		 RETURNING id`,
		a.SessionID, a.UserID, a.TestID, a.Score, a.EarnedPoints, a.TotalPoints,
		a.Passed, a.Expired, answers, a.StartedAt, a.CompletedAt,
	).Scan(&a.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: attempt for session %s", ErrDuplicate, a.SessionID)
	}
	return err
}

// GetByID retrieves an attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestAttempt, error) {
	a := &model.TestAttempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, session_id, user_id, test_id, score, earned_points, total_points,
		        passed, expired, answers, started_at, completed_at
		 FROM test_attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.SessionID, &a.UserID, &a.TestID, &a.Score, &a.EarnedPoints, &a.TotalPoints,
		&a.Passed, &a.Expired, &a.Answers, &a.StartedAt, &a.CompletedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

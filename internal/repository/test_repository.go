package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/certify-backend/internal/model"
)

// TestRepository reads test definitions and their questions.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test without its questions.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, time_limit_minutes, passing_score, status,
		        certificate_template, created_at, updated_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.TimeLimitMinutes, &t.PassingScore, &t.Status,
		&t.Template, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetWithQuestions retrieves a test and its questions in display order.
func (r *TestRepository) GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, question_text, question_type, options, correct_answer, points, order_num
		 FROM questions
		 WHERE test_id = $1
		 ORDER BY order_num, id`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &q.Type, &q.Options, &q.CorrectAnswer, &q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		t.Questions = append(t.Questions, q)
	}
	return t, rows.Err()
}

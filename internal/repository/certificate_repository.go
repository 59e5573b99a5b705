package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/certify-backend/internal/model"
)

const certificateColumns = `id, user_id, test_id, test_attempt_id, recipient_name, test_title, organization_name,
	score, proficiency_level, template_type, verification_code, issue_date, expiry_date, is_valid,
	file_path, download_count, view_count, email_sent, email_sent_at, custom_data, created_at`

// CertificateRepository handles certificate data access.
type CertificateRepository struct {
	pool *pgxpool.Pool
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

func scanCertificate(row pgx.Row) (*model.Certificate, error) {
	c := &model.Certificate{}
	err := row.Scan(&c.ID, &c.UserID, &c.TestID, &c.TestAttemptID, &c.RecipientName, &c.TestTitle, &c.OrganizationName,
		&c.Score, &c.ProficiencyLevel, &c.TemplateType, &c.VerificationCode, &c.IssueDate, &c.ExpiryDate, &c.IsValid,
		&c.FilePath, &c.DownloadCount, &c.ViewCount, &c.EmailSent, &c.EmailSentAt, &c.CustomData, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateWithAudit inserts the certificate and its GENERATED audit row in one transaction.
// Unique violations come back as ErrDuplicate (attempt) or ErrDuplicateCode (code).
func (r *CertificateRepository) CreateWithAudit(ctx context.Context, c *model.Certificate, entry *model.CertificateAuditLog) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO certificates (id, user_id, test_id, test_attempt_id, recipient_name, test_title, organization_name,
		                           score, proficiency_level, template_type, verification_code, issue_date, expiry_date,
		                           is_valid, file_path, custom_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE, $14, $15)
		 RETURNING created_at`,
		c.ID, c.UserID, c.TestID, c.TestAttemptID, c.RecipientName, c.TestTitle, c.OrganizationName,
		c.Score, c.ProficiencyLevel, c.TemplateType, c.VerificationCode, c.IssueDate, c.ExpiryDate,
		c.FilePath, jsonOrNil(c.CustomData),
	).Scan(&c.CreatedAt)
	if err != nil {
		return translate(err)
	}
	c.IsValid = true

	entry.CertificateID = c.ID
	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID retrieves a certificate.
func (r *CertificateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Certificate, error) {
	return scanCertificate(r.pool.QueryRow(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id))
}

// GetByCode retrieves a certificate by its verification code.
func (r *CertificateRepository) GetByCode(ctx context.Context, code string) (*model.Certificate, error) {
	return scanCertificate(r.pool.QueryRow(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE verification_code = $1`, code))
}

// ExistsForAttempt reports whether a certificate was already issued for the attempt.
func (r *CertificateRepository) ExistsForAttempt(ctx context.Context, attemptID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM certificates WHERE test_attempt_id = $1)`, attemptID,
	).Scan(&exists)
	return exists, err
}

// ListByUser lists a user's certificates, newest first.
func (r *CertificateRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Certificate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE user_id = $1 ORDER BY issue_date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	certs := []model.Certificate{}
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, *c)
	}
	return certs, rows.Err()
}

// RevokeWithAudit flips is_valid to false and records REVOKED atomically.
// ErrNotUpdated means the certificate was already revoked.
func (r *CertificateRepository) RevokeWithAudit(ctx context.Context, id uuid.UUID, entry *model.CertificateAuditLog) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE certificates SET is_valid = FALSE WHERE id = $1 AND is_valid`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotUpdated
	}

	entry.CertificateID = id
	if err := appendAudit(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IncrementViewCount bumps view_count and returns the new value.
func (r *CertificateRepository) IncrementViewCount(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`UPDATE certificates SET view_count = view_count + 1 WHERE id = $1 RETURNING view_count`, id,
	).Scan(&n)
	return n, err
}

// IncrementDownloadCount bumps download_count and returns the new value.
func (r *CertificateRepository) IncrementDownloadCount(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`UPDATE certificates SET download_count = download_count + 1 WHERE id = $1 RETURNING download_count`, id,
	).Scan(&n)
	return n, err
}

// MarkEmailed records a successful email delivery.
func (r *CertificateRepository) MarkEmailed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE certificates SET email_sent = TRUE, email_sent_at = $1 WHERE id = $2`, at, id)
	return err
}

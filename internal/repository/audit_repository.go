package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/certify-backend/internal/model"
)

// AuditRepository appends to and queries the certificate audit log.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func appendAudit(ctx context.Context, q queryRower, e *model.CertificateAuditLog) error {
	return q.QueryRow(ctx,
		`INSERT INTO certificate_audit_logs (certificate_id, action, performed_by, ip_address, user_agent, details)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		e.CertificateID, e.Action, e.PerformedBy, e.IPAddress, e.UserAgent, jsonOrNil(e.Details),
	).Scan(&e.ID, &e.CreatedAt)
}

// Append writes one audit row.
func (r *AuditRepository) Append(ctx context.Context, e *model.CertificateAuditLog) error {
	return appendAudit(ctx, r.pool, e)
}

// List returns a page of audit rows matching f, newest first, and the total match count.
func (r *AuditRepository) List(ctx context.Context, f model.AuditLogFilter) ([]model.CertificateAuditLog, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CertificateID != nil {
		add("certificate_id = $%d", *f.CertificateID)
	}
	if f.Action != nil {
		add("action = $%d", *f.Action)
	}
	if f.PerformedBy != nil {
		add("performed_by = $%d", *f.PerformedBy)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM certificate_audit_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(
		`SELECT id, certificate_id, action, performed_by, ip_address, user_agent, details, created_at
		 FROM certificate_audit_logs%s
		 ORDER BY created_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := []model.CertificateAuditLog{}
	for rows.Next() {
		var e model.CertificateAuditLog
		if err := rows.Scan(&e.ID, &e.CertificateID, &e.Action, &e.PerformedBy, &e.IPAddress, &e.UserAgent, &e.Details, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		logs = append(logs, e)
	}
	return logs, total, rows.Err()
}

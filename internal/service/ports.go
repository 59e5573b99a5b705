package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/render"
)

// Storage contracts consumed by the services. Missing rows are reported
// as pgx.ErrNoRows, matching the repository package.

type TestReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Test, error)
}

type SessionRecorder interface {
	Save(ctx context.Context, s *model.TestSession) error
	Get(ctx context.Context, id string) (*model.TestSession, error)
}

type AttemptStore interface {
	CreateOnce(ctx context.Context, a *model.TestAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.TestAttempt, error)
}

type CertificateStore interface {
	CreateWithAudit(ctx context.Context, c *model.Certificate, entry *model.CertificateAuditLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Certificate, error)
	GetByCode(ctx context.Context, code string) (*model.Certificate, error)
	ExistsForAttempt(ctx context.Context, attemptID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Certificate, error)
	RevokeWithAudit(ctx context.Context, id uuid.UUID, entry *model.CertificateAuditLog) error
	IncrementViewCount(ctx context.Context, id uuid.UUID) (int, error)
	IncrementDownloadCount(ctx context.Context, id uuid.UUID) (int, error)
	MarkEmailed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type AuditStore interface {
	Append(ctx context.Context, e *model.CertificateAuditLog) error
	List(ctx context.Context, f model.AuditLogFilter) ([]model.CertificateAuditLog, int, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// CheckpointPublisher queues session checkpoints for durable persistence.
type CheckpointPublisher interface {
	Publish(ctx context.Context, cp model.SessionCheckpoint) error
}

// CertificateIssuer issues the certificate for a freshly passed attempt.
type CertificateIssuer interface {
	IssueForAttempt(ctx context.Context, attempt *model.TestAttempt, actor Actor) (*GeneratedCertificate, error)
}

type Renderer interface {
	Render(ctx context.Context, doc render.Document) ([]byte, error)
}

// ArtifactStore holds rendered certificate files.
type ArtifactStore interface {
	Save(name string, data []byte) (string, error)
	Read(path string) ([]byte, error)
	Remove(path string) error
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// TemplateType selects the certificate layout.
type TemplateType string

const (
	TemplateStandard     TemplateType = "STANDARD"
	TemplateProfessional TemplateType = "PROFESSIONAL"
	TemplateAchievement  TemplateType = "ACHIEVEMENT"
)

// Certificate is an issued completion certificate.
type Certificate struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"user_id"`
	TestID           uuid.UUID      `json:"test_id"`
	TestAttemptID    uuid.UUID      `json:"test_attempt_id"`
	RecipientName    string         `json:"recipient_name"`
	TestTitle        string         `json:"test_title"`
	OrganizationName string         `json:"organization_name"`
	Score            int            `json:"score"`
	ProficiencyLevel string         `json:"proficiency_level"`
	TemplateType     TemplateType   `json:"template_type"`
	VerificationCode string         `json:"verification_code"`
	IssueDate        time.Time      `json:"issue_date"`
	ExpiryDate       *time.Time     `json:"expiry_date,omitempty"`
	IsValid          bool           `json:"is_valid"`
	FilePath         string         `json:"-"`
	DownloadCount    int            `json:"download_count"`
	ViewCount        int            `json:"view_count"`
	EmailSent        bool           `json:"email_sent"`
	EmailSentAt      *time.Time     `json:"email_sent_at,omitempty"`
	CustomData       map[string]any `json:"custom_data,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// PublicCertificate is the redacted view returned by public verification.
type PublicCertificate struct {
	RecipientName    string    `json:"recipient_name"`
	TestTitle        string    `json:"test_name"`
	Score            int       `json:"score"`
	ProficiencyLevel string    `json:"proficiency_level"`
	IssueDate        time.Time `json:"issue_date"`
	OrganizationName string    `json:"organization"`
}

// AuditAction enumerates the actions recorded against a certificate.
type AuditAction string

const (
	AuditGenerated  AuditAction = "GENERATED"
	AuditViewed     AuditAction = "VIEWED"
	AuditDownloaded AuditAction = "DOWNLOADED"
	AuditEmailed    AuditAction = "EMAILED"
	AuditVerified   AuditAction = "VERIFIED"
	AuditRevoked    AuditAction = "REVOKED"
	// AuditRestored exists for rows written by earlier releases; nothing emits it.
	AuditRestored AuditAction = "RESTORED"
)

// CertificateAuditLog is one append-only audit row.
type CertificateAuditLog struct {
	ID            int64          `json:"id"`
	CertificateID uuid.UUID      `json:"certificate_id"`
	Action        AuditAction    `json:"action"`
	PerformedBy   *uuid.UUID     `json:"performed_by"`
	IPAddress     string         `json:"ip_address"`
	UserAgent     string         `json:"user_agent"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AuditLogFilter selects audit rows for the admin audit view.
// Nil fields do not constrain the query.
type AuditLogFilter struct {
	CertificateID *uuid.UUID
	Action        *AuditAction
	PerformedBy   *uuid.UUID
	From          *time.Time
	To            *time.Time
	Page          int
	PerPage       int
}

// GenerateCertificateRequest is the payload for issuing a certificate.
type GenerateCertificateRequest struct {
	TestAttemptID    string         `json:"test_attempt_id" binding:"required,uuid"`
	TemplateType     string         `json:"template_type" binding:"omitempty,oneof=STANDARD PROFESSIONAL ACHIEVEMENT"`
	RecipientName    string         `json:"recipient_name" binding:"omitempty,min=2,max=255"`
	ProficiencyLevel string         `json:"proficiency_level" binding:"omitempty,max=50"`
	CustomData       map[string]any `json:"custom_data"`
}

// RevokeCertificateRequest is the payload for revoking a certificate.
type RevokeCertificateRequest struct {
	Reason string `json:"reason" binding:"required,notblank,min=3,max=500"`
}

// VerifyCertificateRequest is the payload for POST verification.
type VerifyCertificateRequest struct {
	Code string `json:"verification_code" binding:"required,max=64"`
}

// AuditLogQuery binds the admin audit log query string.
type AuditLogQuery struct {
	CertificateID string     `form:"certificate_id" binding:"omitempty,uuid"`
	Action        string     `form:"action" binding:"omitempty,oneof=GENERATED VIEWED DOWNLOADED EMAILED VERIFIED REVOKED RESTORED"`
	PerformedBy   string     `form:"performed_by" binding:"omitempty,uuid"`
	From          *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To            *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page          int        `form:"page" binding:"omitempty,min=1"`
	PerPage       int        `form:"per_page" binding:"omitempty,min=1,max=100"`
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/model"
)

// VerifyReason classifies a verification outcome.
type VerifyReason string

const (
	ReasonValid         VerifyReason = "valid"
	ReasonRevoked       VerifyReason = "revoked"
	ReasonExpired       VerifyReason = "expired"
	ReasonNotFound      VerifyReason = "not_found"
	ReasonInvalidFormat VerifyReason = "invalid_format"
)

var verifyMessages = map[VerifyReason]string{
	ReasonRevoked:       "Certificate has been revoked",
	ReasonExpired:       "Certificate has expired",
	ReasonNotFound:      "Certificate not found",
	ReasonInvalidFormat: "Invalid verification code format",
}

// VerifyResult is the outcome of checking a verification code.
type VerifyResult struct {
	IsValid     bool                     `json:"is_valid"`
	Reason      VerifyReason             `json:"reason"`
	Error       string                   `json:"error,omitempty"`
	Certificate *model.PublicCertificate `json:"certificate,omitempty"`
}

// IsExpired reports whether expiry has passed at now. No expiry never expires.
func IsExpired(expiry *time.Time, now time.Time) bool {
	return expiry != nil && !now.Before(*expiry)
}

type certificateLookup interface {
	GetByCode(ctx context.Context, code string) (*model.Certificate, error)
}

// VerificationService checks verification codes and writes the audit trail.
type VerificationService struct {
	certs certificateLookup
	audit AuditStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(certs certificateLookup, audit AuditStore, log zerolog.Logger) *VerificationService {
	return &VerificationService{
		certs: certs,
		audit: audit,
		log:   log.With().Str("component", "verification_service").Logger(),
		now:   time.Now,
	}
}

// Verify resolves code. Malformed codes are rejected without a lookup and
// unknown codes are not audited; every resolved code appends one VERIFIED row.
// The public view is only returned for valid certificates.
func (s *VerificationService) Verify(ctx context.Context, code string, actor Actor) (*VerifyResult, error) {
	normalized := NormalizeVerificationCode(code)
	if !ValidVerificationCode(normalized) {
		return failed(ReasonInvalidFormat), nil
	}

	cert, err := s.certs.GetByCode(ctx, normalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return failed(ReasonNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up certificate: %w", err)
	}

	reason := ReasonValid
	switch {
	case !cert.IsValid:
		reason = ReasonRevoked
	case s.IsExpired(cert.ExpiryDate):
		reason = ReasonExpired
	}

	if err := s.RecordAccess(ctx, cert.ID, model.AuditVerified, actor, map[string]any{
		"reason": string(reason),
	}); err != nil {
		return nil, err
	}

	if reason != ReasonValid {
		return failed(reason), nil
	}

	pub := &model.PublicCertificate{}
	if err := copier.Copy(pub, cert); err != nil {
		return nil, fmt.Errorf("build public view: %w", err)
	}
	return &VerifyResult{IsValid: true, Reason: ReasonValid, Certificate: pub}, nil
}

// RecordAccess appends one audit row. It never touches certificate counters.
func (s *VerificationService) RecordAccess(ctx context.Context, certificateID uuid.UUID, action model.AuditAction, actor Actor, details map[string]any) error {
	entry := &model.CertificateAuditLog{
		CertificateID: certificateID,
		Action:        action,
		PerformedBy:   actor.PerformedBy(),
		IPAddress:     actor.IPAddress,
		UserAgent:     actor.UserAgent,
		Details:       details,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return fmt.Errorf("append %s audit: %w", action, err)
	}
	return nil
}

// IsExpired is IsExpired at the service clock.
func (s *VerificationService) IsExpired(expiry *time.Time) bool {
	return IsExpired(expiry, s.now())
}

func failed(reason VerifyReason) *VerifyResult {
	return &VerifyResult{IsValid: false, Reason: reason, Error: verifyMessages[reason]}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/mail"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/render"
	"github.com/stemsi/certify-backend/internal/repository"
	"github.com/stemsi/certify-backend/internal/storage"
)

// maxCodeAttempts bounds retries when a fresh verification code collides.
const maxCodeAttempts = 3

// GenerateInput holds the optional overrides for issuing a certificate.
type GenerateInput struct {
	AttemptID        uuid.UUID
	TemplateType     model.TemplateType
	RecipientName    string
	ProficiencyLevel string
	CustomData       map[string]any
}

// GeneratedCertificate identifies a newly issued certificate.
type GeneratedCertificate struct {
	CertificateID    uuid.UUID `json:"certificate_id"`
	VerificationCode string    `json:"verification_code"`
	VerifyURL        string    `json:"verify_url"`
	FilePath         string    `json:"-"`
}

// CertificateOptions are the deployment settings used when issuing.
type CertificateOptions struct {
	OrganizationName string
	VerifyBaseURL    string
	// Validity of zero issues certificates without an expiry date.
	Validity time.Duration
}

// CertificateService issues certificates and serves owner/admin access to them.
type CertificateService struct {
	certs    CertificateStore
	attempts AttemptStore
	tests    TestReader
	users    UserReader
	audit    AuditStore
	verifier *VerificationService
	renderer Renderer
	files    ArtifactStore
	mailer   mail.Dispatcher
	opts     CertificateOptions
	log      zerolog.Logger
	now      func() time.Time
}

// NewCertificateService creates a new CertificateService.
func NewCertificateService(
	certs CertificateStore,
	attempts AttemptStore,
	tests TestReader,
	users UserReader,
	audit AuditStore,
	verifier *VerificationService,
	renderer Renderer,
	files ArtifactStore,
	mailer mail.Dispatcher,
	opts CertificateOptions,
	log zerolog.Logger,
) *CertificateService {
	return &CertificateService{
		certs:    certs,
		attempts: attempts,
		tests:    tests,
		users:    users,
		audit:    audit,
		verifier: verifier,
		renderer: renderer,
		files:    files,
		mailer:   mailer,
		opts:     opts,
		log:      log.With().Str("component", "certificate_service").Logger(),
		now:      time.Now,
	}
}

// VerifyURL is the public page encoded in the certificate QR code.
func (s *CertificateService) VerifyURL(code string) string {
	return s.opts.VerifyBaseURL + "/" + code
}

// ----------------------------------------------------------------
// Issuance
// ----------------------------------------------------------------

// GenerateCertificate issues the certificate for a passed attempt owned by the actor.
func (s *CertificateService) GenerateCertificate(ctx context.Context, in GenerateInput, actor Actor) (*GeneratedCertificate, error) {
	attempt, err := s.attempts.GetByID(ctx, in.AttemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if !actor.System && !actor.CanAccess(attempt.UserID) {
		return nil, ErrForbidden
	}
	return s.issue(ctx, attempt, in, actor)
}

// IssueForAttempt issues with default settings, as done right after a passing submit.
func (s *CertificateService) IssueForAttempt(ctx context.Context, attempt *model.TestAttempt, actor Actor) (*GeneratedCertificate, error) {
	return s.issue(ctx, attempt, GenerateInput{AttemptID: attempt.ID}, actor)
}

func (s *CertificateService) issue(ctx context.Context, attempt *model.TestAttempt, in GenerateInput, actor Actor) (*GeneratedCertificate, error) {
	if !attempt.Passed {
		return nil, ErrNotPassed
	}
	exists, err := s.certs.ExistsForAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing certificate: %w", err)
	}
	if exists {
		return nil, ErrAlreadyIssued
	}

	test, err := s.tests.GetByID(ctx, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	recipient := in.RecipientName
	if recipient == "" {
		user, err := s.users.GetByID(ctx, attempt.UserID)
		if err != nil {
			return nil, fmt.Errorf("load recipient: %w", err)
		}
		recipient = user.Name
	}

	template := in.TemplateType
	if template == "" {
		template = test.Template
	}
	if template == "" {
		template = model.TemplateStandard
	}
	proficiency := in.ProficiencyLevel
	if proficiency == "" {
		proficiency = ProficiencyFor(attempt.Score)
	}

	issued := s.now().UTC()
	var expiry *time.Time
	if s.opts.Validity > 0 {
		e := issued.Add(s.opts.Validity)
		expiry = &e
	}

	cert := &model.Certificate{
		ID:               uuid.New(),
		UserID:           attempt.UserID,
		TestID:           attempt.TestID,
		TestAttemptID:    attempt.ID,
		RecipientName:    recipient,
		TestTitle:        test.Title,
		OrganizationName: s.opts.OrganizationName,
		Score:            attempt.Score,
		ProficiencyLevel: proficiency,
		TemplateType:     template,
		IssueDate:        issued,
		ExpiryDate:       expiry,
		IsValid:          true,
		CustomData:       in.CustomData,
	}

	for try := 1; try <= maxCodeAttempts; try++ {
		code, err := NewVerificationCode()
		if err != nil {
			return nil, err
		}
		cert.VerificationCode = code

		// The file is written before the row so a committed certificate always has one.
		path, err := s.renderAndStore(ctx, cert)
		if err != nil {
			return nil, err
		}
		cert.FilePath = path

		entry := &model.CertificateAuditLog{
			Action:      model.AuditGenerated,
			PerformedBy: actor.PerformedBy(),
			IPAddress:   actor.IPAddress,
			UserAgent:   actor.UserAgent,
			Details: map[string]any{
				"test_attempt_id": attempt.ID.String(),
				"score":           attempt.Score,
				"template_type":   string(template),
			},
		}

		err = s.certs.CreateWithAudit(ctx, cert, entry)
		if err == nil {
			s.log.Info().
				Str("certificate_id", cert.ID.String()).
				Str("attempt_id", attempt.ID.String()).
				Int("score", cert.Score).
				Msg("Certificate issued")
			return &GeneratedCertificate{
				CertificateID:    cert.ID,
				VerificationCode: code,
				VerifyURL:        s.VerifyURL(code),
				FilePath:         path,
			}, nil
		}

		if rmErr := s.files.Remove(path); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove orphaned certificate file")
		}
		switch {
		case errors.Is(err, repository.ErrDuplicateCode):
			s.log.Warn().Int("try", try).Msg("Verification code collision, retrying")
			continue
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrAlreadyIssued
		default:
			return nil, fmt.Errorf("store certificate: %w", err)
		}
	}
	return nil, fmt.Errorf("no unique verification code after %d tries", maxCodeAttempts)
}

func (s *CertificateService) renderAndStore(ctx context.Context, cert *model.Certificate) (string, error) {
	pdf, err := s.renderer.Render(ctx, render.Document{
		RecipientName:    cert.RecipientName,
		TestTitle:        cert.TestTitle,
		OrganizationName: cert.OrganizationName,
		Score:            cert.Score,
		ProficiencyLevel: cert.ProficiencyLevel,
		Template:         cert.TemplateType,
		VerificationCode: cert.VerificationCode,
		VerifyURL:        s.VerifyURL(cert.VerificationCode),
		IssueDate:        cert.IssueDate,
		ExpiryDate:       cert.ExpiryDate,
	})
	if err != nil {
		return "", fmt.Errorf("render certificate: %w", err)
	}
	path, err := s.files.Save(cert.ID.String()+".pdf", pdf)
	if err != nil {
		return "", fmt.Errorf("save certificate file: %w", err)
	}
	return path, nil
}

// ----------------------------------------------------------------
// Revocation
// ----------------------------------------------------------------

// Revoke permanently invalidates a certificate. The row and file are kept.
func (s *CertificateService) Revoke(ctx context.Context, certificateID uuid.UUID, reason string, actor Actor) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	cert, err := s.load(ctx, certificateID)
	if err != nil {
		return err
	}
	if !cert.IsValid {
		return ErrAlreadyRevoked
	}

	entry := &model.CertificateAuditLog{
		Action:      model.AuditRevoked,
		PerformedBy: actor.PerformedBy(),
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		Details:     map[string]any{"reason": reason},
	}
	if err := s.certs.RevokeWithAudit(ctx, certificateID, entry); err != nil {
		if errors.Is(err, repository.ErrNotUpdated) {
			return ErrAlreadyRevoked
		}
		return fmt.Errorf("revoke certificate: %w", err)
	}

	s.log.Info().
		Str("certificate_id", certificateID.String()).
		Str("revoked_by", actor.UserID.String()).
		Msg("Certificate revoked")
	return nil
}

// ----------------------------------------------------------------
// Access
// ----------------------------------------------------------------

// View returns the certificate to its owner or an admin, counting the view.
func (s *CertificateService) View(ctx context.Context, certificateID uuid.UUID, actor Actor) (*model.Certificate, error) {
	cert, err := s.loadFor(ctx, certificateID, actor)
	if err != nil {
		return nil, err
	}

	n, err := s.certs.IncrementViewCount(ctx, cert.ID)
	if err != nil {
		return nil, fmt.Errorf("count view: %w", err)
	}
	cert.ViewCount = n

	if err := s.verifier.RecordAccess(ctx, cert.ID, model.AuditViewed, actor, nil); err != nil {
		return nil, err
	}
	return cert, nil
}

// Download returns the PDF of a valid certificate, counting the download.
func (s *CertificateService) Download(ctx context.Context, certificateID uuid.UUID, actor Actor) (*model.Certificate, []byte, error) {
	cert, err := s.loadFor(ctx, certificateID, actor)
	if err != nil {
		return nil, nil, err
	}
	if !cert.IsValid {
		return nil, nil, ErrCertificateRevoked
	}
	if s.verifier.IsExpired(cert.ExpiryDate) {
		return nil, nil, ErrCertificateExpired
	}

	pdf, err := s.files.Read(cert.FilePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrCertificateFileMissing
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read certificate file: %w", err)
	}

	n, err := s.certs.IncrementDownloadCount(ctx, cert.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("count download: %w", err)
	}
	cert.DownloadCount = n

	if err := s.verifier.RecordAccess(ctx, cert.ID, model.AuditDownloaded, actor, nil); err != nil {
		return nil, nil, err
	}
	return cert, pdf, nil
}

// Email sends the certificate PDF to its owner's address. Nothing is recorded on failure.
func (s *CertificateService) Email(ctx context.Context, certificateID uuid.UUID, actor Actor) error {
	cert, err := s.loadFor(ctx, certificateID, actor)
	if err != nil {
		return err
	}
	if !cert.IsValid {
		return ErrCertificateRevoked
	}

	owner, err := s.users.GetByID(ctx, cert.UserID)
	if err != nil {
		return fmt.Errorf("load certificate owner: %w", err)
	}
	pdf, err := s.files.Read(cert.FilePath)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrCertificateFileMissing
	}
	if err != nil {
		return fmt.Errorf("read certificate file: %w", err)
	}

	msg, err := mail.NewCertificateMessage(mail.CertificateEmail{
		To:               mail.Address{Name: cert.RecipientName, Email: owner.Email},
		TestTitle:        cert.TestTitle,
		Score:            cert.Score,
		ProficiencyLevel: cert.ProficiencyLevel,
		VerificationCode: cert.VerificationCode,
		VerifyURL:        s.VerifyURL(cert.VerificationCode),
		OrganizationName: cert.OrganizationName,
		IssueDate:        cert.IssueDate,
		PDF:              pdf,
	})
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("certificate_id", cert.ID.String()).Msg("Certificate email failed")
		return fmt.Errorf("%w: %v", ErrEmailFailed, err)
	}

	if err := s.certs.MarkEmailed(ctx, cert.ID, s.now()); err != nil {
		return fmt.Errorf("mark emailed: %w", err)
	}
	return s.verifier.RecordAccess(ctx, cert.ID, model.AuditEmailed, actor, map[string]any{
		"recipient": owner.Email,
	})
}

// ListMine lists the actor's own certificates.
func (s *CertificateService) ListMine(ctx context.Context, actor Actor) ([]model.Certificate, error) {
	return s.certs.ListByUser(ctx, actor.UserID)
}

// ListAuditLogs pages through the audit log. Admins only.
func (s *CertificateService) ListAuditLogs(ctx context.Context, f model.AuditLogFilter, actor Actor) ([]model.CertificateAuditLog, int, error) {
	if !actor.IsAdmin() {
		return nil, 0, ErrForbidden
	}
	return s.audit.List(ctx, f)
}

func (s *CertificateService) load(ctx context.Context, id uuid.UUID) (*model.Certificate, error) {
	cert, err := s.certs.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCertificateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return cert, nil
}

func (s *CertificateService) loadFor(ctx context.Context, id uuid.UUID, actor Actor) (*model.Certificate, error) {
	cert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(cert.UserID) {
		return nil, ErrForbidden
	}
	return cert, nil
}

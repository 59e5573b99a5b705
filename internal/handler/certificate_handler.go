package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/middleware"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/response"
	"github.com/stemsi/certify-backend/internal/service"
	"github.com/stemsi/certify-backend/internal/validator"
)

// Certificates is the part of service.CertificateService exposed over HTTP.
type Certificates interface {
	GenerateCertificate(ctx context.Context, in service.GenerateInput, actor service.Actor) (*service.GeneratedCertificate, error)
	Revoke(ctx context.Context, certificateID uuid.UUID, reason string, actor service.Actor) error
	View(ctx context.Context, certificateID uuid.UUID, actor service.Actor) (*model.Certificate, error)
	Download(ctx context.Context, certificateID uuid.UUID, actor service.Actor) (*model.Certificate, []byte, error)
	Email(ctx context.Context, certificateID uuid.UUID, actor service.Actor) error
	ListMine(ctx context.Context, actor service.Actor) ([]model.Certificate, error)
	ListAuditLogs(ctx context.Context, f model.AuditLogFilter, actor service.Actor) ([]model.CertificateAuditLog, int, error)
}

// CertificateHandler handles certificate issuance and owner/admin access.
type CertificateHandler struct {
	certs Certificates
	log   zerolog.Logger
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(certs Certificates, log zerolog.Logger) *CertificateHandler {
	return &CertificateHandler{
		certs: certs,
		log:   log.With().Str("component", "certificate_handler").Logger(),
	}
}

// Generate godoc
// POST /api/v1/certificates
// Issues the certificate for a passed attempt.
func (h *CertificateHandler) Generate(c *gin.Context) {
	var req model.GenerateCertificateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	gen, err := h.certs.GenerateCertificate(c.Request.Context(), service.GenerateInput{
		AttemptID:        uuid.MustParse(req.TestAttemptID),
		TemplateType:     model.TemplateType(req.TemplateType),
		RecipientName:    req.RecipientName,
		ProficiencyLevel: req.ProficiencyLevel,
		CustomData:       req.CustomData,
	}, middleware.Actor(c))
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"certificate_id":    gen.CertificateID,
		"verification_code": gen.VerificationCode,
		"verify_url":        gen.VerifyURL,
		"download_url":      fmt.Sprintf("/api/v1/certificates/%s/download", gen.CertificateID),
	})
}

// ListMine godoc
// GET /api/v1/certificates
func (h *CertificateHandler) ListMine(c *gin.Context) {
	certs, err := h.certs.ListMine(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		failWithError(c, h.log, err)
		return
	}
	if certs == nil {
		certs = []model.Certificate{}
	}

	response.Success(c, http.StatusOK, gin.H{"certificates": certs})
}

// GetCertificate godoc
// GET /api/v1/certificates/:id
func (h *CertificateHandler) GetCertificate(c *gin.Context) {
	id, ok := certificateID(c)
	if !ok {
		return
	}

	cert, err := h.certs.View(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"certificate": cert})
}

// Download godoc
// GET /api/v1/certificates/:id/download
// Streams the PDF. Revoked or expired certificates answer 410.
func (h *CertificateHandler) Download(c *gin.Context) {
	id, ok := certificateID(c)
	if !ok {
		return
	}

	cert, pdf, err := h.certs.Download(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="certificate-%s.pdf"`, cert.VerificationCode))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Email godoc
// POST /api/v1/certificates/:id/email
func (h *CertificateHandler) Email(c *gin.Context) {
	id, ok := certificateID(c)
	if !ok {
		return
	}

	if err := h.certs.Email(c.Request.Context(), id, middleware.Actor(c)); err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"email_sent": true})
}

// Revoke godoc
// POST /api/v1/admin/certificates/:id/revoke
func (h *CertificateHandler) Revoke(c *gin.Context) {
	id, ok := certificateID(c)
	if !ok {
		return
	}

	var req model.RevokeCertificateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.certs.Revoke(c.Request.Context(), id, req.Reason, middleware.Actor(c)); err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"certificate_id": id, "is_valid": false})
}

// AuditLogs godoc
// GET /api/v1/admin/certificates/audit-logs
// Pages through the audit trail with typed filters.
func (h *CertificateHandler) AuditLogs(c *gin.Context) {
	var q model.AuditLogQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	f := auditFilter(q)
	rows, total, err := h.certs.ListAuditLogs(c.Request.Context(), f, middleware.Actor(c))
	if err != nil {
		failWithError(c, h.log, err)
		return
	}
	if rows == nil {
		rows = []model.CertificateAuditLog{}
	}

	response.SuccessWithPagination(c, http.StatusOK, rows, response.NewPagination(f.Page, f.PerPage, total))
}

// auditFilter converts the validated query into the repository filter.
func auditFilter(q model.AuditLogQuery) model.AuditLogFilter {
	f := model.AuditLogFilter{From: q.From, To: q.To, Page: q.Page, PerPage: q.PerPage}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if id, err := uuid.Parse(q.CertificateID); err == nil {
		f.CertificateID = &id
	}
	if id, err := uuid.Parse(q.PerformedBy); err == nil {
		f.PerformedBy = &id
	}
	if q.Action != "" {
		a := model.AuditAction(q.Action)
		f.Action = &a
	}
	return f
}

func certificateID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

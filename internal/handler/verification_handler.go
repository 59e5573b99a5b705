package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/middleware"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/response"
	"github.com/stemsi/certify-backend/internal/service"
	"github.com/stemsi/certify-backend/internal/validator"
)

// Verifier resolves public verification codes.
type Verifier interface {
	Verify(ctx context.Context, code string, actor service.Actor) (*service.VerifyResult, error)
}

// VerificationHandler serves public certificate verification.
type VerificationHandler struct {
	verifier Verifier
	log      zerolog.Logger
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(verifier Verifier, log zerolog.Logger) *VerificationHandler {
	return &VerificationHandler{
		verifier: verifier,
		log:      log.With().Str("component", "verification_handler").Logger(),
	}
}

// VerifyByPath godoc
// GET /api/v1/public/verify/:code
func (h *VerificationHandler) VerifyByPath(c *gin.Context) {
	verifyAndRespond(c, h.verifier, h.log, c.Param("code"))
}

// VerifyByBody godoc
// POST /api/v1/public/verify
func (h *VerificationHandler) VerifyByBody(c *gin.Context) {
	var req model.VerifyCertificateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	verifyAndRespond(c, h.verifier, h.log, req.Code)
}

// verifyAndRespond is shared by both verification routes. Found certificates
// answer 200 whether valid or not; unknown codes 404; malformed codes 400.
func verifyAndRespond(c *gin.Context, v Verifier, log zerolog.Logger, code string) {
	res, err := v.Verify(c.Request.Context(), code, middleware.Actor(c))
	if err != nil {
		failWithError(c, log, err)
		return
	}

	switch res.Reason {
	case service.ReasonInvalidFormat:
		response.FailWithData(c, http.StatusBadRequest, response.ErrInvalidVerificationCode, res.Error, res)
	case service.ReasonNotFound:
		response.FailWithData(c, http.StatusNotFound, response.ErrCertificateNotFound, res.Error, res)
	default:
		response.Success(c, http.StatusOK, res)
	}
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/response"
	"github.com/stemsi/certify-backend/internal/service"
)

type errorMapping struct {
	err    error
	status int
	code   response.ErrCode
}

// serviceErrors maps service sentinels to HTTP responses. Order matters only
// for wrapped errors that match more than one entry.
var serviceErrors = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrForbidden, http.StatusForbidden, response.ErrForbidden},

	{service.ErrTestNotFound, http.StatusNotFound, response.ErrTestNotFound},
	{service.ErrTestUnavailable, http.StatusGone, response.ErrTestNotAvailable},
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrSessionClosed, http.StatusConflict, response.ErrSessionClosed},
	{service.ErrSessionNotActive, http.StatusConflict, response.ErrSessionNotActive},
	{service.ErrSessionExpired, http.StatusGone, response.ErrSessionExpired},
	{service.ErrSessionNotExpired, http.StatusConflict, response.ErrConflict},
	{service.ErrOutOfRange, http.StatusBadRequest, response.ErrQuestionOutOfRange},
	{service.ErrUnknownQuestion, http.StatusBadRequest, response.ErrUnknownQuestion},
	{service.ErrSessionCapacity, http.StatusServiceUnavailable, response.ErrSessionCapacity},

	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
	{service.ErrNotPassed, http.StatusBadRequest, response.ErrAttemptNotPassed},
	{service.ErrAlreadyIssued, http.StatusConflict, response.ErrCertificateAlreadyIssued},
	{service.ErrCertificateNotFound, http.StatusNotFound, response.ErrCertificateNotFound},
	{service.ErrCertificateRevoked, http.StatusGone, response.ErrCertificateRevoked},
	{service.ErrCertificateExpired, http.StatusGone, response.ErrCertificateExpired},
	{service.ErrAlreadyRevoked, http.StatusConflict, response.ErrCertificateAlreadyRevoked},
	{service.ErrCertificateFileMissing, http.StatusInternalServerError, response.ErrCertificateFileMissing},
	{service.ErrEmailFailed, http.StatusInternalServerError, response.ErrEmailFailed},
}

// classify returns the status and code for a service error.
func classify(err error) (int, response.ErrCode, bool) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code, true
		}
	}
	return http.StatusInternalServerError, response.ErrInternal, false
}

// failWithError writes the response for err. Unmapped errors are logged and
// reported as INTERNAL_ERROR without leaking details.
func failWithError(c *gin.Context, log zerolog.Logger, err error) {
	if status, code, ok := classify(err); ok {
		response.Fail(c, status, code)
		return
	}

	log.Error().Err(err).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Msg("Request failed")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

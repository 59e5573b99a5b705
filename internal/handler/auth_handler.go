package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/middleware"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/response"
	"github.com/stemsi/certify-backend/internal/service"
	"github.com/stemsi/certify-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/auth/login
// Exchanges email and password for a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Me godoc
// GET /api/v1/auth/me
// Returns the profile of the signed-in user.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.authService.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

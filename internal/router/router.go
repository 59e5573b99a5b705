package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/certify-backend/internal/config"
	"github.com/stemsi/certify-backend/internal/handler"
	"github.com/stemsi/certify-backend/internal/middleware"
	"github.com/stemsi/certify-backend/internal/response"
	"github.com/stemsi/certify-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth         *handler.AuthHandler
	TestSession  *handler.TestSessionHandler
	Certificate  *handler.CertificateHandler
	Verification *handler.VerificationHandler
	WS           *handler.WSHandler
	Health       *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the background goroutines owned by route middlewares.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.Health.Health)

	// ─── 0. Public Group (No Auth, Rate Limited) ───────────────────────
	verifyLimiter := middleware.NewRateLimiter(ctx, cfg.VerifyRateLimit, time.Minute)
	publicAPI := router.Group("/api/v1/public")
	publicAPI.Use(verifyLimiter.Middleware(), middleware.OptionalAuth(authService))
	{
		publicAPI.GET("/verify/:code", handlers.Verification.VerifyByPath)
		publicAPI.POST("/verify", handlers.Verification.VerifyByBody)
	}

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	loginLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute)
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", loginLimiter.Middleware(), handlers.Auth.Login)
		auth.GET("/me", middleware.RequireAuth(authService), handlers.Auth.Me)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(authService), middleware.NoStore())

	// ─── 2. Test Sessions ──────────────────────────────────────────────
	api.POST("/tests/:test_id/sessions", handlers.TestSession.StartSession)
	sessions := api.Group("/sessions/:session_id")
	{
		sessions.GET("", handlers.TestSession.GetSession)
		sessions.POST("/resume", handlers.TestSession.ResumeSession)
		sessions.POST("/pause", handlers.TestSession.PauseSession)
		sessions.PUT("/answers", handlers.TestSession.SaveAnswer)
		sessions.POST("/next", handlers.TestSession.NextQuestion)
		sessions.POST("/previous", handlers.TestSession.PreviousQuestion)
		sessions.POST("/goto", handlers.TestSession.GoToQuestion)
		sessions.POST("/flag", handlers.TestSession.ToggleFlag)
		sessions.POST("/submit", handlers.TestSession.SubmitSession)
	}

	// ─── 3. Certificates ───────────────────────────────────────────────
	certificates := api.Group("/certificates")
	{
		certificates.POST("", handlers.Certificate.Generate)
		certificates.GET("", handlers.Certificate.ListMine)
		certificates.GET("/:id", handlers.Certificate.GetCertificate)
		certificates.GET("/:id/download", handlers.Certificate.Download)
		certificates.POST("/:id/email", handlers.Certificate.Email)
	}

	// ─── 4. Admin Group (JWT + Role) ───────────────────────────────────
	adminAPI := api.Group("/admin")
	adminAPI.Use(middleware.RequireAdmin())
	{
		adminAPI.POST("/certificates/:id/revoke", handlers.Certificate.Revoke)
		adminAPI.GET("/certificates/audit-logs", handlers.Certificate.AuditLogs)
	}

	// ─── 5. WebSocket Group (Query Token Auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}

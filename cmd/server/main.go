package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/config"
	"github.com/stemsi/certify-backend/internal/database"
	"github.com/stemsi/certify-backend/internal/grading"
	"github.com/stemsi/certify-backend/internal/handler"
	"github.com/stemsi/certify-backend/internal/logger"
	"github.com/stemsi/certify-backend/internal/mail"
	"github.com/stemsi/certify-backend/internal/render"
	"github.com/stemsi/certify-backend/internal/repository"
	"github.com/stemsi/certify-backend/internal/router"
	"github.com/stemsi/certify-backend/internal/service"
	"github.com/stemsi/certify-backend/internal/session"
	"github.com/stemsi/certify-backend/internal/storage"
	"github.com/stemsi/certify-backend/internal/validator"
	"github.com/stemsi/certify-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("session_store", cfg.SessionStore).
		Msg("Starting Certify Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	certRepo := repository.NewCertificateRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	// ─── Session Store ─────────────────────────────────────────────────
	var store session.Store
	switch cfg.SessionStore {
	case "memory":
		store = session.NewMemoryStore(cfg.SessionCapacity, cfg.SessionGrace)
	default:
		store = session.NewRedisStore(rdb, cfg.SessionGrace, log)
	}

	// ─── Grading ───────────────────────────────────────────────────────
	var essay grading.EssayGrader
	if cfg.GeminiAPIKey != "" {
		gemini, err := grading.NewGeminiEssayGrader(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini unavailable, essays will score zero")
		} else {
			defer gemini.Close()
			essay = gemini
		}
	}
	grader := grading.New(essay, log)

	// ─── Certificate Artifacts ─────────────────────────────────────────
	files, err := storage.NewLocalDisk(cfg.CertificateDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.CertificateDir).Msg("Failed to prepare certificate directory")
	}

	var mailer mail.Dispatcher
	if cfg.SendGridAPIKey != "" {
		mailer = mail.NewSendGridDispatcher(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFromAddress, log)
	} else {
		log.Warn().Msg("SENDGRID_API_KEY not set, certificate emails are only logged")
		mailer = mail.NewLogDispatcher(log)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo)
	verificationService := service.NewVerificationService(certRepo, auditRepo, log)
	certificateService := service.NewCertificateService(
		certRepo, attemptRepo, testRepo, userRepo, auditRepo,
		verificationService,
		render.NewPDFRenderer(),
		files,
		mailer,
		service.CertificateOptions{
			OrganizationName: cfg.OrganizationName,
			VerifyBaseURL:    cfg.VerifyBaseURL,
			Validity:         cfg.CertificateValidity,
		},
		log,
	)
	checkpointQueue := worker.NewCheckpointQueue(rdb)
	sessionService := service.NewTestSessionService(
		testRepo, sessionRepo, attemptRepo,
		store, checkpointQueue,
		grader, certificateService,
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:         handler.NewAuthHandler(authService, log),
		TestSession:  handler.NewTestSessionHandler(sessionService, log),
		Certificate:  handler.NewCertificateHandler(certificateService, log),
		Verification: handler.NewVerificationHandler(verificationService, log),
		WS:           handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Health: handler.NewHealthHandler(map[string]handler.Probe{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	checkpointWorker := worker.NewCheckpointWorker(sessionRepo, rdb, log)
	sweeper := worker.NewSessionSweeper(sessionService, cfg.SweepInterval, log)

	workers.Add(2)
	go func() {
		defer workers.Done()
		checkpointWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		sweeper.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the checkpoint queue to drain.
	workerCancel()
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

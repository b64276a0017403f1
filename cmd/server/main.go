// Command server is the entrypoint for the counsel backend API.
//
// Startup order:
//  1. Load .env (best effort) and environment configuration
//  2. Configure zerolog (level, optional pretty console output)
//  3. Initialize OpenTelemetry tracing (optional)
//  4. Open SQLite, run migrations
//  5. Construct services, notification hub, and the Gin router
//  6. Serve until SIGINT/SIGTERM, then drain gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-counsel-backend/internal/ai"
	"github.com/tbourn/go-counsel-backend/internal/auth"
	"github.com/tbourn/go-counsel-backend/internal/config"
	httpapi "github.com/tbourn/go-counsel-backend/internal/http"
	"github.com/tbourn/go-counsel-backend/internal/notify"
	"github.com/tbourn/go-counsel-backend/internal/observability"
	"github.com/tbourn/go-counsel-backend/internal/repo"
	"github.com/tbourn/go-counsel-backend/internal/services"
	"github.com/tbourn/go-counsel-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments configure via the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	hub := notify.NewHub()
	hub.SendBudget = cfg.SSE.SendBudget

	authSvc := services.NewAuthService(db, tokens)
	counselSvc := services.NewCounselService(db)
	aiClient := ai.NewClient(cfg.AI.BaseURL)
	analysisSvc := services.NewAnalysisService(counselSvc, aiClient, hub)
	analysisSvc.AnalyzeTimeout = cfg.AI.AnalyzeTimeout
	analysisSvc.QuestionTimeout = cfg.AI.QuestionTimeout
	idemSvc := services.NewIdempotencyService(db)
	idemSvc.TTL = cfg.IdempotencyTTL

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Tokens:   tokens,
		Hub:      hub,
		Auth:     authSvc,
		Counsels: counselSvc,
		Analysis: analysisSvc,
		Idem:     idemSvc,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("server drain failed")
	}

	// Close open event streams after the listener stops accepting.
	hub.Close()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(drainCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("bye")
}

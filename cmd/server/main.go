// Command server runs the insurance intake HTTP API.
//
// It loads configuration from the environment (with optional .env support),
// opens the SQLite registration store, configures logging and OpenTelemetry,
// builds the LLM backend chain, and serves the Gin router with graceful
// shutdown.
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

	_ "github.com/tbourn/go-insurance-intake/docs"
	"github.com/tbourn/go-insurance-intake/internal/config"
	httpapi "github.com/tbourn/go-insurance-intake/internal/http"
	"github.com/tbourn/go-insurance-intake/internal/llm"
	"github.com/tbourn/go-insurance-intake/internal/observability"
	"github.com/tbourn/go-insurance-intake/internal/repo"
	"github.com/tbourn/go-insurance-intake/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// @title        Insurance Intake API
// @version      1.0
// @description  Conversational car insurance registration API with duplicate detection.
// @BasePath     /api/v1
func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	backends := make([]llm.Backend, 0, len(cfg.LLM.Backends))
	for _, b := range cfg.LLM.Backends {
		backend, err := llm.NewOpenAIBackend(llm.OpenAIConfig{
			Name:        b.Name,
			BaseURL:     b.BaseURL,
			APIKey:      b.APIKey,
			Model:       b.Model,
			Timeout:     cfg.LLM.Timeout,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
		if err != nil {
			log.Fatal().Err(err).Str("backend", b.Name).Msg("backend construction failed")
		}
		backends = append(backends, backend)
	}
	router, err := llm.NewRouter(llm.RouterConfig{
		MaxRetries:  cfg.LLM.MaxRetries,
		BackoffBase: cfg.LLM.BackoffBase,
	}, backends...)
	if err != nil {
		log.Fatal().Err(err).Msg("llm router construction failed")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, router, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

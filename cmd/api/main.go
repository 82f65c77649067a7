// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/app"
	"github.com/capitalize-ai/data-question-platform/internal/config"
	"github.com/capitalize-ai/data-question-platform/internal/handler"
	"github.com/capitalize-ai/data-question-platform/internal/middleware"
	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
	"github.com/capitalize-ai/data-question-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "data-question-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	components, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// Answer questions arriving over NATS
	if components.Streams != nil {
		cc, err := components.Streams.ConsumeQuestions(ctx, func(ctx context.Context, ev model.QuestionEvent) error {
			_, err := components.Questions.Ask(ctx, ev)
			return err
		})
		if err != nil {
			log.Fatal("failed to consume questions", zap.Error(err))
		}
		defer cc.Stop()
	}

	// Initialize handlers
	var broker handler.Pinger
	if components.NATS != nil {
		broker = components.NATS
	}
	healthHandler := handler.NewHealthHandler(components.Source, broker)
	questionHandler := handler.NewQuestionHandler(components.Questions, log)
	streamHandler := handler.NewStreamHandler(components.Questions, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RequiredScope != "" {
			r.Use(middleware.RequireScope(cfg.RequiredScope))
		}
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Questions hit the model, so each user gets a tighter budget
		r.Group(func(r chi.Router) {
			r.Use(middleware.UserRateLimit(cfg.UserRateLimitRequests, cfg.RateLimitWindow))
			r.Post("/questions", questionHandler.Ask)
			r.Post("/questions/stream", streamHandler.StreamQuestion)
		})

		r.Get("/conversations/{threadId}/history", questionHandler.History)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// AutoPDF - PDF reader with narration and agent chat
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/autopdf/internal/agent"
	"github.com/ashureev/autopdf/internal/api"
	"github.com/ashureev/autopdf/internal/config"
	"github.com/ashureev/autopdf/internal/document"
	"github.com/ashureev/autopdf/internal/health"
	"github.com/ashureev/autopdf/internal/identity"
	"github.com/ashureev/autopdf/internal/metrics"
	"github.com/ashureev/autopdf/internal/middleware"
	"github.com/ashureev/autopdf/internal/narration"
	"github.com/ashureev/autopdf/internal/playai"
	"github.com/ashureev/autopdf/internal/store"
	"github.com/ashureev/autopdf/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"store", cfg.Store.Driver,
		"agents_enabled", cfg.PlayAI.Enabled(),
		"narration_enabled", cfg.PlayHT.Enabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	openCtx, cancelOpen := context.WithTimeout(ctx, 15*time.Second)
	repo, err := store.Open(openCtx, cfg.Store)
	cancelOpen()
	if err != nil {
		slog.Error("Failed to initialize agent store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Agent store connected", "driver", cfg.Store.Driver)

	conversationLogger, err := agent.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	playAI := playai.NewClient(cfg.PlayAI)
	documents := document.NewCache()
	narrator := narration.NewNarrator()
	relays := agent.NewRelayManager()
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)

	document.StartReaper(ctx, documents, cfg.DocumentTTL, cfg.ReaperInterval, func(string) {
		metrics.DocumentsEvicted.Inc()
	})

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg)
	documentHandler := api.NewDocumentHandler(documents, cfg.MaxUploadBytes)
	narrationHandler := api.NewNarrationHandler(narration.NewPlayHT(cfg.PlayHT), narrator, documents, limiter.Middleware)
	agentHandler := agent.NewHandler(playAI, repo, limiter.Middleware)
	relay := agent.NewRelay(playAI, playAI.APIKey(), relays, conversationLogger, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	baseHandler.RegisterRoutes(r)
	r.Handle("/metrics", metrics.Handler())

	documentHandler.RegisterRoutes(r)
	narrationHandler.RegisterRoutes(r)
	agentHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/agent", relay.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	// Narration streams and agent sockets are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.GRPCHealthAddr != "" {
		healthServer := health.NewServer(repo, 15*time.Second)
		go func() {
			if err := healthServer.Serve(ctx, cfg.GRPCHealthAddr); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")
	relays.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully", "documents_cached", documents.Len(), "narrations_in_flight", narrator.InFlight())
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

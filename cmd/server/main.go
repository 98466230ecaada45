// Product advisor gateway server.
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

	"github.com/ashureev/advisor-gateway/internal/api"
	"github.com/ashureev/advisor-gateway/internal/backend"
	"github.com/ashureev/advisor-gateway/internal/chat"
	"github.com/ashureev/advisor-gateway/internal/config"
	"github.com/ashureev/advisor-gateway/internal/identity"
	"github.com/ashureev/advisor-gateway/internal/middleware"
	"github.com/ashureev/advisor-gateway/internal/monitor"
	"github.com/ashureev/advisor-gateway/internal/session"
	"github.com/ashureev/advisor-gateway/internal/store"
	"github.com/ashureev/advisor-gateway/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"backend_url", cfg.Backend.URL,
		"backend_contract", cfg.Backend.Contract,
	)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	client, err := backend.NewClient(cfg.BackendClientConfig(), logger)
	if err != nil {
		slog.Error("Failed to initialize backend client", "error", err)
		os.Exit(1)
	}

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Warn("failed to close conversation logger", "error", closeErr)
		}
	}()

	storageFor := func(deviceID string) session.Storage {
		return store.NewNamespace(repo, deviceID)
	}
	chatService := chat.NewService(client, storageFor, conversationLogger, logger)

	rateLimiter := chat.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer rateLimiter.Stop()

	healthMonitor := monitor.NewHealthMonitor(client, cfg.Health.Interval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.GRPCHealthAddr != "" {
		grpcHealth, err := monitor.NewGRPCHealth(cfg.GRPCHealthAddr, logger)
		if err != nil {
			slog.Error("Failed to start gRPC health server", "error", err)
			os.Exit(1)
		}
		healthMonitor.OnChange(grpcHealth.SetBackendStatus)
		go func() {
			if err := grpcHealth.Serve(); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
		defer grpcHealth.Stop()
	}

	// Initialize handlers.
	chatHandler := chat.NewHandler(chatService, rateLimiter, cfg.AllowedOrigins())
	statusHandler := api.NewHandler(healthMonitor, client.Config())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Status routes need no device identity.
	statusHandler.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	healthMonitor.Start(ctx)
	monitor.StartDeviceCleanupWorker(ctx, repo, cfg.DeviceTTL)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

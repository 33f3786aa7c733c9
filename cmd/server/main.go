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

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/frondo/internal/analysis"
	"github.com/JonMunkholm/frondo/internal/config"
	"github.com/JonMunkholm/frondo/internal/logging"
	"github.com/JonMunkholm/frondo/internal/manuscript"
	"github.com/JonMunkholm/frondo/internal/session"
	"github.com/JonMunkholm/frondo/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"analysis_url", cfg.Analysis.ServiceURL,
		"analysis_timeout", cfg.Analysis.Timeout,
		"upload_max_file_size", cfg.Upload.MaxFileSize,
		"session_idle_ttl", cfg.Session.IdleTTL,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	client, err := analysis.NewClient(cfg.Analysis.ServiceURL, analysis.Options{
		Timeout:         cfg.Analysis.Timeout,
		MaxResponseSize: cfg.Analysis.MaxResponseSize,
		APIToken:        cfg.Analysis.APIToken,
	})
	if err != nil {
		slog.Error("failed to create analysis client", "error", err)
		os.Exit(1)
	}

	// The service may come up after us; an unreachable service is only worth a warning.
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := client.Ping(pingCtx); err != nil {
		slog.Warn("analysis service not reachable yet", "url", client.BaseURL(), "error", err)
	} else {
		slog.Info("analysis service reachable", "url", client.BaseURL())
	}
	cancelPing()

	var submitter manuscript.Submitter = client
	var limiter *analysis.Limiter
	if cfg.Analysis.MaxConcurrent > 0 {
		limiter = analysis.NewLimiter(cfg.Analysis.MaxConcurrent, cfg.Analysis.QueueWait)
		submitter = analysis.Limit(client, limiter)
	}

	reporter := manuscript.NewReporter(manuscript.Sinks(
		manuscript.NewWebhookSink(cfg.Diagnostics.WebhookURL, cfg.Diagnostics.WebhookTimeout),
	)...)
	acquirer := manuscript.NewAcquirer(cfg.Upload.MaxFileSize)

	sessions := session.NewStore(func(ctx context.Context) *manuscript.Controller {
		return manuscript.NewController(ctx, submitter, reporter)
	}, cfg.Session.IdleTTL)
	sessions.Start(cfg.Session.SweepInterval)

	server := web.NewServer(cfg, sessions, acquirer)
	if limiter != nil {
		server.SetAnalysisLimiter(limiter)
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Ends every session; in-flight submissions settle into nothing.
		if err := sessions.Close(shutdownCtx); err != nil {
			slog.Warn("sessions did not close cleanly", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/frondo/internal/analysis"
	"github.com/JonMunkholm/frondo/internal/config"
	"github.com/JonMunkholm/frondo/internal/logging"
	"github.com/JonMunkholm/frondo/internal/manuscript"
	"github.com/JonMunkholm/frondo/internal/tui"
)

// logFileEnv names the file the terminal front-end logs to; the screen
// belongs to bubbletea.
const logFileEnv = "FRONDO_LOG_FILE"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "frondo:", err)
		os.Exit(1)
	}
}

func run() error {
	// Logging is set up from the loaded config, so the .env outcome is
	// reported afterwards.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logPath := os.Getenv(logFileEnv)
	if logPath == "" {
		logPath = "frondo-tui.log"
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logging.SetupWriter(logFile, cfg.Logging.Level, cfg.Logging.Format)
	logEnvFile(envErr)

	client, err := analysis.NewClient(cfg.Analysis.ServiceURL, analysis.Options{
		Timeout:         cfg.Analysis.Timeout,
		MaxResponseSize: cfg.Analysis.MaxResponseSize,
		APIToken:        cfg.Analysis.APIToken,
	})
	if err != nil {
		return err
	}

	var submitter manuscript.Submitter = client
	if cfg.Analysis.MaxConcurrent > 0 {
		submitter = analysis.Limit(client, analysis.NewLimiter(cfg.Analysis.MaxConcurrent, cfg.Analysis.QueueWait))
	}

	reporter := manuscript.NewReporter(manuscript.Sinks(
		manuscript.NewWebhookSink(cfg.Diagnostics.WebhookURL, cfg.Diagnostics.WebhookTimeout),
	)...)
	acquirer := manuscript.NewAcquirer(cfg.Upload.MaxFileSize)

	ctx := logging.ContextWithSessionID(context.Background(), "terminal")
	ctrl := manuscript.NewController(ctx, submitter, reporter)

	model := tui.New(ctx, ctrl, acquirer, tui.Info{
		ServiceURL: client.BaseURL(),
		Accept:     acquirer.Filter.Accept(),
	})

	_, runErr := tea.NewProgram(model, tea.WithAltScreen()).Run()

	// Leaving the screen ends the view; late settlements are dropped.
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Close(closeCtx); err != nil {
		slog.Warn("controller did not close cleanly", "error", err)
	}

	return runErr
}

// logEnvFile reports how the .env file was handled. Existing environment
// variables win over the file.
func logEnvFile(err error) {
	switch {
	case err == nil:
		slog.Info("loaded .env file (existing env vars kept)")
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("no .env file found, using environment variables")
	default:
		slog.Warn("ignoring unreadable .env file", "error", err)
	}
}

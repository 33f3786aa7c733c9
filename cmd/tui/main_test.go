package main

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joho/godotenv"
)

func TestLogEnvFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantMsg   string
	}{
		{"loaded", nil, "INFO", "loaded .env file"},
		{"missing", godotenv.Load(filepath.Join(dir, "missing.env")), "INFO", "no .env file found"},
		{"unreadable", errors.New("unexpected character"), "WARN", "ignoring unreadable .env file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
			t.Cleanup(func() { slog.SetDefault(prev) })

			logEnvFile(tt.err)

			out := buf.String()
			if !strings.Contains(out, "level="+tt.wantLevel) || !strings.Contains(out, tt.wantMsg) {
				t.Errorf("log = %q, want level %s with %q", out, tt.wantLevel, tt.wantMsg)
			}
		})
	}
}

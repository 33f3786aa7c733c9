package manuscript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu    sync.Mutex
	diags []Diagnostic
}

func (s *recordingSink) Send(_ context.Context, d Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diags = append(s.diags, d)
}

type panickingSink struct{}

func (panickingSink) Send(context.Context, Diagnostic) { panic("sink exploded") }

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestReporter_AlwaysReturnsFixedMessage(t *testing.T) {
	logs := captureLogs(t)
	sink := &recordingSink{}
	r := NewReporter(sink)

	tests := []struct {
		name string
		err  error
		kind FailureKind
	}{
		{"server", ServerFailure(500, "Internal Server Error"), KindServer},
		{"transport", TransportFailure(errors.New("connection refused")), KindTransport},
		{"malformed", MalformedResponse(errors.New("missing field staff_lines")), KindMalformed},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTransport},
		{"plain", errors.New("mystery"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Report(context.Background(), tt.err); got != FailureMessage {
				t.Errorf("Report() = %q, want %q", got, FailureMessage)
			}
			last := sink.diags[len(sink.diags)-1]
			if last.Kind != tt.kind {
				t.Errorf("diagnostic kind = %s, want %s", last.Kind, tt.kind)
			}
		})
	}

	if !strings.Contains(logs.String(), "Internal Server Error") {
		t.Error("technical detail should be logged")
	}
}

func TestReporter_SurvivesPanickingSink(t *testing.T) {
	captureLogs(t)
	r := NewReporter(panickingSink{})

	if got := r.Report(context.Background(), errors.New("x")); got != FailureMessage {
		t.Errorf("Report() = %q, want %q", got, FailureMessage)
	}
}

func TestReporter_NilReporter(t *testing.T) {
	captureLogs(t)
	var r *Reporter
	if got := r.Report(context.Background(), errors.New("x")); got != FailureMessage {
		t.Errorf("nil Reporter.Report() = %q", got)
	}
}

func TestWebhookSink_Delivers(t *testing.T) {
	got := make(chan Diagnostic, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var d Diagnostic
		if err := json.Unmarshal(body, &d); err != nil {
			t.Errorf("webhook body not JSON: %v", err)
		}
		got <- d
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	captureLogs(t)
	r := NewReporter(Sinks(NewWebhookSink(srv.URL, time.Second))...)
	r.ReportFile(context.Background(), ServerFailure(503, "busy"), "score.png")

	select {
	case d := <-got:
		if d.Kind != KindServer || d.StatusCode != 503 || d.File != "score.png" {
			t.Errorf("unexpected diagnostic %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never called")
	}
}

func TestSinks_DropsUnconfiguredWebhook(t *testing.T) {
	sinks := Sinks(NewWebhookSink("", time.Second), nil, &recordingSink{})
	if len(sinks) != 1 {
		t.Errorf("len(Sinks) = %d, want 1", len(sinks))
	}
}

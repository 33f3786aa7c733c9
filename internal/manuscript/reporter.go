package manuscript

// reporter.go turns a failed submission into the single user-facing message.
//
// Users always see FailureMessage. The technical cause goes to slog and,
// when configured, to a diagnostic webhook. Nothing here may fail the
// caller: sinks that panic are recovered and Report still returns the
// message.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/frondo/internal/logging"
)

// FailureMessage is the only text a user ever sees for a failed submission.
const FailureMessage = "Failed to process the manuscript. Please try again."

// Diagnostic is what a sink receives for every reported failure.
type Diagnostic struct {
	Level      string      `json:"level"`
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message"`
	StatusCode int         `json:"status_code,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	File       string      `json:"file,omitempty"`
	SessionID  string      `json:"session_id,omitempty"`
	Timestamp  string      `json:"timestamp"`
}

// DiagnosticSink receives failure details out of band.
type DiagnosticSink interface {
	Send(ctx context.Context, d Diagnostic)
}

// Reporter maps failures to the fixed user message and logs the cause.
type Reporter struct {
	sinks []DiagnosticSink
	now   func() time.Time
}

// NewReporter creates a Reporter. slog logging is always on; sinks are extra.
func NewReporter(sinks ...DiagnosticSink) *Reporter {
	return &Reporter{sinks: sinks, now: time.Now}
}

// Report logs err and returns FailureMessage. A nil Reporter still works.
func (r *Reporter) Report(ctx context.Context, err error) string {
	return r.ReportFile(ctx, err, "")
}

// ReportFile is Report with the offending file name attached to diagnostics.
func (r *Reporter) ReportFile(ctx context.Context, err error, file string) (msg string) {
	msg = FailureMessage
	defer func() {
		if p := recover(); p != nil {
			slog.Error("error reporter panicked", "panic", fmt.Sprint(p))
		}
	}()

	if err == nil {
		err = errors.New("unspecified failure")
	}

	now := time.Now
	if r != nil && r.now != nil {
		now = r.now
	}

	d := Diagnostic{
		Level:     "ERROR",
		Kind:      ClassifyFailure(err),
		Message:   err.Error(),
		File:      file,
		SessionID: logging.SessionIDFromContext(ctx),
		Timestamp: now().UTC().Format(time.RFC3339),
	}
	var f *Failure
	if errors.As(err, &f) {
		d.StatusCode = f.StatusCode
		d.Detail = f.Detail
	}

	attrs := []any{"kind", d.Kind, "error", d.Message}
	if d.StatusCode != 0 {
		attrs = append(attrs, "status", d.StatusCode)
	}
	if d.Detail != "" {
		attrs = append(attrs, "detail", d.Detail)
	}
	if file != "" {
		attrs = append(attrs, "file", file)
	}
	logging.FromContext(ctx).Error("manuscript processing failed", attrs...)

	if r == nil {
		return msg
	}
	for _, s := range r.sinks {
		s.Send(ctx, d)
	}
	return msg
}

// WebhookSink posts diagnostics as JSON to a URL. Delivery is asynchronous
// and best-effort; failures are logged and dropped.
type WebhookSink struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewWebhookSink returns nil when url is empty so callers can pass the
// result straight to NewReporter via Sinks.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Send implements DiagnosticSink.
func (w *WebhookSink) Send(ctx context.Context, d Diagnostic) {
	go w.deliver(context.WithoutCancel(ctx), d)
}

func (w *WebhookSink) deliver(ctx context.Context, d Diagnostic) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	body, err := json.Marshal(d)
	if err != nil {
		slog.Warn("diagnostic webhook: marshal failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		slog.Warn("diagnostic webhook: build request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		slog.Warn("diagnostic webhook: delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("diagnostic webhook: unexpected status", "status", resp.StatusCode)
	}
}

// Sinks drops nil entries, so an unconfigured webhook can be passed as is.
func Sinks(sinks ...DiagnosticSink) []DiagnosticSink {
	out := make([]DiagnosticSink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if ws, ok := s.(*WebhookSink); ok && ws == nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/frondo/internal/analysis"
	"github.com/JonMunkholm/frondo/internal/config"
	"github.com/JonMunkholm/frondo/internal/manuscript"
	"github.com/JonMunkholm/frondo/internal/session"
)

const cookieName = "frondo_session"

func testConfig() *config.Config {
	return &config.Config{
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20},
		Session:  config.SessionConfig{CookieName: cookieName, IdleTTL: time.Hour},
		Security: config.SecurityConfig{EnableCSP: true},
		Rate:     config.RateLimitConfig{Enabled: false, RequestsPerMinute: 100},
	}
}

func fixedResult(context.Context, manuscript.AcquiredFile) (*manuscript.ProcessedResult, error) {
	return &manuscript.ProcessedResult{
		BinaryImage:   "data:image/png;base64,QklO",
		Visualization: "data:image/png;base64,VklT",
		StaffLines:    []json.RawMessage{json.RawMessage(`[1]`), json.RawMessage(`[2]`), json.RawMessage(`[3]`)},
		Characters:    []json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`{}`)},
	}, nil
}

func newTestServer(t *testing.T, sub manuscript.Submitter, mutate func(*config.Config)) (*Server, *session.Store) {
	t.Helper()
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := session.NewStore(func(ctx context.Context) *manuscript.Controller {
		return manuscript.NewController(ctx, sub, manuscript.NewReporter())
	}, cfg.Session.IdleTTL)
	t.Cleanup(func() { store.Close(context.Background()) })

	srv := NewServer(cfg, store, manuscript.NewAcquirer(cfg.Upload.MaxFileSize))
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, store
}

// client keeps the session cookie between requests against a handler.
type client struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == cookieName {
			c.cookie = ck
		}
	}
	return rec
}

func pngFile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 12, 9))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func acquireRequest(t *testing.T, source, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("source", source)
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/acquire", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Requested-With", "fetch")
	return req
}

func sessionView(t *testing.T, c *client) manuscript.View {
	t.Helper()
	rec := c.do(httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/session status = %d", rec.Code)
	}
	var v manuscript.View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func TestIndex_CreatesSession(t *testing.T) {
	srv, store := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	c := &client{t: t, h: srv.Handler()}

	rec := c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if c.cookie == nil || !c.cookie.HttpOnly {
		t.Fatalf("session cookie not set: %+v", c.cookie)
	}
	body := rec.Body.String()
	for _, s := range []string{"Drop your manuscript here or click to upload", `accept="image/*,.pdf"`, `data-state="idle"`} {
		if !strings.Contains(body, s) {
			t.Errorf("page missing %q", s)
		}
	}
	if got := rec.Header().Get("Content-Security-Policy"); !strings.Contains(got, "img-src 'self' data:") {
		t.Errorf("CSP = %q", got)
	}

	c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if store.Count() != 1 {
		t.Errorf("sessions = %d, want 1 (cookie reused)", store.Count())
	}
}

func TestAcquire_ProcessesToSuccess(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	c := &client{t: t, h: srv.Handler()}

	rec := c.do(acquireRequest(t, "picker", "score.png", pngFile(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `id="converter"`) {
		t.Errorf("response is not the converter fragment: %s", rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	var v manuscript.View
	for time.Now().Before(deadline) {
		if v = sessionView(t, c); v.State == manuscript.StateSucceeded {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if v.State != manuscript.StateSucceeded {
		t.Fatalf("state = %s, want succeeded", v.State)
	}
	if v.File == nil || v.File.Name != "score.png" || v.File.Source != manuscript.SourcePicker {
		t.Errorf("file = %+v", v.File)
	}

	html := c.do(httptest.NewRequest(http.MethodGet, "/converter", nil)).Body.String()
	for _, s := range []string{"Found 3 staff systems", "Detected 2 potential characters", "Detected Features"} {
		if !strings.Contains(html, s) {
			t.Errorf("converter missing %q", s)
		}
	}
}

func TestAcquire_FailureShowsFixedMessage(t *testing.T) {
	fail := manuscript.SubmitterFunc(func(context.Context, manuscript.AcquiredFile) (*manuscript.ProcessedResult, error) {
		return nil, manuscript.ServerFailure(http.StatusInternalServerError, "traceback")
	})
	srv, _ := newTestServer(t, fail, nil)
	c := &client{t: t, h: srv.Handler()}

	c.do(acquireRequest(t, "drop", "score.pdf", []byte("%PDF-1.4")))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && sessionView(t, c).State != manuscript.StateFailed {
		time.Sleep(5 * time.Millisecond)
	}
	html := c.do(httptest.NewRequest(http.MethodGet, "/converter", nil)).Body.String()
	if !strings.Contains(html, manuscript.FailureMessage) {
		t.Errorf("converter missing failure message: %s", html)
	}
	if strings.Contains(html, "traceback") {
		t.Error("technical detail leaked to the page")
	}
}

func TestAcquire_EmptyDropClearsOverlay(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	c := &client{t: t, h: srv.Handler()}

	c.do(httptest.NewRequest(http.MethodPost, "/drag/enter", nil))
	if !sessionView(t, c).DragOverlay {
		t.Fatal("drag enter did not set the overlay")
	}

	rec := c.do(acquireRequest(t, "drop", "", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	v := sessionView(t, c)
	if v.DragOverlay || v.State != manuscript.StateIdle {
		t.Errorf("after empty drop: overlay=%v state=%s", v.DragOverlay, v.State)
	}
}

func TestAcquire_Errors(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	c := &client{t: t, h: srv.Handler()}

	if rec := c.do(acquireRequest(t, "picker", "", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("picker without file status = %d, want 400", rec.Code)
	}

	big := bytes.Repeat([]byte("x"), 1<<20+10)
	rec := c.do(acquireRequest(t, "picker", "big.png", big))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversize status = %d, want 413", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "too large") {
		t.Errorf("oversize body = %s", rec.Body.String())
	}
	if sessionView(t, c).State != manuscript.StateIdle {
		t.Error("rejected upload changed the session state")
	}
}

func TestAcquire_NotMultipart(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	c := &client{t: t, h: srv.Handler()}

	tests := []struct {
		name        string
		contentType string
	}{
		{"url encoded", "application/x-www-form-urlencoded"},
		{"json", "application/json"},
		{"multipart without boundary", "multipart/form-data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/acquire", strings.NewReader("source=picker"))
			req.Header.Set("Content-Type", tt.contentType)
			req.Header.Set("Accept", "application/json")
			rec := c.do(req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"BAD_REQUEST"`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
	if sessionView(t, c).State != manuscript.StateIdle {
		t.Error("rejected request changed the session state")
	}
}

func TestDrag(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	c := &client{t: t, h: srv.Handler()}

	rec := c.do(httptest.NewRequest(http.MethodPost, "/drag/enter", nil))
	if !strings.Contains(rec.Body.String(), "is-highlighted") {
		t.Errorf("drag enter body = %s", rec.Body.String())
	}
	rec = c.do(httptest.NewRequest(http.MethodPost, "/drag/leave", nil))
	if strings.Contains(rec.Body.String(), "is-highlighted") {
		t.Error("drag leave kept the highlight")
	}
	if rec := c.do(httptest.NewRequest(http.MethodPost, "/drag/bogus", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want 404", rec.Code)
	}
}

func TestSessionDelete(t *testing.T) {
	srv, store := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	c := &client{t: t, h: srv.Handler()}
	c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	id := c.cookie.Value
	sess, _ := store.Get(id)

	rec := c.do(httptest.NewRequest(http.MethodDelete, "/api/session", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if !sess.Controller.Closed() {
		t.Error("controller not closed")
	}
	if _, ok := store.Get(id); ok {
		t.Error("session still stored")
	}
}

func TestAPIKeyRequired(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), func(cfg *config.Config) {
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = []string{"secret"}
	})
	c := &client{t: t, h: srv.Handler()}

	if rec := c.do(httptest.NewRequest(http.MethodGet, "/", nil)); rec.Code != http.StatusOK {
		t.Errorf("page status = %d, want 200", rec.Code)
	}
	if rec := c.do(httptest.NewRequest(http.MethodGet, "/api/session", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("api without key status = %d, want 401", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := c.do(req); rec.Code != http.StatusOK {
		t.Errorf("api with key status = %d, want 200", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), func(cfg *config.Config) {
		cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	})
	h := srv.Handler()

	var last int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"analysis"`) {
		t.Errorf("healthz reports analysis without a limiter: %s", rec.Body.String())
	}
}

func TestHealth_ReportsAnalysisLimiter(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	limiter := analysis.NewLimiter(2, time.Second)
	srv.SetAnalysisLimiter(limiter)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer limiter.Release()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if body.Analysis == nil {
		t.Fatalf("healthz lacks analysis status: %s", rec.Body.String())
	}
	want := analysis.LimiterStatus{Active: 1, Queued: 0, MaxConcurrent: 2}
	if *body.Analysis != want {
		t.Errorf("analysis status = %+v, want %+v", *body.Analysis, want)
	}
}

func TestSessionEvents_StreamsViews(t *testing.T) {
	srv, _ := newTestServer(t, manuscript.SubmitterFunc(fixedResult), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	jar, _ := cookiejar.New(nil)
	hc := &http.Client{Jar: jar}
	page, err := hc.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	page.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/session/events", nil)
	resp, err := hc.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := make(chan manuscript.View, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				var v manuscript.View
				if json.Unmarshal([]byte(data), &v) == nil {
					events <- v
				}
			}
		}
		close(events)
	}()

	first := <-events
	if first.State != manuscript.StateIdle {
		t.Fatalf("first event state = %s, want idle", first.State)
	}

	dragReq, _ := http.NewRequest(http.MethodPost, ts.URL+"/drag/enter", nil)
	dragResp, err := hc.Do(dragReq)
	if err != nil {
		t.Fatal(err)
	}
	dragResp.Body.Close()

	select {
	case v := <-events:
		if !v.DragOverlay {
			t.Errorf("second event overlay = false")
		}
	case <-ctx.Done():
		t.Fatal("no event after drag enter")
	}
}

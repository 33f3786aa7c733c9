// Package web serves the manuscript converter to browsers.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/frondo/internal/analysis"
	"github.com/JonMunkholm/frondo/internal/config"
	"github.com/JonMunkholm/frondo/internal/manuscript"
	"github.com/JonMunkholm/frondo/internal/session"
	"github.com/JonMunkholm/frondo/internal/web/middleware"
)

//go:embed static
var staticFiles embed.FS

// requestTimeout bounds every route except the event stream.
const requestTimeout = 60 * time.Second

// Server is the HTTP server for the converter.
type Server struct {
	cfg      *config.Config
	sessions *session.Store
	acquirer *manuscript.Acquirer
	filter   manuscript.AcceptFilter
	analysis *analysis.Limiter

	router  *chi.Mux
	server  *http.Server
	limiter *rateLimiter

	// shutdown is closed when the server starts shutting down so that
	// long-lived event streams let go of their connections.
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware.
func NewServer(cfg *config.Config, sessions *session.Store, acquirer *manuscript.Acquirer) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		acquirer: acquirer,
		filter:   acquirer.Filter,
		router:   chi.NewRouter(),
		shutdown: make(chan struct{}),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// SetAnalysisLimiter makes /healthz report usage of l. Call it before
// serving.
func (s *Server) SetAnalysisLimiter(l *analysis.Limiter) {
	s.analysis = l
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))

	if s.cfg.Security.EnableCSP {
		s.router.Use(securityHeaders)
	}

	if s.cfg.Rate.Enabled {
		s.limiter = newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(s.limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.Get("/healthz", s.handleHealth)

	// Browser routes. The session cookie is created on first contact.
	s.router.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Use(s.withSession)

		r.Get("/", s.handleIndex)
		r.Get("/converter", s.handleConverter)
		r.Post("/acquire", s.handleAcquire)
		r.Post("/drag/{action}", s.handleDrag)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))
		r.Use(s.withSession)

		r.With(chimw.Timeout(requestTimeout)).Get("/session", s.handleSessionView)
		r.With(chimw.Timeout(requestTimeout)).Delete("/session", s.handleSessionDelete)
		r.Get("/session/events", s.handleSessionEvents)
	})
}

// Handler returns the root handler. Tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	srv := s.cfg.Server
	s.server = &http.Server{
		Addr:         srv.Addr(),
		Handler:      s.router,
		ReadTimeout:  srv.ReadTimeout,
		WriteTimeout: srv.WriteTimeout, // zero keeps event streams open
		IdleTimeout:  srv.IdleTimeout,
	}
	s.server.RegisterOnShutdown(s.beginShutdown)

	slog.Info("starting server", "addr", srv.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.beginShutdown()
	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) beginShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// securityHeaders adds security headers to all responses. Result images
// arrive as data: URIs, hence img-src.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' data: https:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a fixed-window token counter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup drops visitors that have been quiet for two windows.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// allow consumes a token for ip if one is left in the current window.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok || time.Since(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(middleware.ClientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON. Encoding errors are only logged since the
// header is already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logFromRequest(r).Error("json encode error", "error", err)
	}
}

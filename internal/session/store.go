// Package session keeps one manuscript controller per browser session.
//
// A session is the lifetime of a converter view: deleting it, letting it
// idle out, or closing the store closes the controller, after which any
// settlement still in flight is dropped.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/frondo/internal/logging"
	"github.com/JonMunkholm/frondo/internal/manuscript"
)

// ErrStoreClosed is returned when creating a session after Close.
var ErrStoreClosed = errors.New("session store closed")

// ControllerFactory builds the controller of a new session. ctx carries the
// session ID for logging.
type ControllerFactory func(ctx context.Context) *manuscript.Controller

// Session pairs an ID with its controller.
type Session struct {
	ID         string
	Controller *manuscript.Controller
	CreatedAt  time.Time

	lastSeen time.Time
}

// Store owns every live session.
type Store struct {
	factory ControllerFactory
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	started  bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewStore creates a store. Sessions untouched for ttl are collected by
// the sweeper once Start is called; ttl <= 0 disables expiry.
func NewStore(factory ControllerFactory, ttl time.Duration) *Store {
	return &Store{
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the idle sweeper every interval until Close.
func (s *Store) Start(interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(context.Background()); n > 0 {
					slog.Info("idle sessions closed", "count", n, "remaining", s.Count())
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Create starts a new session with a fresh controller.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	ctrl := s.factory(logging.ContextWithSessionID(ctx, id))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ctrl.Close(ctx)
		return nil, ErrStoreClosed
	}
	now := s.now()
	sess := &Session{ID: id, Controller: ctrl, CreatedAt: now, lastSeen: now}
	s.sessions[id] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	logging.FromContext(logging.ContextWithSessionID(ctx, id)).Debug("session created", "sessions", count)
	return sess, nil
}

// Get returns the session and marks it as seen.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok {
		sess.lastSeen = s.now()
	}
	return sess, ok
}

// GetOrCreate returns the session for id, creating a new one (with a new
// ID) when id is unknown. created reports which happened.
func (s *Store) GetOrCreate(ctx context.Context, id string) (sess *Session, created bool, err error) {
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return sess, false, nil
		}
	}
	sess, err = s.Create(ctx)
	return sess, err == nil, err
}

// Touch marks the session as seen. It reports whether the session exists.
func (s *Store) Touch(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Delete removes the session and closes its controller.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return sess.Controller.Close(ctx)
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were collected.
func (s *Store) Sweep(ctx context.Context) int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	cutoff := s.now().Add(-s.ttl)
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		if err := sess.Controller.Close(ctx); err != nil {
			slog.Warn("session close failed", "session_id", sess.ID, "error", err)
		}
	}
	return len(expired)
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the sweeper and closes every session. ctx bounds the wait
// for in-flight submissions to drain.
func (s *Store) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	s.closed = true
	started := s.started
	all := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, sess := range all {
		if err := sess.Controller.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if started {
		select {
		case <-s.done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	return errors.Join(errs...)
}

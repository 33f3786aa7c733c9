package analysis

// limiter.go caps how many manuscripts are analysed at once across all
// sessions, so a burst of uploads queues here instead of piling onto the
// analysis service.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/frondo/internal/logging"
	"github.com/JonMunkholm/frondo/internal/manuscript"
)

// ErrBusy is returned when no slot frees up within the queue wait.
var ErrBusy = errors.New("analysis service busy")

// Limiter is a semaphore over analysis requests.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.Mutex
	active int
	queued int
}

// NewLimiter allows maxConcurrent requests at once. A request waits at most
// maxWait for a slot; zero waits as long as its context allows.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if l.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}

	l.mu.Lock()
	l.queued++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.queued--
		l.mu.Unlock()
	}()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.slots
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Queued        int `json:"queued"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status reports current usage.
func (l *Limiter) Status() LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStatus{Active: l.active, Queued: l.queued, MaxConcurrent: cap(l.slots)}
}

// Limit wraps next so that every Process call holds a slot of l.
func Limit(next manuscript.Submitter, l *Limiter) manuscript.Submitter {
	if l == nil {
		return next
	}
	return manuscript.SubmitterFunc(func(ctx context.Context, file manuscript.AcquiredFile) (*manuscript.ProcessedResult, error) {
		if err := l.Acquire(ctx); err != nil {
			logging.FromContext(ctx).Warn("analysis slot not acquired", "file", file.Name, "error", err)
			return nil, manuscript.TransportFailure(err)
		}
		defer l.Release()
		return next.Process(ctx, file)
	})
}

package manuscript

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/frondo/internal/logging"
)

// Submitter sends an acquired file to the analysis service.
type Submitter interface {
	Process(ctx context.Context, file AcquiredFile) (*ProcessedResult, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, file AcquiredFile) (*ProcessedResult, error)

// Process implements Submitter.
func (f SubmitterFunc) Process(ctx context.Context, file AcquiredFile) (*ProcessedResult, error) {
	return f(ctx, file)
}

// listenerBuffer is the per-subscriber channel capacity.
const listenerBuffer = 16

type settlement struct {
	result *ProcessedResult
	err    error
}

// Controller owns one Model and is its only writer.
//
// Events go through Dispatch, which applies Transition under the lock and
// starts any submissions it asks for. Submissions are Tasks bound to the
// controller's lifetime: after Close they are cancelled and whatever they
// settle with is dropped.
type Controller struct {
	submitter Submitter
	reporter  *Reporter
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	model     Model
	closed    bool
	tasks     map[uint64]*Task
	listeners map[chan View]struct{}
	waiters   map[uint64][]chan settlement
}

// NewController creates a controller in StateIdle. Values carried by ctx
// (session ID) are kept for logging; its cancellation is not.
func NewController(ctx context.Context, submitter Submitter, reporter *Reporter) *Controller {
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Controller{
		submitter: submitter,
		reporter:  reporter,
		now:       time.Now,
		ctx:       lifetime,
		cancel:    cancel,
		model:     NewModel(),
		tasks:     make(map[uint64]*Task),
		listeners: make(map[chan View]struct{}),
		waiters:   make(map[uint64][]chan settlement),
	}
}

// Dispatch applies ev. Acquisition events move the controller to
// StateProcessing before Dispatch returns. Events after Close are ignored.
func (c *Controller) Dispatch(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		logging.FromContext(c.ctx).Debug("event ignored: controller closed", "event", fmt.Sprintf("%T", ev))
		return
	}
	c.dispatchLocked(ev)
}

func (c *Controller) dispatchLocked(ev Event) {
	prev := c.model
	next, cmds := Transition(prev, ev)

	if s, ok := ev.(Settled); ok {
		if IsStale(prev, s) {
			logging.FromContext(c.ctx).Debug("stale settlement discarded",
				"generation", s.Generation,
				"current_generation", prev.Generation,
			)
		} else {
			c.resolveLocked(s.Generation, settlement{result: next.Result, err: s.Err})
		}
	}

	if !next.sameAs(prev) {
		next.UpdatedAt = c.now()
		c.model = next
		c.notifyLocked(next.View())
	}

	for _, cmd := range cmds {
		switch cmd := cmd.(type) {
		case SubmitCommand:
			c.supersedeLocked(cmd.Generation)
			c.startSubmissionLocked(cmd)
		}
	}
}

// startSubmissionLocked runs cmd as a Task. The previous submission, if
// any, keeps running; its settlement will be stale.
func (c *Controller) startSubmissionLocked(cmd SubmitCommand) {
	task := newTask(cmd.Generation)
	logger := logging.WithFields(c.ctx,
		"task_id", task.ID,
		"generation", cmd.Generation,
		"file", cmd.File.Name,
		"size", cmd.File.Size,
	)
	if n := len(c.tasks); n > 0 {
		logger.Info("acquisition supersedes in-flight submission", "in_flight", n)
	}

	task.start(c.ctx, func(ctx context.Context) {
		start := time.Now()
		logger.Info("submission started")

		result, err := c.submitter.Process(ctx, cmd.File)

		c.mu.Lock()
		delete(c.tasks, cmd.Generation)
		c.mu.Unlock()

		if c.ctx.Err() != nil {
			logger.Debug("settlement dropped: controller closed")
			return
		}

		ev := Settled{Generation: cmd.Generation, Result: result, Err: err}
		if err == nil && result == nil {
			ev.Err = MalformedResponse(fmt.Errorf("empty result"))
		}
		if ev.Err != nil {
			ev.Message = c.reporter.ReportFile(ctx, ev.Err, cmd.File.Name)
		} else {
			logger.Info("submission succeeded",
				"duration_ms", time.Since(start).Milliseconds(),
				"staff_systems", result.StaffSystemCount(),
				"characters", result.CharacterCount(),
			)
		}
		c.Dispatch(ev)
	})
	c.tasks[cmd.Generation] = task
}

// Submit acquires file through the picker path and waits for its
// submission to settle. It returns ErrSuperseded when a newer acquisition
// replaces it first. Cancelling ctx stops the wait, not the request.
func (c *Controller) Submit(ctx context.Context, file AcquiredFile) (*ProcessedResult, error) {
	ch := make(chan settlement, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrControllerClosed
	}
	c.dispatchLocked(FileChosen{File: file})
	gen := c.model.Generation
	c.waiters[gen] = append(c.waiters[gen], ch)
	c.mu.Unlock()

	select {
	case s := <-ch:
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveLocked hands a settlement to everyone waiting on generation.
func (c *Controller) resolveLocked(generation uint64, s settlement) {
	for _, ch := range c.waiters[generation] {
		ch <- s
	}
	delete(c.waiters, generation)
}

// supersedeLocked fails waiters of generations older than current.
func (c *Controller) supersedeLocked(current uint64) {
	for gen := range c.waiters {
		if gen < current {
			c.resolveLocked(gen, settlement{err: ErrSuperseded})
		}
	}
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.View()
}

// Subscribe returns a channel of view snapshots, starting with the current
// one, and a function that ends the subscription. Slow subscribers miss
// intermediate snapshots but always receive the latest one. The channel is
// closed on Close or unsubscribe.
func (c *Controller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, listenerBuffer)

	c.mu.Lock()
	defer c.mu.Unlock()

	ch <- c.model.View()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.listeners[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.listeners[ch]; ok {
				delete(c.listeners, ch)
				close(ch)
			}
		})
	}
}

// notifyLocked sends v to all listeners. A full listener loses its oldest
// pending view; all sends happen under c.mu, so the retry cannot block.
func (c *Controller) notifyLocked(v View) {
	for ch := range c.listeners {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// InFlight returns the number of submissions still running.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close ends the controller's lifetime: in-flight submissions are
// cancelled, subscribers are released, and later events are ignored.
// It waits for running tasks until ctx is done.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	tasks := make([]*Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		tasks = append(tasks, t)
	}
	for ch := range c.listeners {
		close(ch)
	}
	c.listeners = make(map[chan View]struct{})
	for gen := range c.waiters {
		c.resolveLocked(gen, settlement{err: ErrControllerClosed})
	}
	c.mu.Unlock()

	c.cancel()

	for _, t := range tasks {
		if err := t.Wait(ctx); err != nil {
			return fmt.Errorf("close controller: %w", err)
		}
	}
	return nil
}

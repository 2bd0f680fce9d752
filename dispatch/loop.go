// Package dispatch provides a single-consumer work loop that serves as the
// logical thread for the orchestrator, its connection and their queues.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	purchasing "github.com/purchasekit/purchasing"
)

// Loop is an unbounded FIFO of work run by a single goroutine.
// Dispatch and Call are safe for concurrent use; Run must be called once.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	logger *zap.Logger
}

// Option configures a Loop
type Option func(*Loop)

// WithLogger sets the logger used to report panics in dispatched work
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a loop. Work dispatched before Run starts is kept.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dispatch queues fn and returns immediately
func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to finish or for ctx to end.
// It must not be called from the loop itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Dispatch(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued work until ctx is done
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending runs all work queued so far, including work queued by that work,
// on the calling goroutine. It returns the number of functions run.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			l.run(fn)
			n++
		}
	}
}

// Pending returns the number of queued functions
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dispatched work panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

var _ purchasing.Dispatcher = (*Loop)(nil)

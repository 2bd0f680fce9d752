package connection

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retry policy defaults
const (
	DefaultInitialDelay = 2 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
	DefaultMaxAttempts  = 3
)

// Scheduler runs fn once after delay, on any goroutine
type Scheduler func(delay time.Duration, fn func())

// TimerScheduler schedules with time.AfterFunc
func TimerScheduler(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}

// PollScheduler holds scheduled work until Poll runs it on the polling goroutine.
// It is not safe for concurrent use.
type PollScheduler struct {
	now   func() time.Time
	tasks []pollTask
}

type pollTask struct {
	at time.Time
	fn func()
}

// NewPollScheduler creates a PollScheduler reading time from now
func NewPollScheduler(now func() time.Time) *PollScheduler {
	if now == nil {
		now = time.Now
	}
	return &PollScheduler{now: now}
}

// Schedule holds fn until a Poll at or after delay from now
func (s *PollScheduler) Schedule(delay time.Duration, fn func()) {
	s.tasks = append(s.tasks, pollTask{at: s.now().Add(delay), fn: fn})
}

// Poll runs the tasks that are due, in scheduling order, and returns how many ran
func (s *PollScheduler) Poll() int {
	now := s.now()
	var due []func()
	kept := s.tasks[:0]
	for _, task := range s.tasks {
		if now.Before(task.at) {
			kept = append(kept, task)
			continue
		}
		due = append(due, task.fn)
	}
	s.tasks = kept
	for _, fn := range due {
		fn()
	}
	return len(due)
}

// Len returns the number of tasks not run yet
func (s *PollScheduler) Len() int { return len(s.tasks) }

// RetryPolicy spaces reconnection attempts with exponential backoff
type RetryPolicy struct {
	backoff  *backoff.ExponentialBackOff
	schedule Scheduler
	// timer is set while schedule is TimerScheduler
	timer    bool
}

// RetryOption configures a RetryPolicy
type RetryOption func(*RetryPolicy)

// WithDelays sets the initial and maximum delay
func WithDelays(initial, maxDelay time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.backoff.InitialInterval = initial
		p.backoff.MaxInterval = maxDelay
	}
}

// WithMultiplier sets the growth factor between delays
func WithMultiplier(m float64) RetryOption {
	return func(p *RetryPolicy) {
		p.backoff.Multiplier = m
	}
}

// WithScheduler replaces the timer, mostly for tests
func WithScheduler(s Scheduler) RetryOption {
	return func(p *RetryPolicy) {
		p.schedule = s
		p.timer = false
	}
}

// NewRetryPolicy creates a policy starting at 2s, doubling, capped at 30s
func NewRetryPolicy(opts ...RetryOption) *RetryPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultInitialDelay
	b.MaxInterval = DefaultMaxDelay
	b.Multiplier = DefaultMultiplier
	b.RandomizationFactor = 0

	p := &RetryPolicy{backoff: b, schedule: TimerScheduler, timer: true}
	for _, opt := range opts {
		opt(p)
	}
	p.backoff.Reset()
	return p
}

// NextDelay returns the delay before the next attempt and advances the policy
func (p *RetryPolicy) NextDelay() time.Duration {
	return p.backoff.NextBackOff()
}

// Schedule runs fn after the next delay
func (p *RetryPolicy) Schedule(fn func()) time.Duration {
	delay := p.NextDelay()
	p.schedule(delay, fn)
	return delay
}

// Reset starts the delays over
func (p *RetryPolicy) Reset() {
	p.backoff.Reset()
}

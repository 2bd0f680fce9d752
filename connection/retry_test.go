package connection

import (
	"testing"
	"time"
)

func TestRetryPolicyDelays(t *testing.T) {
	p := NewRetryPolicy()
	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := p.NextDelay(); got != w {
			t.Errorf("delay %d: expected %v, got %v", i, w, got)
		}
	}

	p.Reset()
	if got := p.NextDelay(); got != 2*time.Second {
		t.Errorf("Expected reset to start over at 2s, got %v", got)
	}
}

func TestRetryPolicyCustomDelays(t *testing.T) {
	p := NewRetryPolicy(WithDelays(100*time.Millisecond, 250*time.Millisecond), WithMultiplier(3))
	want := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}
	for i, w := range want {
		if got := p.NextDelay(); got != w {
			t.Errorf("delay %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestRetryPolicySchedule(t *testing.T) {
	var gotDelay time.Duration
	ran := false
	p := NewRetryPolicy(WithScheduler(func(d time.Duration, fn func()) {
		gotDelay = d
		fn()
	}))

	if d := p.Schedule(func() { ran = true }); d != 2*time.Second {
		t.Errorf("Expected 2s, got %v", d)
	}
	if !ran || gotDelay != 2*time.Second {
		t.Errorf("Expected scheduled fn to run after 2s, ran=%v delay=%v", ran, gotDelay)
	}
}

func TestPollSchedulerRunsDueTasksInOrder(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewPollScheduler(func() time.Time { return now })
	var ran []string
	s.Schedule(2*time.Second, func() { ran = append(ran, "late") })
	s.Schedule(time.Second, func() { ran = append(ran, "early") })
	s.Schedule(time.Second, func() { ran = append(ran, "early2") })

	if n := s.Poll(); n != 0 {
		t.Fatalf("Expected nothing due, ran %d", n)
	}
	now = now.Add(time.Second)
	if n := s.Poll(); n != 2 {
		t.Fatalf("Expected 2 due tasks, ran %d", n)
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 task left, got %d", s.Len())
	}
	now = now.Add(time.Second)
	s.Poll()
	want := []string{"early", "early2", "late"}
	for i, w := range want {
		if i >= len(ran) || ran[i] != w {
			t.Fatalf("Expected %v, got %v", want, ran)
		}
	}
}

func TestPollSchedulerAcceptsTasksScheduledWhilePolling(t *testing.T) {
	s := NewPollScheduler(nil)
	count := 0
	var again func()
	again = func() {
		count++
		if count < 2 {
			s.Schedule(0, again)
		}
	}
	s.Schedule(0, again)
	s.Poll()
	if s.Len() != 1 {
		t.Fatalf("Expected the rescheduled task to wait for the next poll, got %d", s.Len())
	}
	s.Poll()
	if count != 2 {
		t.Errorf("Expected 2 runs, got %d", count)
	}
}

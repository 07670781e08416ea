package service

import (
	"context"
	"sync"
	"time"
)

// QuizTimer counts an assessment window down one second at a time. The
// expiry callback fires exactly once, even under racing ticks and stops, and
// the remaining time never goes negative.
type QuizTimer struct {
	mu        sync.Mutex
	remaining time.Duration
	interval  time.Duration
	onExpire  func()
	expire    sync.Once
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewQuizTimer creates a stopped timer holding the full duration. onExpire
// may be nil.
func NewQuizTimer(duration time.Duration, onExpire func()) *QuizTimer {
	return &QuizTimer{
		remaining: duration,
		interval:  time.Second,
		onExpire:  onExpire,
		stop:      make(chan struct{}),
	}
}

// Start runs the countdown until expiry, Stop, or context cancellation.
func (t *QuizTimer) Start(ctx context.Context) {
	go t.run(ctx)
}

func (t *QuizTimer) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if t.tick() {
				return
			}
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick decrements once and reports whether the timer has expired.
func (t *QuizTimer) tick() bool {
	t.mu.Lock()
	t.remaining -= t.interval
	if t.remaining < 0 {
		t.remaining = 0
	}
	expired := t.remaining == 0
	t.mu.Unlock()

	if expired {
		t.fireExpire()
	}
	return expired
}

func (t *QuizTimer) fireExpire() {
	t.expire.Do(func() {
		if t.onExpire != nil {
			t.onExpire()
		}
	})
}

// Stop halts the countdown; the expiry callback will not fire afterwards
// unless the timer had already expired.
func (t *QuizTimer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Remaining returns the time left, never negative.
func (t *QuizTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

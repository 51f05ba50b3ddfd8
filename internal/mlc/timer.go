package mlc

import (
	"fmt"
	"time"
)

// ReadingTimer accumulates active reading time across pause/resume
// cycles. Paused time is never counted.
type ReadingTimer struct {
	now         func() time.Time
	running     bool
	startedAt   time.Time
	accumulated time.Duration
}

func NewReadingTimer() *ReadingTimer {
	return &ReadingTimer{now: time.Now}
}

// Start begins timing from zero. Starting a running timer restarts it.
func (t *ReadingTimer) Start() {
	t.accumulated = 0
	t.startedAt = t.now()
	t.running = true
}

// Pause freezes the accumulated total. No-op when not running.
func (t *ReadingTimer) Pause() {
	if !t.running {
		return
	}
	t.accumulated += t.now().Sub(t.startedAt)
	t.running = false
}

// Resume continues timing after a pause. No-op when already running.
func (t *ReadingTimer) Resume() {
	if t.running {
		return
	}
	t.startedAt = t.now()
	t.running = true
}

// Stop halts the timer and returns the final total.
func (t *ReadingTimer) Stop() time.Duration {
	t.Pause()
	return t.accumulated
}

// Reset discards all accumulated time and stops the timer.
func (t *ReadingTimer) Reset() {
	t.accumulated = 0
	t.running = false
}

func (t *ReadingTimer) Running() bool { return t.running }

// Elapsed is the accumulated active time, including the current run.
func (t *ReadingTimer) Elapsed() time.Duration {
	if t.running {
		return t.accumulated + t.now().Sub(t.startedAt)
	}
	return t.accumulated
}

func (t *ReadingTimer) TotalSeconds() int {
	return int(t.Elapsed().Seconds())
}

// FormatClock renders seconds as MM:SS for the on-screen clock.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

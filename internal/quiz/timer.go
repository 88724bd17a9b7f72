package quiz

import "time"

// DefaultQuestionTime is the countdown given to every question.
const DefaultQuestionTime = 60 * time.Second

// Timer is a per-question countdown in whole seconds. It is advanced by Tick and
// has no goroutine of its own; the owning Session serializes access.
type Timer struct {
	duration  int
	remaining int
	active    bool
}

func NewTimer(d time.Duration) *Timer {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &Timer{duration: secs, remaining: secs}
}

// Reset restarts the countdown at full duration.
func (t *Timer) Reset() {
	t.remaining = t.duration
	t.active = true
}

// Stop deactivates the countdown; further ticks are ignored until Reset.
func (t *Timer) Stop() {
	t.active = false
}

// Tick consumes one second. It reports true exactly once per Reset, on the tick
// that reaches zero, and deactivates the timer at that point.
func (t *Timer) Tick() bool {
	if !t.active || t.remaining <= 0 {
		return false
	}
	t.remaining--
	if t.remaining == 0 {
		t.active = false
		return true
	}
	return false
}

func (t *Timer) Remaining() int {
	return t.remaining
}

func (t *Timer) Active() bool {
	return t.active
}

func (t *Timer) Duration() int {
	return t.duration
}

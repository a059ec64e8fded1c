package lab

import (
	"sync"
	"time"
)

// Delay is how long to wait before showing something that sounds at clock
// time at, when the clock reads now.
func Delay(at, now float64) time.Duration {
	d := time.Duration((at - now) * float64(time.Second))
	if d < 0 {
		return 0
	}
	return d
}

// Highlighter fires UI updates when the sound they belong to is heard
// rather than when it was scheduled.
type Highlighter struct {
	now func() float64

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

// NewHighlighter reads audio time from now.
func NewHighlighter(now func() float64) *Highlighter {
	return &Highlighter{now: now, timers: make(map[*time.Timer]struct{})}
}

// Schedule runs fn on its own goroutine once clock time at is reached.
func (h *Highlighter) Schedule(at float64, fn func()) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(Delay(at, h.now()), func() {
		h.mu.Lock()
		_, live := h.timers[t]
		delete(h.timers, t)
		h.mu.Unlock()
		if live {
			fn()
		}
	})
	h.timers[t] = struct{}{}
}

// CancelAll drops every update not yet fired.
func (h *Highlighter) CancelAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for t := range h.timers {
		t.Stop()
		delete(h.timers, t)
	}
}

// Pending is the number of updates waiting to fire.
func (h *Highlighter) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

package ingest

import (
	"sync"
	"time"
)

// FixedWindowLimiter counts requests per wall-clock minute. The counter
// resets when the minute key changes; drift under clock adjustments is
// tolerated since the limiter only sheds webhook floods.
type FixedWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window string
	count  int
	now    func() time.Time
}

// NewFixedWindowLimiter allows limit requests per minute.
func NewFixedWindowLimiter(limit int) *FixedWindowLimiter {
	return &FixedWindowLimiter{limit: limit, now: time.Now}
}

// Allow reports whether the current request fits in this minute's window.
func (l *FixedWindowLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := l.now().Format("2006-01-02T15:04")
	if key != l.window {
		l.window = key
		l.count = 0
	}
	l.count++
	return l.count <= l.limit
}

// Package breaker implements the self-braking failure controller: a rolling
// window of recent trade outcomes that halts new buys when the pipeline is
// misbehaving.
package breaker

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxSamples bounds the outcome ring regardless of window length.
const maxSamples = 256

// Sample kinds recorded by the pipeline.
const (
	KindCopied     = "COPIED"
	KindFailed     = "FAILED"
	KindRejected   = "REJECTED"
	KindNoPosition = "NO_POSITION"
)

// Config holds the opening thresholds.
type Config struct {
	// FailRatePct opens the breaker when the share of FAILED among
	// terminal outcomes in the window exceeds this percentage. Needs at
	// least 3 terminal samples.
	FailRatePct float64
	// Window is the rolling interval outcomes are evaluated over.
	Window time.Duration
	// LatencyP99Ms opens the breaker when the P99 total latency of COPIED
	// trades exceeds this. Needs at least 5 COPIED samples.
	LatencyP99Ms int64
	// NoPositionSpike opens the breaker at this many NO_POSITION
	// rejections in the window. Zero disables the check.
	NoPositionSpike int
	// AutoReset closes an open breaker after this interval on the next
	// query. Zero keeps it open until an explicit Reset.
	AutoReset time.Duration
}

type sample struct {
	kind      string
	latencyMs int64
	at        time.Time
}

// Breaker is the sliding-window outcome monitor. Opening is monotonic:
// once open it stays open until Reset or the auto-reset interval elapses.
// State is process-local and intentionally not persisted.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	samples  []sample
	open     bool
	reason   string
	openedAt time.Time
	log      *logrus.Entry
	now      func() time.Time
}

// New creates a closed breaker.
func New(cfg Config, log *logrus.Logger) *Breaker {
	return &Breaker{
		cfg: cfg,
		log: log.WithField("component", "breaker"),
		now: time.Now,
	}
}

// Record adds one outcome and re-evaluates the thresholds.
// Returns true if this record opened the breaker.
func (b *Breaker) Record(kind string, latencyMs int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.samples = append(b.samples, sample{kind: kind, latencyMs: latencyMs, at: now})
	if len(b.samples) > maxSamples {
		b.samples = b.samples[len(b.samples)-maxSamples:]
	}

	if b.open {
		return false
	}

	if reason := b.evaluate(now); reason != "" {
		b.open = true
		b.reason = reason
		b.openedAt = now
		b.log.WithField("reason", reason).Warn("circuit breaker opened")
		return true
	}
	return false
}

// evaluate checks all thresholds against the window ending at now.
// Caller holds the lock.
func (b *Breaker) evaluate(now time.Time) string {
	cutoff := now.Add(-b.cfg.Window)

	var copied, failed, noPosition int
	var copiedLatencies []int64
	for _, s := range b.samples {
		if s.at.Before(cutoff) {
			continue
		}
		switch s.kind {
		case KindCopied:
			copied++
			copiedLatencies = append(copiedLatencies, s.latencyMs)
		case KindFailed:
			failed++
		case KindNoPosition:
			noPosition++
		}
	}

	terminal := copied + failed
	if b.cfg.FailRatePct > 0 && terminal >= 3 {
		failRate := float64(failed) / float64(terminal) * 100
		if failRate > b.cfg.FailRatePct {
			return "FAIL_RATE"
		}
	}

	if b.cfg.NoPositionSpike > 0 && noPosition >= b.cfg.NoPositionSpike {
		return "NO_POSITION_SPIKE"
	}

	if b.cfg.LatencyP99Ms > 0 && copied >= 5 {
		if p99(copiedLatencies) > b.cfg.LatencyP99Ms {
			return "LATENCY_P99"
		}
	}

	return ""
}

// IsOpen reports the breaker state, applying the timed auto-reset.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open && b.cfg.AutoReset > 0 && b.now().Sub(b.openedAt) >= b.cfg.AutoReset {
		b.log.WithField("reason", b.reason).Info("circuit breaker auto-reset")
		b.resetLocked()
	}
	return b.open
}

// Reason returns the open reason, empty when closed.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// Reset explicitly closes the breaker and clears the window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Breaker) resetLocked() {
	b.open = false
	b.reason = ""
	b.openedAt = time.Time{}
	b.samples = b.samples[:0]
}

// p99 returns the 99th-percentile value by nearest-rank.
func p99(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := (99*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

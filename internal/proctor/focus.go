// Package proctor implements the passive proctoring signal collector: a
// de-duplicating focus-loss counter and a periodic camera capture loop that
// pushes frames to the platform photo store.
//
// Both signals accumulate independently of the Q&A progression and are read,
// never reset, at session completion.
package proctor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/intervox/intervox/internal/observe"
)

// DefaultDedupeWindow collapses the redundant visibility/blur/pagehide
// signals a single tab switch produces into one counted event.
const DefaultDedupeWindow = 300 * time.Millisecond

// FocusOption is a functional option for configuring the FocusCounter.
type FocusOption func(*FocusCounter)

// WithDedupeWindow overrides the de-duplication window. Intended for tests.
func WithDedupeWindow(d time.Duration) FocusOption {
	return func(f *FocusCounter) {
		f.dedupe = d
	}
}

// WithFocusMetrics attaches a metrics sink to the counter.
func WithFocusMetrics(m *observe.Metrics) FocusOption {
	return func(f *FocusCounter) {
		f.metrics = m
	}
}

// WithFocusLogger replaces the counter's default slog logger.
func WithFocusLogger(l *slog.Logger) FocusOption {
	return func(f *FocusCounter) {
		f.log = l
	}
}

// FocusCounter counts qualifying focus-loss events. A browser tab switch
// fires several near-simultaneous signals (page hidden, window blur, page
// hide); events inside the de-duplication window count once. Safe for
// concurrent use.
type FocusCounter struct {
	dedupe  time.Duration
	metrics *observe.Metrics
	log     *slog.Logger

	mu    sync.Mutex
	last  time.Time
	count int
}

// NewFocusCounter creates a counter with the default de-duplication window.
func NewFocusCounter(opts ...FocusOption) *FocusCounter {
	f := &FocusCounter{
		dedupe: DefaultDedupeWindow,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Record registers a focus-loss signal observed at the given instant and
// reports whether it was counted. Signal timestamps come from the event
// source, not from processing time, so queueing delays cannot defeat the
// de-duplication.
func (f *FocusCounter) Record(at time.Time) bool {
	f.mu.Lock()
	if !f.last.IsZero() && at.Sub(f.last) <= f.dedupe {
		f.mu.Unlock()
		return false
	}
	f.last = at
	f.count++
	count := f.count
	f.mu.Unlock()

	f.log.Debug("focus loss counted", "total", count)
	if f.metrics != nil {
		f.metrics.TabSwitches.Add(context.Background(), 1)
	}
	return true
}

// Count returns the accumulated de-duplicated total.
func (f *FocusCounter) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

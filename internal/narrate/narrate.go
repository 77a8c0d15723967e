// Package narrate implements the speech playback unit: it reads interview
// questions aloud through a [speech.Synthesizer] and signals the session
// controller when the capture window may open.
//
// Ordering is the whole point of this package: capture must never start while
// a question is still being narrated, and a superseded narration (cancelled
// by an advance) must never arm capture for a question that is no longer
// active. After a natural completion a short settle delay keeps the tail of
// the synthesized audio out of the candidate's transcript. Synthesis errors
// and missing synthesizer support skip the delay and arm capture immediately
// so the candidate is never stuck waiting.
package narrate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/pkg/speech"
)

// DefaultSettleDelay is the pause between natural narration completion and
// the capture-ready signal.
const DefaultSettleDelay = 500 * time.Millisecond

// Option is a functional option for configuring the Narrator.
type Option func(*Narrator)

// WithVoice replaces the default narration voice profile.
func WithVoice(v speech.Voice) Option {
	return func(n *Narrator) {
		n.voice = v
	}
}

// WithSettleDelay overrides the post-narration settle delay. Intended for
// tests.
func WithSettleDelay(d time.Duration) Option {
	return func(n *Narrator) {
		n.settleDelay = d
	}
}

// WithDoneFunc registers the capture-ready callback. It fires exactly once
// per narration that runs to completion (or fails, or is skipped), and never
// for a cancelled one. The callback receives the generation token the
// matching Speak returned, so the receiver can drop signals from narrations
// it has since moved past.
func WithDoneFunc(fn func(gen int)) Option {
	return func(n *Narrator) {
		n.onDone = fn
	}
}

// WithMetrics attaches a metrics sink. When nil, no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(n *Narrator) {
		n.metrics = m
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Narrator) {
		n.log = l
	}
}

// Narrator is the speech playback unit. Safe for concurrent use.
type Narrator struct {
	synth   speech.Synthesizer
	voice   speech.Voice
	onDone  func(int)
	metrics *observe.Metrics
	log     *slog.Logger

	settleDelay time.Duration

	mu       sync.Mutex
	enabled  bool
	speaking bool
	handle   speech.SpeakHandle

	// gen invalidates completion and settle callbacks of superseded
	// narrations.
	gen int
}

// New creates a Narrator speaking through synth. A nil synth marks narration
// as unsupported: every Speak arms capture immediately.
func New(synth speech.Synthesizer, opts ...Option) *Narrator {
	n := &Narrator{
		synth:       synth,
		voice:       speech.DefaultVoice,
		enabled:     true,
		settleDelay: DefaultSettleDelay,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Configure switches narration on or off. Disabling cancels any in-flight
// narration.
func (n *Narrator) Configure(enabled bool) {
	n.mu.Lock()
	n.enabled = enabled
	n.mu.Unlock()
	if !enabled {
		n.Cancel()
	}
}

// IsSpeaking reports whether a narration is in flight.
func (n *Narrator) IsSpeaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.speaking
}

// Speak narrates text, cancelling any narration still in flight. When
// narration is disabled or unsupported the capture-ready callback fires
// immediately. The returned generation token identifies this narration: the
// capture-ready callback carries the same token, and a later Speak or Cancel
// makes it stale.
func (n *Narrator) Speak(ctx context.Context, text string) int {
	n.mu.Lock()
	n.gen++
	gen := n.gen
	prev := n.handle
	n.handle = nil
	n.speaking = false
	enabled := n.enabled
	n.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	if !enabled || n.synth == nil || text == "" {
		n.fireDone(gen)
		return gen
	}

	h, err := n.synth.Speak(ctx, text, n.voice)
	if err != nil {
		n.log.Warn("narration failed to start, arming capture immediately", "error", err)
		n.fireDone(gen)
		return gen
	}

	n.mu.Lock()
	if gen != n.gen {
		// Superseded while starting.
		n.mu.Unlock()
		h.Cancel()
		return gen
	}
	n.handle = h
	n.speaking = true
	n.mu.Unlock()

	go n.await(ctx, gen, h, time.Now())
	return gen
}

// Cancel aborts any in-flight narration. The cancelled narration's
// capture-ready callback never fires.
func (n *Narrator) Cancel() {
	n.mu.Lock()
	n.gen++
	h := n.handle
	n.handle = nil
	n.speaking = false
	n.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
}

// await waits for one narration to settle and schedules the capture-ready
// signal.
func (n *Narrator) await(ctx context.Context, gen int, h speech.SpeakHandle, start time.Time) {
	var err error
	select {
	case err = <-h.Done():
	case <-ctx.Done():
		h.Cancel()
		return
	}

	n.mu.Lock()
	if gen != n.gen {
		n.mu.Unlock()
		return
	}
	n.speaking = false
	n.handle = nil
	n.mu.Unlock()

	if n.metrics != nil {
		n.metrics.NarrationDuration.Record(ctx, time.Since(start).Seconds())
	}

	if err != nil {
		// Synthesis errors skip the settle delay; the candidate should not
		// wait on a narration that already failed.
		n.log.Warn("narration error, arming capture immediately", "error", err)
		n.fireDone(gen)
		return
	}

	time.AfterFunc(n.settleDelay, func() {
		n.fireDone(gen)
	})
}

// fireDone invokes the capture-ready callback unless the narration was
// superseded in the meantime.
func (n *Narrator) fireDone(gen int) {
	n.mu.Lock()
	stale := gen != n.gen
	n.mu.Unlock()
	if stale || n.onDone == nil {
		return
	}
	n.onDone(gen)
}

// Package capture implements the speech capture unit: it drives a
// [speech.Recognizer] in continuous interim-result mode, accumulates the
// candidate's transcript, and keeps recognition alive across the engine's
// frequent self-terminations.
//
// The transcript has two parts: an append-only final transcript (every
// finalized recognition result, space-joined) and a replaceable interim
// fragment (the latest non-final partial). The exposed current answer is
// always the concatenation of both, so the UI never shows text regressing
// while the candidate speaks.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/pkg/speech"
)

// Recognition engines routinely end sessions on their own (silence, service
// hiccups). Each cause gets its own restart delay so transient network noise
// backs off harder than plain silence.
const (
	// DefaultRestartDelay applies after a clean engine end.
	DefaultRestartDelay = 100 * time.Millisecond

	// DefaultNoSpeechDelay applies after a no-speech error.
	DefaultNoSpeechDelay = 100 * time.Millisecond

	// DefaultNetworkDelay applies after a network error.
	DefaultNetworkDelay = 1000 * time.Millisecond

	// DefaultErrorDelay applies after any other recoverable error.
	DefaultErrorDelay = 500 * time.Millisecond

	// DefaultSpeakingDebounce is how long after the last recognition result
	// the candidate is still considered to be speaking.
	DefaultSpeakingDebounce = 800 * time.Millisecond
)

// Snapshot is the externally visible capture state, delivered to the update
// callback on every change.
type Snapshot struct {
	// Answer is the current answer text: final transcript plus interim.
	Answer string

	// Listening reports whether a recognition session is live.
	Listening bool

	// Speaking reports whether the candidate produced a recognition result
	// within the debounce window.
	Speaking bool

	// Fatal is set once a non-recoverable recognition error latches the unit.
	Fatal *speech.RecognitionError
}

// Option is a functional option for configuring the Unit.
type Option func(*Unit)

// WithListenConfig replaces the default recognition config.
func WithListenConfig(cfg speech.ListenConfig) Option {
	return func(u *Unit) {
		u.listenCfg = cfg
	}
}

// WithDelays overrides the restart and debounce timings. Zero values keep the
// defaults. Intended for tests.
func WithDelays(restart, noSpeech, network, generic, debounce time.Duration) Option {
	return func(u *Unit) {
		if restart > 0 {
			u.restartDelay = restart
		}
		if noSpeech > 0 {
			u.noSpeechDelay = noSpeech
		}
		if network > 0 {
			u.networkDelay = network
		}
		if generic > 0 {
			u.errorDelay = generic
		}
		if debounce > 0 {
			u.speakingDebounce = debounce
		}
	}
}

// WithUpdateFunc registers the state change callback. Called outside the
// unit's lock; it is safe to call back into the unit from it.
func WithUpdateFunc(fn func(Snapshot)) Option {
	return func(u *Unit) {
		u.onUpdate = fn
	}
}

// WithFatalFunc registers a callback invoked once when a fatal recognition
// error latches the unit.
func WithFatalFunc(fn func(*speech.RecognitionError)) Option {
	return func(u *Unit) {
		u.onFatal = fn
	}
}

// WithMetrics attaches a metrics sink. When nil, no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(u *Unit) {
		u.metrics = m
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Unit) {
		u.log = l
	}
}

// Unit is the speech capture unit. Safe for concurrent use.
type Unit struct {
	rec       speech.Recognizer
	listenCfg speech.ListenConfig
	onUpdate  func(Snapshot)
	onFatal   func(*speech.RecognitionError)
	metrics   *observe.Metrics
	log       *slog.Logger

	restartDelay     time.Duration
	noSpeechDelay    time.Duration
	networkDelay     time.Duration
	errorDelay       time.Duration
	speakingDebounce time.Duration

	mu        sync.Mutex
	enabled   bool
	active    bool
	listening bool
	speaking  bool
	finals    string
	interim   string
	fatal     *speech.RecognitionError
	handle    speech.ListenHandle
	ctx       context.Context

	// gen invalidates pending restarts scheduled before a Stop or Reset.
	gen int

	// nextDelay and nextCause carry the backoff chosen by the most recent
	// error event into the end event that follows it.
	nextDelay time.Duration
	nextCause string

	speakTimer *time.Timer
}

// New creates a capture Unit reading from rec. The unit is enabled by
// default; it does nothing until [Unit.Start].
func New(rec speech.Recognizer, opts ...Option) *Unit {
	u := &Unit{
		rec: rec,
		listenCfg: speech.ListenConfig{
			Language:       "en-US",
			Continuous:     true,
			InterimResults: true,
		},
		enabled:          true,
		log:              slog.Default(),
		restartDelay:     DefaultRestartDelay,
		noSpeechDelay:    DefaultNoSpeechDelay,
		networkDelay:     DefaultNetworkDelay,
		errorDelay:       DefaultErrorDelay,
		speakingDebounce: DefaultSpeakingDebounce,
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Configure switches the unit on or off. Disabling an active unit stops it.
func (u *Unit) Configure(enabled bool) {
	u.mu.Lock()
	u.enabled = enabled
	wasActive := u.active
	u.mu.Unlock()

	if !enabled && wasActive {
		u.Stop()
	}
}

// Start opens a recognition session and begins accumulating the transcript.
// Returns the latched fatal error when the unit can no longer capture. Start
// on an already active unit is a no-op.
func (u *Unit) Start(ctx context.Context) error {
	u.mu.Lock()
	if u.fatal != nil {
		err := u.fatal
		u.mu.Unlock()
		return err
	}
	if !u.enabled || u.active {
		u.mu.Unlock()
		return nil
	}
	u.active = true
	u.ctx = ctx
	u.gen++
	gen := u.gen
	u.mu.Unlock()

	u.beginListen(ctx, gen)
	return nil
}

// Stop tears the capture session down. Idempotent; the accumulated transcript
// survives so the session controller can read it when advancing.
func (u *Unit) Stop() {
	u.mu.Lock()
	if !u.active && u.handle == nil {
		u.mu.Unlock()
		return
	}
	u.active = false
	u.listening = false
	u.speaking = false
	u.gen++
	if u.speakTimer != nil {
		u.speakTimer.Stop()
		u.speakTimer = nil
	}
	h := u.handle
	u.handle = nil
	snap := u.snapshotLocked()
	u.mu.Unlock()

	if h != nil {
		if err := h.Abort(); err != nil {
			u.log.Debug("capture abort", "error", err)
		}
	}
	u.emit(snap)
}

// ResetTranscript clears the accumulated transcript. Capture, if active,
// keeps running.
func (u *Unit) ResetTranscript() {
	u.mu.Lock()
	u.finals = ""
	u.interim = ""
	snap := u.snapshotLocked()
	u.mu.Unlock()
	u.emit(snap)
}

// CurrentAnswer returns the final transcript plus the pending interim
// fragment.
func (u *Unit) CurrentAnswer() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.finals + u.interim
}

// FinalTranscript returns only the finalized portion of the transcript.
func (u *Unit) FinalTranscript() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.finals
}

// IsListening reports whether a recognition session is currently live.
func (u *Unit) IsListening() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.listening
}

// IsUserSpeaking reports whether a recognition result arrived within the
// debounce window.
func (u *Unit) IsUserSpeaking() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.speaking
}

// FatalError returns the latched non-recoverable error, or nil.
func (u *Unit) FatalError() *speech.RecognitionError {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fatal
}

// beginListen opens one recognition session and spawns the event reader. On
// open failure it schedules a retry with the generic error delay.
func (u *Unit) beginListen(ctx context.Context, gen int) {
	h, err := u.rec.Listen(ctx, u.listenCfg)

	u.mu.Lock()
	if gen != u.gen || !u.active {
		u.mu.Unlock()
		if h != nil {
			_ = h.Abort()
		}
		return
	}
	if err != nil {
		u.mu.Unlock()
		u.log.Warn("recognition start failed, retrying", "error", err)
		u.scheduleRestart(ctx, gen, u.errorDelay, "start-failed")
		return
	}
	u.handle = h
	u.listening = true
	snap := u.snapshotLocked()
	u.mu.Unlock()

	u.emit(snap)
	go u.readEvents(ctx, gen, h)
}

// readEvents consumes one recognition session's event stream until it closes.
func (u *Unit) readEvents(ctx context.Context, gen int, h speech.ListenHandle) {
	for ev := range h.Events() {
		switch ev.Kind {
		case speech.EventResult:
			u.handleResult(ev.Result)
		case speech.EventError:
			u.handleError(ev.Err)
		case speech.EventEnd:
			u.handleEnd(ctx, gen)
			return
		}
	}
	// Stream closed without an explicit end event.
	u.handleEnd(ctx, gen)
}

// handleResult folds a recognition result into the transcript and refreshes
// the speaking debounce.
func (u *Unit) handleResult(r speech.Result) {
	u.mu.Lock()
	if r.IsFinal {
		if r.Text != "" {
			u.finals += r.Text + " "
		}
		u.interim = ""
	} else {
		u.interim = r.Text
	}
	u.speaking = true
	if u.speakTimer != nil {
		u.speakTimer.Stop()
	}
	u.speakTimer = time.AfterFunc(u.speakingDebounce, u.speakingExpired)
	snap := u.snapshotLocked()
	u.mu.Unlock()
	u.emit(snap)
}

// speakingExpired clears the speaking flag once the debounce window passes
// without a new result.
func (u *Unit) speakingExpired() {
	u.mu.Lock()
	if !u.speaking {
		u.mu.Unlock()
		return
	}
	u.speaking = false
	snap := u.snapshotLocked()
	u.mu.Unlock()
	u.emit(snap)
}

// handleError classifies a recognition error. Fatal codes latch the unit;
// recoverable ones choose the backoff for the engine end that follows.
func (u *Unit) handleError(err *speech.RecognitionError) {
	if err == nil {
		return
	}
	if err.Fatal() {
		u.mu.Lock()
		u.fatal = err
		u.active = false
		u.listening = false
		u.speaking = false
		u.gen++
		h := u.handle
		u.handle = nil
		snap := u.snapshotLocked()
		u.mu.Unlock()

		u.log.Error("recognition failed fatally", "code", err.Code, "error", err)
		if u.metrics != nil {
			u.metrics.RecordRecognitionFailure(context.Background(), string(err.Code))
		}
		if h != nil {
			_ = h.Abort()
		}
		u.emit(snap)
		if u.onFatal != nil {
			u.onFatal(err)
		}
		return
	}

	u.mu.Lock()
	switch err.Code {
	case speech.ErrNoSpeech:
		u.nextDelay, u.nextCause = u.noSpeechDelay, "no-speech"
	case speech.ErrNetwork:
		u.nextDelay, u.nextCause = u.networkDelay, "network"
	default:
		u.nextDelay, u.nextCause = u.errorDelay, "other"
	}
	u.mu.Unlock()
	u.log.Debug("recoverable recognition error", "code", err.Code)
}

// handleEnd reacts to the engine ending a session: restart while the unit is
// still meant to be capturing, using the backoff chosen by a preceding error.
func (u *Unit) handleEnd(ctx context.Context, gen int) {
	u.mu.Lock()
	if gen != u.gen {
		u.mu.Unlock()
		return
	}
	u.listening = false
	u.handle = nil
	delay, cause := u.nextDelay, u.nextCause
	u.nextDelay, u.nextCause = 0, ""
	if delay == 0 {
		delay, cause = u.restartDelay, "end"
	}
	active := u.active
	snap := u.snapshotLocked()
	u.mu.Unlock()

	u.emit(snap)
	if active {
		u.scheduleRestart(ctx, gen, delay, cause)
	}
}

// scheduleRestart reopens the recognition session after delay unless the unit
// was stopped or restarted in the meantime.
func (u *Unit) scheduleRestart(ctx context.Context, gen int, delay time.Duration, cause string) {
	time.AfterFunc(delay, func() {
		u.mu.Lock()
		if gen != u.gen || !u.active {
			u.mu.Unlock()
			return
		}
		u.mu.Unlock()

		if u.metrics != nil {
			u.metrics.RecordRecognitionRestart(ctx, cause)
		}
		u.log.Debug("restarting recognition", "cause", cause, "delay", delay)
		u.beginListen(ctx, gen)
	})
}

// snapshotLocked builds a Snapshot. Caller must hold u.mu.
func (u *Unit) snapshotLocked() Snapshot {
	return Snapshot{
		Answer:    u.finals + u.interim,
		Listening: u.listening,
		Speaking:  u.speaking,
		Fatal:     u.fatal,
	}
}

// emit delivers a snapshot to the update callback, if any.
func (u *Unit) emit(s Snapshot) {
	if u.onUpdate != nil {
		u.onUpdate(s)
	}
}

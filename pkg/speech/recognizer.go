// Package speech defines the capability ports for speech capture and speech
// playback.
//
// In production both capabilities live in the candidate's browser and are
// driven over the gateway's WebSocket bridge; in tests they are provided by
// the mock subpackage. The session engine depends only on these interfaces —
// never on a concrete transport — so the ordering and restart rules of the
// capture lifecycle can be exercised deterministically.
//
// Implementations must be safe for concurrent use.
package speech

import "context"

// ListenConfig describes a new capture session.
type ListenConfig struct {
	// Language is the BCP-47 recognition locale (e.g., "en-US").
	Language string

	// Continuous requests that the recogniser keep listening across pauses
	// instead of stopping after the first utterance.
	Continuous bool

	// InterimResults requests provisional (non-final) result events.
	InterimResults bool

	// MaxAlternatives bounds the number of alternatives per result. The
	// engine only consumes the top alternative.
	MaxAlternatives int
}

// ListenHandle represents one open capture session. It is an interface so
// tests can provide scripted implementations without a live capability.
//
// Callers must call Stop (or Abort) when the session is no longer needed.
// Both must be safe to call multiple times and from any state, including when
// the underlying resource was never acquired or already released.
type ListenHandle interface {
	// Events returns a read-only channel emitting recognition results,
	// natural-end signals, and errors. The channel is closed when the session
	// ends for any reason.
	Events() <-chan RecognitionEvent

	// Stop requests a graceful stop: buffered audio is still recognised and a
	// final result may be emitted before the event channel closes.
	Stop() error

	// Abort terminates immediately, discarding any pending audio.
	Abort() error
}

// Recognizer is the abstraction over a speech capture capability.
type Recognizer interface {
	// Listen opens a new capture session. The returned handle is live
	// immediately; the caller owns it and must stop it when done.
	//
	// A permission or hardware failure may surface either as an error here or
	// as a fatal EventError on the handle, depending on when the capability
	// detects it. Callers must handle both paths.
	Listen(ctx context.Context, cfg ListenConfig) (ListenHandle, error)
}

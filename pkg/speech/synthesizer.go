package speech

import "context"

// SpeakHandle represents one in-flight narration. Completion is observed via
// Done; Cancel must be idempotent and safe after the narration has already
// finished.
type SpeakHandle interface {
	// Done returns a channel that receives exactly one value when the
	// narration ends: nil for natural completion, a non-nil error for
	// synthesis failure or cancellation. The channel is closed afterwards.
	Done() <-chan error

	// Cancel stops playback immediately. Calling Cancel after completion or
	// more than once is a no-op.
	Cancel()
}

// Synthesizer is the abstraction over a text-to-speech playback capability.
//
// A nil Synthesizer (or one whose Speak returns an error) means narration is
// unsupported in the environment; callers must degrade gracefully rather than
// block on a completion that will never arrive.
type Synthesizer interface {
	// Speak starts narrating text with the given voice profile and returns a
	// handle for completion and cancellation. Starting a new narration does
	// not implicitly cancel a previous one — the caller owns that ordering.
	Speak(ctx context.Context, text string, voice Voice) (SpeakHandle, error)
}

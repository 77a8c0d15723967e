package speech

// Result represents one recognition update from a capture session.
// Both interim (provisional) and final (committed) results use this type.
type Result struct {
	// Text is the recognised speech content for this segment.
	Text string

	// IsFinal indicates whether the recogniser has committed to this segment.
	// Final segments are appended to the accumulated transcript; interim
	// segments replace the previous interim buffer.
	IsFinal bool

	// Confidence is the recogniser's confidence score (0.0–1.0). May be zero
	// when the capability does not report confidence.
	Confidence float64
}

// EventKind discriminates the variants of a [RecognitionEvent].
type EventKind int

const (
	// EventResult carries a Result (interim or final).
	EventResult EventKind = iota

	// EventEnd signals that the recogniser terminated on its own. Browser
	// recognisers self-terminate periodically; continuous listening is
	// simulated by restarting after this event.
	EventEnd

	// EventError carries a classed recognition error.
	EventError
)

// RecognitionEvent is one item emitted by a [ListenHandle]. Exactly one of
// Result or Err is meaningful, selected by Kind.
type RecognitionEvent struct {
	Kind   EventKind
	Result Result
	Err    *RecognitionError
}

// ErrorCode identifies a recognition failure class reported by the capture
// capability. The values mirror the web speech recognition error names.
type ErrorCode string

const (
	// ErrNoSpeech means no speech was detected before the recogniser gave up.
	ErrNoSpeech ErrorCode = "no-speech"

	// ErrNetwork means the recognition service was unreachable.
	ErrNetwork ErrorCode = "network"

	// ErrAborted means the session was aborted by the caller.
	ErrAborted ErrorCode = "aborted"

	// ErrNotAllowed means microphone permission was denied.
	ErrNotAllowed ErrorCode = "not-allowed"

	// ErrAudioCapture means no usable microphone is available.
	ErrAudioCapture ErrorCode = "audio-capture"
)

// RecognitionError is a classed recognition failure.
type RecognitionError struct {
	// Code is the capability-reported error class.
	Code ErrorCode

	// Message is an optional human-readable detail.
	Message string
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return "speech: recognition error: " + string(e.Code)
	}
	return "speech: recognition error: " + string(e.Code) + ": " + e.Message
}

// Fatal reports whether this error class must not be retried. Permission and
// hardware failures are fatal; everything else is transient and eligible for
// auto-restart.
func (e *RecognitionError) Fatal() bool {
	switch e.Code {
	case ErrNotAllowed, ErrAudioCapture:
		return true
	}
	return false
}

// Voice holds synthesis delivery parameters for question narration.
type Voice struct {
	// Rate adjusts speaking rate (0.5–2.0, 1.0 = default).
	Rate float64

	// Pitch adjusts pitch (0.0–2.0, 1.0 = default).
	Pitch float64

	// Volume is the playback volume (0.0–1.0).
	Volume float64
}

// DefaultVoice is the narration profile used for interview questions: slightly
// slowed down so candidates can follow the question on first hearing.
var DefaultVoice = Voice{Rate: 0.8, Pitch: 1.0, Volume: 1.0}

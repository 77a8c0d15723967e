// Package camera defines the capability port for proctoring video capture.
//
// The production implementation is the candidate's browser camera driven over
// the gateway bridge; tests use the mock subpackage. The port deliberately
// exposes single-frame capture rather than a continuous stream: the proctor
// only needs one JPEG per interval tick.
//
// Implementations must be safe for concurrent use.
package camera

import "context"

// Frame is one captured camera image.
type Frame struct {
	// JPEG is the encoded image. Empty when encoding failed.
	JPEG []byte

	// Width and Height are the source video dimensions in pixels. A frame
	// captured before the video element reports real dimensions has zeros
	// here and must be skipped by the caller.
	Width  int
	Height int
}

// Valid reports whether the frame has non-zero dimensions and encoded bytes.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.JPEG) > 0
}

// StreamConfig describes the requested video stream.
type StreamConfig struct {
	// Width and Height are ideal (not guaranteed) dimensions.
	Width  int
	Height int

	// FacingUser requests the front-facing camera where a choice exists.
	FacingUser bool
}

// Stream represents an open camera stream owned by exactly one interview
// session at a time.
type Stream interface {
	// Ready returns a channel that is closed once the stream reports valid
	// non-zero dimensions. Captures before readiness yield invalid frames.
	Ready() <-chan struct{}

	// Capture grabs and encodes one frame. An invalid frame (zero dimensions
	// or failed encode) is returned without error; callers skip it and rely
	// on the next interval tick.
	Capture(ctx context.Context) (Frame, error)

	// Close stops all media tracks and releases the device. It must be
	// idempotent and safe to call when the device was never acquired.
	Close() error
}

// Camera is the abstraction over a video capture capability.
type Camera interface {
	// Open acquires the device and starts a stream. Permission denial is
	// returned as an error here.
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Package mock provides test doubles for the camera package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/intervox/intervox/pkg/camera"
)

// OpenCall records a single invocation of Camera.Open.
type OpenCall struct {
	// Cfg is the StreamConfig passed to Open.
	Cfg camera.StreamConfig
}

// Camera is a mock implementation of camera.Camera.
type Camera struct {
	mu sync.Mutex

	// Stream is returned by Open. If nil, Open returns a fresh ready Stream.
	Stream camera.Stream

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// OpenCalls records every call to Open.
	OpenCalls []OpenCall
}

// Open records the call and returns Stream (or a fresh one), OpenErr.
func (c *Camera) Open(_ context.Context, cfg camera.StreamConfig) (camera.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OpenCalls = append(c.OpenCalls, OpenCall{Cfg: cfg})
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	if c.Stream != nil {
		return c.Stream, nil
	}
	s := NewStream()
	s.SetReady()
	return s, nil
}

var _ camera.Camera = (*Camera)(nil)

// Stream is a mock implementation of camera.Stream. Tests script frames and
// control readiness explicitly.
type Stream struct {
	mu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once

	// Frames is the queue of frames returned by successive Capture calls.
	// When the queue is exhausted, Frame is returned instead.
	Frames []camera.Frame

	// Frame is the fallback frame returned once Frames is drained.
	Frame camera.Frame

	// CaptureErr, if non-nil, is returned by every Capture call.
	CaptureErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// CaptureCalls is the number of Capture invocations.
	CaptureCalls int

	// CloseCalls is the number of Close invocations.
	CloseCalls int
}

// NewStream creates a stream that is not yet ready.
func NewStream() *Stream {
	return &Stream{ready: make(chan struct{})}
}

// SetReady marks the stream as having valid dimensions. Idempotent.
func (s *Stream) SetReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Ready returns the readiness channel.
func (s *Stream) Ready() <-chan struct{} {
	return s.ready
}

// Capture records the call and returns the next scripted frame.
func (s *Stream) Capture(_ context.Context) (camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CaptureCalls++
	if s.CaptureErr != nil {
		return camera.Frame{}, s.CaptureErr
	}
	if len(s.Frames) > 0 {
		f := s.Frames[0]
		s.Frames = s.Frames[1:]
		return f, nil
	}
	return s.Frame, nil
}

// Close records the call and returns CloseErr.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return s.CloseErr
}

var _ camera.Stream = (*Stream)(nil)

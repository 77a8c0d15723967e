// Package mock provides test doubles for the speech package interfaces.
//
// Use Recognizer to verify that the caller opens capture sessions with the
// expected ListenConfig. Use ListenHandle to feed scripted RecognitionEvent
// values and inspect Stop/Abort calls. Synthesizer and SpeakHandle follow the
// same pattern for narration.
//
// Example:
//
//	h := mock.NewListenHandle()
//	r := &mock.Recognizer{Handle: h}
//	// ... start capture ...
//	h.Emit(speech.RecognitionEvent{Kind: speech.EventResult, Result: speech.Result{Text: "hi", IsFinal: true}})
package mock

import (
	"context"
	"sync"

	"github.com/intervox/intervox/pkg/speech"
)

// ListenCall records a single invocation of Recognizer.Listen.
type ListenCall struct {
	// Ctx is the context passed to Listen.
	Ctx context.Context
	// Cfg is the ListenConfig passed to Listen.
	Cfg speech.ListenConfig
}

// Recognizer is a mock implementation of speech.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Handle is returned by Listen. If nil, Listen returns a fresh
	// NewListenHandle each call.
	Handle speech.ListenHandle

	// ListenErr, if non-nil, is returned as the error from Listen.
	ListenErr error

	// ListenCalls records every call to Listen.
	ListenCalls []ListenCall

	// Handles records every auto-created handle, in order, when Handle is nil.
	Handles []*ListenHandle
}

// Listen records the call and returns Handle (or a fresh handle), ListenErr.
func (r *Recognizer) Listen(ctx context.Context, cfg speech.ListenConfig) (speech.ListenHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ListenCalls = append(r.ListenCalls, ListenCall{Ctx: ctx, Cfg: cfg})
	if r.ListenErr != nil {
		return nil, r.ListenErr
	}
	if r.Handle != nil {
		return r.Handle, nil
	}
	h := NewListenHandle()
	r.Handles = append(r.Handles, h)
	return h, nil
}

// ListenCount returns the number of Listen calls so far. Thread-safe.
func (r *Recognizer) ListenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ListenCalls)
}

// LastHandle returns the most recently auto-created handle, or nil.
func (r *Recognizer) LastHandle() *ListenHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Handles) == 0 {
		return nil
	}
	return r.Handles[len(r.Handles)-1]
}

var _ speech.Recognizer = (*Recognizer)(nil)

// ListenHandle is a mock implementation of speech.ListenHandle. Tests feed
// events through Emit and close the stream with End.
type ListenHandle struct {
	mu sync.Mutex

	events chan speech.RecognitionEvent
	closed bool

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// AbortErr, if non-nil, is returned by Abort.
	AbortErr error

	// StopCalls is the number of Stop invocations.
	StopCalls int

	// AbortCalls is the number of Abort invocations.
	AbortCalls int
}

// NewListenHandle creates a handle with a buffered event channel.
func NewListenHandle() *ListenHandle {
	return &ListenHandle{events: make(chan speech.RecognitionEvent, 16)}
}

// Events returns the scripted event channel.
func (h *ListenHandle) Events() <-chan speech.RecognitionEvent {
	return h.events
}

// Emit delivers ev to the consumer. Emitting after End is a no-op so scripted
// tests cannot panic on a closed channel.
func (h *ListenHandle) Emit(ev speech.RecognitionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.events <- ev
}

// End closes the event channel. Safe to call multiple times.
func (h *ListenHandle) End() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.events)
}

// Stop records the call, closes the event stream, and returns StopErr.
func (h *ListenHandle) Stop() error {
	h.mu.Lock()
	h.StopCalls++
	err := h.StopErr
	h.mu.Unlock()
	h.End()
	return err
}

// Abort records the call, closes the event stream, and returns AbortErr.
func (h *ListenHandle) Abort() error {
	h.mu.Lock()
	h.AbortCalls++
	err := h.AbortErr
	h.mu.Unlock()
	h.End()
	return err
}

var _ speech.ListenHandle = (*ListenHandle)(nil)

// SpeakCall records a single invocation of Synthesizer.Speak.
type SpeakCall struct {
	// Text is the narration text passed to Speak.
	Text string
	// Voice is the voice profile passed to Speak.
	Voice speech.Voice
}

// Synthesizer is a mock implementation of speech.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned as the error from Speak.
	SpeakErr error

	// SpeakCalls records every call to Speak.
	SpeakCalls []SpeakCall

	// Handles records the handle created for each Speak call, in order.
	Handles []*SpeakHandle
}

// Speak records the call and returns a fresh SpeakHandle, SpeakErr.
func (s *Synthesizer) Speak(_ context.Context, text string, voice speech.Voice) (speech.SpeakHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SpeakCalls = append(s.SpeakCalls, SpeakCall{Text: text, Voice: voice})
	if s.SpeakErr != nil {
		return nil, s.SpeakErr
	}
	h := NewSpeakHandle()
	s.Handles = append(s.Handles, h)
	return h, nil
}

// SpeakCount returns the number of Speak calls so far. Thread-safe.
func (s *Synthesizer) SpeakCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SpeakCalls)
}

// LastHandle returns the handle of the most recent Speak call, or nil.
func (s *Synthesizer) LastHandle() *SpeakHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Handles) == 0 {
		return nil
	}
	return s.Handles[len(s.Handles)-1]
}

var _ speech.Synthesizer = (*Synthesizer)(nil)

// SpeakHandle is a mock implementation of speech.SpeakHandle. Tests drive
// completion with Complete or Fail.
type SpeakHandle struct {
	mu sync.Mutex

	done    chan error
	settled bool

	// CancelCalls is the number of Cancel invocations.
	CancelCalls int
}

// NewSpeakHandle creates an unsettled speak handle.
func NewSpeakHandle() *SpeakHandle {
	return &SpeakHandle{done: make(chan error, 1)}
}

// Done returns the completion channel.
func (h *SpeakHandle) Done() <-chan error {
	return h.done
}

// Complete settles the narration as naturally finished. Later settle calls
// are no-ops.
func (h *SpeakHandle) Complete() {
	h.settle(nil)
}

// Fail settles the narration with err.
func (h *SpeakHandle) Fail(err error) {
	h.settle(err)
}

// Cancel records the call and settles the narration with speech.ErrAborted.
func (h *SpeakHandle) Cancel() {
	h.mu.Lock()
	h.CancelCalls++
	h.mu.Unlock()
	h.settle(&speech.RecognitionError{Code: speech.ErrAborted, Message: "narration cancelled"})
}

func (h *SpeakHandle) settle(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.settled {
		return
	}
	h.settled = true
	h.done <- err
	close(h.done)
}

var _ speech.SpeakHandle = (*SpeakHandle)(nil)

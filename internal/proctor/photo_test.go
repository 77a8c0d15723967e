package proctor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/intervox/intervox/pkg/camera"
	cameramock "github.com/intervox/intervox/pkg/camera/mock"
)

// uploadRecorder is a scriptable Uploader recording every upload.
type uploadRecorder struct {
	mu      sync.Mutex
	uploads [][]byte
	err     error
}

func (u *uploadRecorder) UploadPhoto(_ context.Context, _ string, jpeg []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.uploads = append(u.uploads, jpeg)
	return nil
}

func (u *uploadRecorder) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.uploads)
}

func (u *uploadRecorder) setErr(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.err = err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func validFrame() camera.Frame {
	return camera.Frame{JPEG: []byte("jpeg-bytes"), Width: 640, Height: 480}
}

func newTestLoop(stream *cameramock.Stream, up Uploader, opts ...PhotoOption) *PhotoLoop {
	cam := &cameramock.Camera{Stream: stream}
	opts = append([]PhotoOption{
		WithInitialDelay(10 * time.Millisecond),
		WithCaptureInterval(25 * time.Millisecond),
	}, opts...)
	return NewPhotoLoop(cam, up, "sess-1", opts...)
}

func TestPhotoLoopCapturesAndUploads(t *testing.T) {
	stream := cameramock.NewStream()
	stream.Frame = validFrame()
	stream.SetReady()
	up := &uploadRecorder{}

	loop := newTestLoop(stream, up)
	loop.Start(context.Background())
	t.Cleanup(loop.Stop)

	waitFor(t, "first upload", func() bool { return up.count() >= 1 })
	waitFor(t, "second upload", func() bool { return up.count() >= 2 })

	up.mu.Lock()
	defer up.mu.Unlock()
	if string(up.uploads[0]) != "jpeg-bytes" {
		t.Errorf("uploaded payload = %q", up.uploads[0])
	}
}

func TestPhotoLoopWaitsForStreamReady(t *testing.T) {
	stream := cameramock.NewStream()
	stream.Frame = validFrame()
	up := &uploadRecorder{}

	loop := newTestLoop(stream, up)
	loop.Start(context.Background())
	t.Cleanup(loop.Stop)

	// Not ready: no captures may happen.
	time.Sleep(50 * time.Millisecond)
	if got := up.count(); got != 0 {
		t.Fatalf("%d uploads before the stream was ready, want 0", got)
	}

	stream.SetReady()
	waitFor(t, "upload after ready", func() bool { return up.count() >= 1 })
}

func TestPhotoLoopSkipsInvalidFrames(t *testing.T) {
	stream := cameramock.NewStream()
	// Warm-up frames with zero dimensions, then a real one.
	stream.Frames = []camera.Frame{
		{JPEG: []byte("warmup"), Width: 0, Height: 0},
		{JPEG: nil, Width: 640, Height: 480},
	}
	stream.Frame = validFrame()
	stream.SetReady()
	up := &uploadRecorder{}

	loop := newTestLoop(stream, up)
	loop.Start(context.Background())
	t.Cleanup(loop.Stop)

	waitFor(t, "upload of first valid frame", func() bool { return up.count() >= 1 })
	up.mu.Lock()
	defer up.mu.Unlock()
	if string(up.uploads[0]) != "jpeg-bytes" {
		t.Errorf("first upload = %q, want the valid frame only", up.uploads[0])
	}
}

func TestPhotoLoopSurvivesUploadFailures(t *testing.T) {
	stream := cameramock.NewStream()
	stream.Frame = validFrame()
	stream.SetReady()
	up := &uploadRecorder{}
	up.setErr(errors.New("backend down"))

	loop := newTestLoop(stream, up)
	loop.Start(context.Background())
	t.Cleanup(loop.Stop)

	// Let at least one failed attempt happen, then recover the backend.
	time.Sleep(40 * time.Millisecond)
	up.setErr(nil)

	waitFor(t, "upload after recovery", func() bool { return up.count() >= 1 })
}

func TestPhotoLoopStop(t *testing.T) {
	stream := cameramock.NewStream()
	stream.Frame = validFrame()
	stream.SetReady()
	up := &uploadRecorder{}

	loop := newTestLoop(stream, up)
	loop.Start(context.Background())

	waitFor(t, "first upload", func() bool { return up.count() >= 1 })

	loop.Stop()
	if stream.CloseCalls != 1 {
		t.Errorf("stream Close called %d times, want 1", stream.CloseCalls)
	}

	// Idempotent.
	loop.Stop()
	if stream.CloseCalls != 1 {
		t.Errorf("stream Close called %d times after second Stop, want 1", stream.CloseCalls)
	}

	// No further uploads after Stop.
	n := up.count()
	time.Sleep(60 * time.Millisecond)
	if got := up.count(); got != n {
		t.Errorf("uploads continued after Stop: %d -> %d", n, got)
	}
}

func TestPhotoLoopCameraOpenFailure(t *testing.T) {
	cam := &cameramock.Camera{OpenErr: errors.New("permission denied")}
	up := &uploadRecorder{}

	var fatal error
	fatalCh := make(chan struct{})
	loop := NewPhotoLoop(cam, up, "sess-1",
		WithInitialDelay(5*time.Millisecond),
		WithCameraFatalFunc(func(err error) {
			fatal = err
			close(fatalCh)
		}))

	loop.Start(context.Background())
	t.Cleanup(loop.Stop)

	select {
	case <-fatalCh:
	case <-time.After(2 * time.Second):
		t.Fatal("camera fatal callback never fired")
	}
	if fatal == nil {
		t.Fatal("fatal error should be set")
	}
	if got := up.count(); got != 0 {
		t.Errorf("%d uploads despite camera failure, want 0", got)
	}
}

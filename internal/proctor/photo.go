package proctor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/resilience"
	"github.com/intervox/intervox/pkg/camera"
)

const (
	// DefaultCaptureInterval is the period between proctoring photos.
	DefaultCaptureInterval = 60 * time.Second

	// DefaultInitialDelay is the wait after the camera stream reports valid
	// dimensions before the first capture, letting exposure settle.
	DefaultInitialDelay = 400 * time.Millisecond
)

// Uploader pushes one proctoring frame to the photo store.
type Uploader interface {
	UploadPhoto(ctx context.Context, sessionID string, jpeg []byte) error
}

// PhotoOption is a functional option for configuring the PhotoLoop.
type PhotoOption func(*PhotoLoop)

// WithCaptureInterval overrides the capture period.
func WithCaptureInterval(d time.Duration) PhotoOption {
	return func(p *PhotoLoop) {
		p.interval = d
	}
}

// WithInitialDelay overrides the first-capture delay. Intended for tests.
func WithInitialDelay(d time.Duration) PhotoOption {
	return func(p *PhotoLoop) {
		p.initialDelay = d
	}
}

// WithStreamConfig replaces the camera stream request.
func WithStreamConfig(cfg camera.StreamConfig) PhotoOption {
	return func(p *PhotoLoop) {
		p.streamCfg = cfg
	}
}

// WithPhotoMetrics attaches a metrics sink to the loop.
func WithPhotoMetrics(m *observe.Metrics) PhotoOption {
	return func(p *PhotoLoop) {
		p.metrics = m
	}
}

// WithPhotoLogger replaces the loop's default slog logger.
func WithPhotoLogger(l *slog.Logger) PhotoOption {
	return func(p *PhotoLoop) {
		p.log = l
	}
}

// WithCameraFatalFunc registers a callback invoked once when the camera
// cannot be opened at all.
func WithCameraFatalFunc(fn func(error)) PhotoOption {
	return func(p *PhotoLoop) {
		p.onFatal = fn
	}
}

// PhotoLoop periodically captures a camera frame and uploads it to the photo
// store. Frames with invalid dimensions and failed uploads are skipped; the
// next tick retries naturally. Repeated upload failures trip a circuit
// breaker so a rejecting backend is probed, not hammered.
type PhotoLoop struct {
	cam       camera.Camera
	uploader  Uploader
	sessionID string
	streamCfg camera.StreamConfig

	interval     time.Duration
	initialDelay time.Duration

	breaker *resilience.Breaker
	metrics *observe.Metrics
	log     *slog.Logger
	onFatal func(error)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPhotoLoop creates a loop capturing from cam for sessionID and uploading
// through uploader.
func NewPhotoLoop(cam camera.Camera, uploader Uploader, sessionID string, opts ...PhotoOption) *PhotoLoop {
	p := &PhotoLoop{
		cam:          cam,
		uploader:     uploader,
		sessionID:    sessionID,
		streamCfg:    camera.StreamConfig{Width: 640, Height: 480, FacingUser: true},
		interval:     DefaultCaptureInterval,
		initialDelay: DefaultInitialDelay,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	p.breaker = resilience.NewBreaker(resilience.BreakerConfig{
		Name:   "photo-upload",
		Logger: p.log,
	})
	return p
}

// Start opens the camera and begins the capture loop. Idempotent while
// running.
func (p *PhotoLoop) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.run(ctx)
	}()
}

// Stop tears the loop down and releases the camera. Idempotent; blocks until
// the loop goroutine has exited and the media stream is closed, so callers
// can rely on the camera being off before finalizing the session.
func (p *PhotoLoop) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// run owns the camera stream for the lifetime of the loop.
func (p *PhotoLoop) run(ctx context.Context) {
	stream, err := p.cam.Open(ctx, p.streamCfg)
	if err != nil {
		p.log.Error("camera open failed", "error", err)
		if p.onFatal != nil {
			p.onFatal(err)
		}
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			p.log.Debug("camera close", "error", err)
		}
	}()

	// Wait for the stream to report valid dimensions before the first shot.
	select {
	case <-stream.Ready():
	case <-ctx.Done():
		return
	}

	select {
	case <-time.After(p.initialDelay):
	case <-ctx.Done():
		return
	}

	p.captureOnce(ctx, stream)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.captureOnce(ctx, stream)
		case <-ctx.Done():
			return
		}
	}
}

// captureOnce grabs one frame and uploads it. All failures are non-fatal.
func (p *PhotoLoop) captureOnce(ctx context.Context, stream camera.Stream) {
	frame, err := stream.Capture(ctx)
	if err != nil {
		p.log.Warn("photo capture failed", "error", err)
		p.recordPhoto(ctx, "error")
		return
	}
	if !frame.Valid() {
		// Zero-dimension frames happen while the camera warms up.
		p.log.Debug("skipping invalid frame",
			"width", frame.Width, "height", frame.Height)
		p.recordPhoto(ctx, "skipped")
		return
	}

	err = p.breaker.Do(ctx, func(ctx context.Context) error {
		return p.uploader.UploadPhoto(ctx, p.sessionID, frame.JPEG)
	})
	switch {
	case errors.Is(err, resilience.ErrOpen):
		p.log.Debug("photo upload suppressed, breaker open")
		p.recordPhoto(ctx, "skipped")
	case err != nil:
		p.log.Warn("photo upload failed", "error", err)
		p.recordPhoto(ctx, "error")
	default:
		p.recordPhoto(ctx, "ok")
	}
}

func (p *PhotoLoop) recordPhoto(ctx context.Context, status string) {
	if p.metrics != nil {
		p.metrics.RecordPhotoUpload(ctx, status)
	}
}

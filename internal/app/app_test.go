package app

import (
	"context"
	"testing"
	"time"

	"github.com/intervox/intervox/internal/config"
	cameramock "github.com/intervox/intervox/pkg/camera/mock"
	speechmock "github.com/intervox/intervox/pkg/speech/mock"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Backend.BaseURL = "http://127.0.0.1:1" // never dialled in these tests
	cfg.Interview.SessionID = "sess-app"
	cfg.LocalStore.Path = ":memory:"
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(),
		WithRecognizer(&speechmock.Recognizer{}),
		WithSynthesizer(&speechmock.Synthesizer{}),
		WithCamera(&cameramock.Camera{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNewWiresSubsystems(t *testing.T) {
	a := newTestApp(t)

	if a.controller == nil || a.bridge == nil || a.capture == nil || a.narrator == nil {
		t.Fatal("core subsystems missing after New")
	}
	if a.photos == nil {
		t.Error("photo loop should be enabled by default")
	}
	if a.httpSrv == nil || a.httpSrv.Addr != "127.0.0.1:0" {
		t.Errorf("http server = %+v", a.httpSrv)
	}
}

func TestPhotoLoopDisabled(t *testing.T) {
	cfg := testConfig()
	off := false
	cfg.Proctor.PhotoEnabled = &off

	a, err := New(context.Background(), cfg,
		WithRecognizer(&speechmock.Recognizer{}),
		WithSynthesizer(&speechmock.Synthesizer{}),
		WithCamera(&cameramock.Camera{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.photos != nil {
		t.Error("photo loop should be nil when disabled")
	}
}

func TestNewGeneratesSessionID(t *testing.T) {
	cfg := testConfig()
	cfg.Interview.SessionID = ""

	a, err := New(context.Background(), cfg,
		WithRecognizer(&speechmock.Recognizer{}),
		WithSynthesizer(&speechmock.Synthesizer{}),
		WithCamera(&cameramock.Camera{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.controller == nil {
		t.Fatal("controller missing")
	}
}

func TestNewRequiresBackendURL(t *testing.T) {
	cfg := testConfig()
	cfg.Backend.BaseURL = ""

	_, err := New(context.Background(), cfg,
		WithRecognizer(&speechmock.Recognizer{}),
		WithSynthesizer(&speechmock.Synthesizer{}),
	)
	if err == nil {
		t.Fatal("expected error for missing backend URL")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Let the server bind, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	a := newTestApp(t)

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

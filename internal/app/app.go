// Package app wires the interview engine into a running process.
//
// New connects all subsystems from the configuration: the local mirror store,
// the platform backend client, the browser bridge, the speech and proctoring
// units, the session controller, and the HTTP gateway. Run executes the
// controller loop and the HTTP server; Shutdown tears everything down in
// reverse-init order.
//
// For testing, inject capability doubles via functional options
// (WithRecognizer, WithSynthesizer, WithCamera). When an option is not
// provided, the browser bridge serves the capability.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/intervox/intervox/internal/backend"
	"github.com/intervox/intervox/internal/capture"
	"github.com/intervox/intervox/internal/config"
	"github.com/intervox/intervox/internal/gateway"
	"github.com/intervox/intervox/internal/health"
	"github.com/intervox/intervox/internal/localstore"
	"github.com/intervox/intervox/internal/narrate"
	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/onboard"
	"github.com/intervox/intervox/internal/proctor"
	"github.com/intervox/intervox/internal/session"
	"github.com/intervox/intervox/pkg/camera"
	"github.com/intervox/intervox/pkg/speech"
)

// shutdownGrace bounds the HTTP server drain during shutdown.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	log *slog.Logger

	store      *localstore.Store
	client     *backend.Client
	bridge     *gateway.Bridge
	focus      *proctor.FocusCounter
	capture    *capture.Unit
	narrator   *narrate.Narrator
	photos     *proctor.PhotoLoop
	controller *session.Controller
	httpSrv    *http.Server

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

type options struct {
	recognizer  speech.Recognizer
	synthesizer speech.Synthesizer
	camera      camera.Camera
	metrics     *observe.Metrics
	logger      *slog.Logger
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*options)

// WithRecognizer injects a speech capture capability instead of the bridge.
func WithRecognizer(r speech.Recognizer) Option {
	return func(o *options) { o.recognizer = r }
}

// WithSynthesizer injects a narration capability instead of the bridge.
func WithSynthesizer(s speech.Synthesizer) Option {
	return func(o *options) { o.synthesizer = s }
}

// WithCamera injects a camera capability instead of the bridge.
func WithCamera(c camera.Camera) Option {
	return func(o *options) { o.camera = c }
}

// WithMetrics injects a metrics set instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New wires the engine from cfg. The returned App is ready to Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}

	a := &App{cfg: cfg, log: o.logger}

	sessionID := cfg.Interview.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
		a.log.Info("no session id configured, generated one", "session", sessionID)
	}

	// Local mirror store.
	store, err := localstore.Open(cfg.LocalStore.Path)
	if err != nil {
		return nil, fmt.Errorf("app: open local store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	// Platform backend client.
	client, err := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithMetrics(o.metrics),
		backend.WithLogger(a.log),
	)
	if err != nil {
		return nil, fmt.Errorf("app: backend client: %w", err)
	}
	a.client = client

	// Proctoring signal collectors.
	a.focus = proctor.NewFocusCounter(
		proctor.WithFocusMetrics(o.metrics),
		proctor.WithFocusLogger(a.log),
	)

	// Browser bridge; the default source of all three capabilities.
	a.bridge = gateway.NewBridge(
		gateway.WithBridgeLogger(a.log),
		gateway.WithFocusFunc(func(hidden bool, at time.Time) {
			if hidden {
				a.focus.Record(at)
			}
		}),
	)

	recognizer := o.recognizer
	if recognizer == nil {
		recognizer = a.bridge
	}
	synthesizer := o.synthesizer
	if synthesizer == nil {
		synthesizer = a.bridge
	}
	cam := o.camera
	if cam == nil {
		cam = a.bridge
	}

	// Speech units.
	a.capture = capture.New(recognizer,
		capture.WithListenConfig(speech.ListenConfig{
			Language:       cfg.Speech.Language,
			Continuous:     true,
			InterimResults: true,
		}),
		capture.WithMetrics(o.metrics),
		capture.WithLogger(a.log),
		capture.WithFatalFunc(func(err *speech.RecognitionError) {
			a.log.Error("speech capture lost for the session", "code", err.Code)
		}),
	)

	a.narrator = narrate.New(synthesizer,
		narrate.WithVoice(speech.Voice{Rate: cfg.Speech.Rate, Pitch: 1.0, Volume: 1.0}),
		narrate.WithMetrics(o.metrics),
		narrate.WithLogger(a.log),
		narrate.WithDoneFunc(func(gen int) {
			// Narration completion opens the capture window for the question
			// it narrated.
			a.controller.NarrationFinished(gen)
		}),
	)
	a.narrator.Configure(cfg.Speech.NarrationEnabledOrDefault())

	// Camera loop, unless proctoring photos are disabled.
	if cfg.Proctor.PhotoEnabledOrDefault() {
		a.photos = proctor.NewPhotoLoop(cam, client, sessionID,
			proctor.WithCaptureInterval(cfg.Proctor.PhotoInterval),
			proctor.WithPhotoMetrics(o.metrics),
			proctor.WithPhotoLogger(a.log),
			proctor.WithCameraFatalFunc(func(err error) {
				a.log.Error("proctoring camera unavailable", "error", err)
			}),
		)
	}

	// Onboarding, with the store as the local profile cache.
	registrar := onboard.New(client, store, onboard.WithLogger(a.log))

	sessionCfg := session.Config{
		SessionID:        sessionID,
		TotalQuestions:   cfg.Interview.TotalQuestions,
		DefaultTimeLimit: cfg.Interview.DefaultTimeLimit,
		Backend:          client,
		Capture:          a.capture,
		Narrator:         a.narrator,
		Focus:            a.focus,
		Mirror:           store,
		Metrics:          o.metrics,
		Logger:           a.log,
		OnUpdate: func(s session.Snapshot) {
			a.bridge.PushState(gateway.NewSnapshotView(s))
		},
	}
	if a.photos != nil {
		sessionCfg.Photos = a.photos
	}
	if p, ok := registrar.CachedProfile(ctx); ok {
		sessionCfg.Profile = &p
		a.log.Info("cached profile found, onboarding skipped", "candidate", p.ID)
	}

	controller, err := session.New(sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("app: session controller: %w", err)
	}
	a.controller = controller

	checks := health.New(
		health.Checker{Name: "backend", Check: client.Ping},
		health.Checker{Name: "store", Check: func(ctx context.Context) error {
			_, _, err := store.LoadProfile(ctx)
			return err
		}},
	)

	server, err := gateway.NewServer(gateway.ServerConfig{
		Control:     controller,
		Onboarder:   registrar,
		Focus:       a.focus,
		Bridge:      a.bridge,
		Exporter:    store,
		Health:      checks,
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     o.metrics,
		Logger:      a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: gateway: %w", err)
	}

	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run executes the session controller and the HTTP gateway until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.controller.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		a.log.Info("gateway listening", "addr", a.httpSrv.Addr)
		err := a.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.httpSrv.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown stops the proctoring loops and closes all resources in
// reverse-init order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")

		if a.photos != nil {
			a.photos.Stop()
		}
		a.capture.Stop()
		a.narrator.Cancel()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer failed", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

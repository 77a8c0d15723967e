package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/intervox/intervox/pkg/camera"
	"github.com/intervox/intervox/pkg/speech"
)

// writeTimeout bounds a single outbound bridge message.
const writeTimeout = 5 * time.Second

// ErrNotAttached is returned by capability calls while no browser client is
// connected.
var ErrNotAttached = errors.New("gateway: no browser client attached")

var errNarrationCancelled = errors.New("gateway: narration cancelled")

// Bridge drives the candidate's browser capabilities over one WebSocket
// connection. It implements [speech.Recognizer], [speech.Synthesizer], and
// [camera.Camera]: every capability call becomes an Action sent to the
// browser, and the browser's Events are routed back to the capability session
// that opened them via the envelope ID.
//
// At most one browser client is attached at a time; a second connection is
// rejected so two tabs cannot split one interview.
type Bridge struct {
	log     *slog.Logger
	onFocus func(hidden bool, at time.Time)

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	listens map[string]*listenSession
	speaks  map[string]*speakSession
	cameras map[string]*cameraStream
	opens   map[string]chan error
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithFocusFunc registers the receiver for browser visibility changes.
func WithFocusFunc(fn func(hidden bool, at time.Time)) BridgeOption {
	return func(b *Bridge) { b.onFocus = fn }
}

// WithBridgeLogger replaces the default slog logger.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.log = l }
}

// NewBridge creates a Bridge with no client attached.
func NewBridge(opts ...BridgeOption) *Bridge {
	b := &Bridge{
		log:     slog.Default(),
		listens: make(map[string]*listenSession),
		speaks:  make(map[string]*speakSession),
		cameras: make(map[string]*cameraStream),
		opens:   make(map[string]chan error),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Attach binds conn as the active browser client and reads events until the
// connection or ctx ends. It returns the read error; the caller owns closing
// the connection.
func (b *Bridge) Attach(ctx context.Context, conn *websocket.Conn) error {
	b.mu.Lock()
	if b.conn != nil {
		b.mu.Unlock()
		return errors.New("gateway: a browser client is already attached")
	}
	b.conn = conn
	b.mu.Unlock()

	b.log.Info("browser client attached")
	defer b.detach(conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		b.dispatch(data)
	}
}

// Attached reports whether a browser client is currently connected.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// PushState sends a session snapshot to the browser. Dropped silently when no
// client is attached.
func (b *Bridge) PushState(state any) {
	if err := b.send(Action{Type: ActionSessionState, State: state}); err != nil && !errors.Is(err, ErrNotAttached) {
		b.log.Warn("state push failed", "error", err)
	}
}

// Listen implements [speech.Recognizer] by opening a browser recognition
// session.
func (b *Bridge) Listen(ctx context.Context, cfg speech.ListenConfig) (speech.ListenHandle, error) {
	s := &listenSession{
		id:     uuid.NewString(),
		bridge: b,
		events: make(chan speech.RecognitionEvent, 32),
	}

	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return nil, ErrNotAttached
	}
	b.listens[s.id] = s
	b.mu.Unlock()

	err := b.send(Action{
		Type: ActionListenStart,
		ID:   s.id,
		Listen: &ListenParams{
			Language:        cfg.Language,
			Continuous:      cfg.Continuous,
			InterimResults:  cfg.InterimResults,
			MaxAlternatives: cfg.MaxAlternatives,
		},
	})
	if err != nil {
		b.removeListen(s.id)
		return nil, err
	}
	return s, nil
}

// Speak implements [speech.Synthesizer] by narrating through the browser.
func (b *Bridge) Speak(ctx context.Context, text string, voice speech.Voice) (speech.SpeakHandle, error) {
	s := &speakSession{
		id:     uuid.NewString(),
		bridge: b,
		done:   make(chan error, 1),
	}

	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return nil, ErrNotAttached
	}
	b.speaks[s.id] = s
	b.mu.Unlock()

	err := b.send(Action{
		Type: ActionSpeakStart,
		ID:   s.id,
		Speak: &SpeakParams{
			Text:   text,
			Rate:   voice.Rate,
			Pitch:  voice.Pitch,
			Volume: voice.Volume,
		},
	})
	if err != nil {
		b.removeSpeak(s.id)
		return nil, err
	}
	return s, nil
}

// Open implements [camera.Camera] by starting the browser camera stream. The
// call blocks until the browser acknowledges the open, so permission denial
// surfaces here.
func (b *Bridge) Open(ctx context.Context, cfg camera.StreamConfig) (camera.Stream, error) {
	s := &cameraStream{
		id:     uuid.NewString(),
		bridge: b,
		ready:  make(chan struct{}),
		frames: make(chan camera.Frame, 1),
		closed: make(chan struct{}),
	}
	ack := make(chan error, 1)

	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return nil, ErrNotAttached
	}
	b.cameras[s.id] = s
	b.opens[s.id] = ack
	b.mu.Unlock()

	err := b.send(Action{
		Type: ActionCameraOpen,
		ID:   s.id,
		Camera: &CameraParams{
			Width:      cfg.Width,
			Height:     cfg.Height,
			FacingUser: cfg.FacingUser,
		},
	})
	if err == nil {
		select {
		case err = <-ack:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		b.mu.Lock()
		delete(b.opens, s.id)
		delete(b.cameras, s.id)
		b.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// send marshals and writes one action. coder/websocket allows a single
// concurrent writer, hence the write mutex.
func (b *Bridge) send(a Action) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotAttached
	}

	data, err := json.Marshal(a)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, data)
}

// dispatch routes one inbound browser event to its capability session.
func (b *Bridge) dispatch(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		b.log.Warn("malformed bridge event", "error", err)
		return
	}

	switch ev.Type {
	case EventListenResult:
		if ev.Result == nil {
			return
		}
		b.deliverListen(ev.ID, speech.RecognitionEvent{
			Kind: speech.EventResult,
			Result: speech.Result{
				Text:       ev.Result.Text,
				IsFinal:    ev.Result.IsFinal,
				Confidence: ev.Result.Confidence,
			},
		})
	case EventListenEnd:
		b.deliverListen(ev.ID, speech.RecognitionEvent{Kind: speech.EventEnd})
		if s := b.takeListen(ev.ID); s != nil {
			s.close()
		}
	case EventListenError:
		if ev.Error == nil {
			return
		}
		b.deliverListen(ev.ID, speech.RecognitionEvent{
			Kind: speech.EventError,
			Err:  ev.Error.recognitionError(),
		})
	case EventSpeakDone:
		if s := b.takeSpeak(ev.ID); s != nil {
			s.finish(nil)
		}
	case EventSpeakError:
		if s := b.takeSpeak(ev.ID); s != nil {
			msg := "synthesis failed"
			if ev.Error != nil && ev.Error.Message != "" {
				msg = ev.Error.Message
			}
			s.finish(errors.New("gateway: " + msg))
		}
	case EventCameraOpened:
		b.mu.Lock()
		ack := b.opens[ev.ID]
		delete(b.opens, ev.ID)
		b.mu.Unlock()
		if ack == nil {
			return
		}
		if ev.Error != nil {
			ack <- errors.New("gateway: camera open: " + ev.Error.Code)
		} else {
			ack <- nil
		}
	case EventCameraReady:
		if s := b.camera(ev.ID); s != nil {
			s.markReady()
		}
	case EventCameraFrame:
		if s := b.camera(ev.ID); s != nil && ev.Frame != nil {
			s.deliver(camera.Frame{
				JPEG:   ev.Frame.JPEG,
				Width:  ev.Frame.Width,
				Height: ev.Frame.Height,
			})
		}
	case EventFocusChange:
		if b.onFocus != nil && ev.Focus != nil {
			b.onFocus(ev.Focus.Hidden, time.UnixMilli(ev.Focus.At))
		}
	default:
		b.log.Warn("unknown bridge event", "type", string(ev.Type))
	}
}

// detach drops the connection and fails every open capability session so
// their owners observe the disconnect instead of blocking.
func (b *Bridge) detach(conn *websocket.Conn) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	listens := b.listens
	speaks := b.speaks
	cameras := b.cameras
	opens := b.opens
	b.listens = make(map[string]*listenSession)
	b.speaks = make(map[string]*speakSession)
	b.cameras = make(map[string]*cameraStream)
	b.opens = make(map[string]chan error)
	b.mu.Unlock()

	for _, s := range listens {
		s.push(speech.RecognitionEvent{
			Kind: speech.EventError,
			Err:  &speech.RecognitionError{Code: speech.ErrNetwork, Message: "browser disconnected"},
		})
		s.push(speech.RecognitionEvent{Kind: speech.EventEnd})
		s.close()
	}
	for _, s := range speaks {
		s.finish(errors.New("gateway: browser disconnected"))
	}
	for _, s := range cameras {
		s.markClosed()
	}
	for _, ack := range opens {
		ack <- errors.New("gateway: browser disconnected")
	}

	b.log.Info("browser client detached")
}

func (b *Bridge) deliverListen(id string, ev speech.RecognitionEvent) {
	b.mu.Lock()
	s := b.listens[id]
	b.mu.Unlock()
	if s == nil {
		return
	}
	s.push(ev)
}

func (b *Bridge) takeListen(id string) *listenSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.listens[id]
	delete(b.listens, id)
	return s
}

func (b *Bridge) removeListen(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listens, id)
}

func (b *Bridge) takeSpeak(id string) *speakSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.speaks[id]
	delete(b.speaks, id)
	return s
}

func (b *Bridge) removeSpeak(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.speaks, id)
}

func (b *Bridge) camera(id string) *cameraStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cameras[id]
}

func (b *Bridge) removeCamera(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cameras, id)
}

// listenSession is one browser recognition session; implements
// [speech.ListenHandle].
type listenSession struct {
	id     string
	bridge *Bridge

	mu     sync.Mutex
	events chan speech.RecognitionEvent
	done   bool
}

func (s *listenSession) Events() <-chan speech.RecognitionEvent { return s.events }

// Stop requests a graceful stop; the browser flushes pending audio and
// answers with a final result and listen.end, which closes the channel.
func (s *listenSession) Stop() error {
	err := s.bridge.send(Action{Type: ActionListenStop, ID: s.id})
	if errors.Is(err, ErrNotAttached) {
		return nil
	}
	return err
}

// Abort terminates immediately: the session is dropped locally and the
// browser told to discard pending audio.
func (s *listenSession) Abort() error {
	s.bridge.removeListen(s.id)
	s.close()
	err := s.bridge.send(Action{Type: ActionListenAbort, ID: s.id})
	if errors.Is(err, ErrNotAttached) {
		return nil
	}
	return err
}

// push delivers an event without ever blocking the bridge read loop; a
// consumer that stopped draining loses events rather than wedging the
// connection.
func (s *listenSession) push(ev speech.RecognitionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.bridge.log.Warn("recognition event dropped", "session", s.id)
	}
}

func (s *listenSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	close(s.events)
}

// speakSession is one in-flight narration; implements [speech.SpeakHandle].
type speakSession struct {
	id     string
	bridge *Bridge
	done   chan error
	once   sync.Once
}

func (s *speakSession) Done() <-chan error { return s.done }

// Cancel stops playback in the browser and resolves the handle.
func (s *speakSession) Cancel() {
	_ = s.bridge.send(Action{Type: ActionSpeakCancel, ID: s.id})
	s.bridge.removeSpeak(s.id)
	s.finish(errNarrationCancelled)
}

func (s *speakSession) finish(err error) {
	s.once.Do(func() {
		s.done <- err
		close(s.done)
	})
}

// cameraStream is the browser camera stream; implements [camera.Stream].
type cameraStream struct {
	id     string
	bridge *Bridge

	ready     chan struct{}
	readyOnce sync.Once

	frames chan camera.Frame

	closed    chan struct{}
	closeOnce sync.Once
}

func (s *cameraStream) Ready() <-chan struct{} { return s.ready }

// Capture requests one frame from the browser and waits for it.
func (s *cameraStream) Capture(ctx context.Context) (camera.Frame, error) {
	select {
	case <-s.closed:
		return camera.Frame{}, errors.New("gateway: camera stream closed")
	default:
	}

	// Drop a stale frame from an abandoned capture.
	select {
	case <-s.frames:
	default:
	}

	if err := s.bridge.send(Action{Type: ActionCameraGrab, ID: s.id}); err != nil {
		return camera.Frame{}, err
	}

	select {
	case f := <-s.frames:
		return f, nil
	case <-s.closed:
		return camera.Frame{}, errors.New("gateway: camera stream closed")
	case <-ctx.Done():
		return camera.Frame{}, ctx.Err()
	}
}

// Close releases the browser camera. Idempotent.
func (s *cameraStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.bridge.removeCamera(s.id)
		err = s.bridge.send(Action{Type: ActionCameraClose, ID: s.id})
		if errors.Is(err, ErrNotAttached) {
			err = nil
		}
	})
	return err
}

func (s *cameraStream) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *cameraStream) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *cameraStream) deliver(f camera.Frame) {
	select {
	case s.frames <- f:
	default:
	}
}

var (
	_ speech.Recognizer  = (*Bridge)(nil)
	_ speech.Synthesizer = (*Bridge)(nil)
	_ camera.Camera      = (*Bridge)(nil)
)

// Package gateway is the HTTP/WebSocket surface of the interview engine: a
// gin control plane for onboarding and session control, and the browser
// bridge that turns the candidate's microphone, speaker, and camera into the
// engine's capability ports.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intervox/intervox/internal/health"
	"github.com/intervox/intervox/internal/localstore"
	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/internal/onboard"
	"github.com/intervox/intervox/internal/session"
	"github.com/intervox/intervox/pkg/types"
)

// maxPhotoBytes bounds the onboarding photo upload.
const maxPhotoBytes = 8 << 20

// SessionControl is the subset of the session controller the control plane
// drives.
type SessionControl interface {
	CompleteOnboarding(p types.CandidateProfile)
	Start()
	Next()
	Reset()
	ResetToOnboarding()
	Snapshot() session.Snapshot
}

// Onboarder accepts candidate registrations.
type Onboarder interface {
	Submit(ctx context.Context, f onboard.Form, photoJPEG []byte) (types.CandidateProfile, error)
}

// FocusRecorder receives visibility-loss signals and exposes the running
// count.
type FocusRecorder interface {
	Record(at time.Time) bool
	Count() int
}

// Exporter produces the local session export.
type Exporter interface {
	Export(ctx context.Context, sessionID string) (localstore.SessionExport, error)
}

// ServerConfig assembles a Server.
type ServerConfig struct {
	// Control is required.
	Control SessionControl

	// Onboarder is required.
	Onboarder Onboarder

	// Focus is required.
	Focus FocusRecorder

	// Bridge is required; /ws attaches browser clients to it.
	Bridge *Bridge

	// Exporter is optional; nil disables /api/session/export.
	Exporter Exporter

	// Health is optional; nil serves a liveness-only handler.
	Health *health.Handler

	// CORSOrigins restricts browser origins. Empty allows all.
	CORSOrigins []string

	// Metrics is optional.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the gateway HTTP server.
type Server struct {
	cfg    ServerConfig
	log    *slog.Logger
	engine *gin.Engine
}

// NewServer builds the gin engine and routes.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Control == nil {
		return nil, errors.New("gateway: Control is required")
	}
	if cfg.Onboarder == nil {
		return nil, errors.New("gateway: Onboarder is required")
	}
	if cfg.Focus == nil {
		return nil, errors.New("gateway: Focus is required")
	}
	if cfg.Bridge == nil {
		return nil, errors.New("gateway: Bridge is required")
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg, log: cfg.Logger}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type"}
	corsCfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", gin.WrapF(cfg.Health.Healthz))
	r.GET("/readyz", gin.WrapF(cfg.Health.Readyz))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.handleWS)

	api := r.Group("/api")
	{
		api.POST("/onboarding", s.handleOnboarding)
		api.GET("/session", s.handleSnapshot)
		api.POST("/session/start", s.handleStart)
		api.POST("/session/next", s.handleNext)
		api.POST("/session/restart", s.handleRestart)
		api.POST("/session/reset", s.handleReset)
		api.POST("/session/focus", s.handleFocus)
		api.GET("/session/export", s.handleExport)
	}

	s.engine = r
	return s, nil
}

// Handler returns the server's root handler. When metrics are configured the
// engine is wrapped in the tracing/metrics middleware.
func (s *Server) Handler() http.Handler {
	if s.cfg.Metrics != nil {
		return observe.Middleware(s.cfg.Metrics)(s.engine)
	}
	return s.engine
}

// handleWS upgrades to WebSocket and attaches the browser client to the
// bridge for the lifetime of the connection.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}

	err = s.cfg.Bridge.Attach(c.Request.Context(), conn)
	if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
		s.log.Warn("bridge connection ended", "error", err)
	}
	conn.Close(websocket.StatusNormalClosure, "session over")
}

func (s *Server) originPatterns() []string {
	if len(s.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}

// handleOnboarding accepts the multipart registration form: name, technology,
// experience, and a photo file.
func (s *Server) handleOnboarding(c *gin.Context) {
	form := onboard.Form{
		Name:       c.PostForm("name"),
		Technology: c.PostForm("technology"),
		Experience: c.PostForm("experience"),
	}

	fh, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo is required"})
		return
	}
	if fh.Size > maxPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable photo"})
		return
	}
	defer f.Close()
	photo, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable photo"})
		return
	}

	profile, err := s.cfg.Onboarder.Submit(c.Request.Context(), form, photo)
	switch {
	case errors.Is(err, onboard.ErrNoFace):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face detected in photo"})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.cfg.Control.CompleteOnboarding(profile)
	c.JSON(http.StatusCreated, profile)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, snapshotView(s.cfg.Control.Snapshot()))
}

func (s *Server) handleStart(c *gin.Context) {
	s.cfg.Control.Start()
	c.JSON(http.StatusAccepted, snapshotView(s.cfg.Control.Snapshot()))
}

func (s *Server) handleNext(c *gin.Context) {
	s.cfg.Control.Next()
	c.JSON(http.StatusAccepted, snapshotView(s.cfg.Control.Snapshot()))
}

// handleRestart abandons the current attempt but keeps the registered
// candidate; the session returns to awaiting-start ready to run again.
func (s *Server) handleRestart(c *gin.Context) {
	s.cfg.Control.Reset()
	c.JSON(http.StatusAccepted, snapshotView(s.cfg.Control.Snapshot()))
}

// handleReset is the full reset: attempt and registration are both
// discarded, the local store is wiped, and the session returns to
// onboarding.
func (s *Server) handleReset(c *gin.Context) {
	s.cfg.Control.ResetToOnboarding()
	c.JSON(http.StatusAccepted, snapshotView(s.cfg.Control.Snapshot()))
}

// handleFocus records a visibility change reported over HTTP. The browser
// normally reports through the bridge; this endpoint covers clients whose
// socket dropped mid-switch.
func (s *Server) handleFocus(c *gin.Context) {
	var report FocusReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid focus report"})
		return
	}

	counted := false
	if report.Hidden {
		at := time.UnixMilli(report.At)
		if report.At == 0 {
			at = time.Now()
		}
		counted = s.cfg.Focus.Record(at)
	}
	c.JSON(http.StatusOK, gin.H{"counted": counted, "tab_count": s.cfg.Focus.Count()})
}

func (s *Server) handleExport(c *gin.Context) {
	if s.cfg.Exporter == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "export not configured"})
		return
	}
	snap := s.cfg.Control.Snapshot()
	export, err := s.cfg.Exporter.Export(c.Request.Context(), snap.SessionID)
	if err != nil {
		s.log.Error("session export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.JSON(http.StatusOK, export)
}

// SnapshotView is the JSON shape of a session snapshot.
type SnapshotView struct {
	Phase          string          `json:"phase"`
	SessionID      string          `json:"session_id"`
	QuestionIndex  int             `json:"question_index"`
	TotalQuestions int             `json:"total_questions"`
	Question       *types.Question `json:"question,omitempty"`
	TimeLeftSec    int             `json:"time_left_sec"`
	Clock          string          `json:"clock"`
	AnswerCount    int             `json:"answer_count"`
	TabCount       int             `json:"tab_count"`
	Error          string          `json:"error,omitempty"`
}

// NewSnapshotView converts a controller snapshot to its wire shape. Also used
// for the session.state pushes on the bridge.
func NewSnapshotView(s session.Snapshot) SnapshotView {
	return snapshotView(s)
}

func snapshotView(s session.Snapshot) SnapshotView {
	return SnapshotView{
		Phase:          s.Phase.String(),
		SessionID:      s.SessionID,
		QuestionIndex:  s.QuestionIndex,
		TotalQuestions: s.TotalQuestions,
		Question:       s.Question,
		TimeLeftSec:    int(s.TimeLeft / time.Second),
		Clock:          s.Clock,
		AnswerCount:    s.AnswerCount,
		TabCount:       s.TabCount,
		Error:          s.LastError,
	}
}

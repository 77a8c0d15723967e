// Package session implements the interview session state machine: it owns
// the ordered question list, the per-question countdown, the accumulated
// answer list, and the transitions between onboarding, awaiting-start, the
// question loop, and completion.
//
// The controller runs as a single goroutine consuming one inbound command
// queue. Every external stimulus — the candidate's start/next actions,
// narration completion, timer ticks — flows through that queue, so no two
// transitions ever interleave and the answer-per-question invariant cannot
// be violated by racing events.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/intervox/intervox/internal/observe"
	"github.com/intervox/intervox/pkg/types"
)

// DefaultTickInterval is the countdown resolution.
const DefaultTickInterval = time.Second

// Backend is the subset of the platform client the controller drives.
type Backend interface {
	FetchQuestions(ctx context.Context, sessionID string) ([]types.Question, error)
	SaveAnswer(ctx context.Context, a types.Answer) error
	Finalize(ctx context.Context, sessionID string, summary types.SessionSummary) error
}

// CaptureUnit is the speech capture surface the controller drives.
type CaptureUnit interface {
	Start(ctx context.Context) error
	Stop()
	ResetTranscript()
	CurrentAnswer() string
}

// NarrationUnit is the speech playback surface the controller drives. Speak
// returns a generation token identifying that narration; the narrator's done
// callback reports the same token so a signal from a superseded narration can
// be told apart from the live one.
type NarrationUnit interface {
	Speak(ctx context.Context, text string) int
	Cancel()
}

// CameraLoop is the proctoring photo loop surface the controller drives.
type CameraLoop interface {
	Start(ctx context.Context)
	Stop()
}

// TabCounter exposes the accumulated focus-loss total.
type TabCounter interface {
	Count() int
}

// Mirror is the optional local answer mirror.
type Mirror interface {
	MirrorAnswer(ctx context.Context, a types.Answer) error
	ClearSession(ctx context.Context, sessionID string) error
	ClearAll(ctx context.Context) error
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	Phase          types.Phase
	SessionID      string
	QuestionIndex  int
	TotalQuestions int
	Question       *types.Question
	TimeLeft       time.Duration
	Clock          string
	AnswerCount    int
	TabCount       int
	LastError      string
}

// Config assembles a Controller.
type Config struct {
	// SessionID is the HR document id identifying this interview attempt.
	SessionID string

	// TotalQuestions is the fixed question quota. Defaults to 10.
	TotalQuestions int

	// DefaultTimeLimit applies to questions without their own limit.
	// Defaults to 120s.
	DefaultTimeLimit time.Duration

	// TickInterval is the countdown resolution. Defaults to 1s; tests shrink
	// it.
	TickInterval time.Duration

	// Backend is required.
	Backend Backend

	// Capture is required.
	Capture CaptureUnit

	// Narrator is required.
	Narrator NarrationUnit

	// Focus is required.
	Focus TabCounter

	// Photos is optional; nil disables the camera loop.
	Photos CameraLoop

	// Mirror is optional; nil disables the local answer mirror.
	Mirror Mirror

	// Profile, when already registered (cached from a previous visit), skips
	// the onboarding phase.
	Profile *types.CandidateProfile

	// OnUpdate, when set, receives a snapshot after every state change.
	OnUpdate func(Snapshot)

	// Metrics is optional.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type cmdKind int

const (
	cmdProfile cmdKind = iota
	cmdStart
	cmdQuestions
	cmdNext
	cmdCaptureReady
	cmdReset
	cmdResetAll
)

type command struct {
	kind    cmdKind
	profile types.CandidateProfile

	// questions and err carry a fetch result (cmdQuestions).
	questions []types.Question
	err       error

	// gen pairs the command with the fetch or narration that produced it.
	gen int
}

// Controller is the session state machine. Construct with New, then run the
// command loop with Run. All exported methods are safe for concurrent use.
type Controller struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	events chan command

	// State below is written only by the Run goroutine and read through
	// Snapshot; the loop takes no locks of its own.
	phase        types.Phase
	profile      types.CandidateProfile
	questions    []types.Question
	idx          int
	answers      []types.Answer
	timeLeft     time.Duration
	currentLimit time.Duration
	lastErr      string

	// narGen is the token of the narration armed for the active question;
	// capture-ready signals carrying any other token are stale and dropped.
	narGen int

	// fetching marks a question fetch in flight; fetchGen invalidates its
	// result when a reset lands first.
	fetching bool
	fetchGen int

	snapReq chan chan Snapshot

	runCtx context.Context
	ticker *time.Ticker
}

// New creates a Controller. Returns an error when a required collaborator is
// missing.
func New(cfg Config) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, errors.New("session: Backend is required")
	}
	if cfg.Capture == nil {
		return nil, errors.New("session: Capture is required")
	}
	if cfg.Narrator == nil {
		return nil, errors.New("session: Narrator is required")
	}
	if cfg.Focus == nil {
		return nil, errors.New("session: Focus is required")
	}
	if cfg.SessionID == "" {
		return nil, errors.New("session: SessionID is required")
	}
	if cfg.TotalQuestions <= 0 {
		cfg.TotalQuestions = 10
	}
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = 120 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Controller{
		cfg:     cfg,
		log:     cfg.Logger.With("session", cfg.SessionID),
		metrics: cfg.Metrics,
		events:  make(chan command, 32),
		snapReq: make(chan chan Snapshot),
		phase:   types.PhaseOnboarding,
	}
	if cfg.Profile != nil {
		c.profile = *cfg.Profile
		c.phase = types.PhaseAwaitingStart
	}
	return c, nil
}

// Run processes the command queue until ctx is cancelled. It must be running
// before any other method is called.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	c.ticker = time.NewTicker(c.cfg.TickInterval)
	defer c.ticker.Stop()

	c.emit()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case cmd := <-c.events:
			c.handle(cmd)
		case reply := <-c.snapReq:
			reply <- c.buildSnapshot()
		case <-c.ticker.C:
			c.tick()
		}
	}
}

// CompleteOnboarding records the registered profile and moves the session to
// the awaiting-start phase.
func (c *Controller) CompleteOnboarding(p types.CandidateProfile) {
	c.events <- command{kind: cmdProfile, profile: p}
}

// Start begins the question loop: fetches the question list, arms the
// proctoring camera, and narrates the first question.
func (c *Controller) Start() {
	c.events <- command{kind: cmdStart}
}

// Next advances past the current question on the candidate's explicit
// action.
func (c *Controller) Next() {
	c.events <- command{kind: cmdNext}
}

// NarrationFinished signals that the narration identified by gen completed
// and the capture window may open. Wire it as the narrator's done callback;
// gen is the token the matching Speak returned. A signal from a narration
// the session has already advanced past is dropped.
func (c *Controller) NarrationFinished(gen int) {
	c.events <- command{kind: cmdCaptureReady, gen: gen}
}

// Reset abandons the current attempt and returns the registered candidate to
// awaiting-start with a clean slate. Also used to restart after completion.
func (c *Controller) Reset() {
	c.events <- command{kind: cmdReset}
}

// ResetToOnboarding abandons the attempt and the registration both: the
// collaborators stop, the local store is wiped, and the session returns to
// the onboarding phase for a fresh candidate.
func (c *Controller) ResetToOnboarding() {
	c.events <- command{kind: cmdResetAll}
}

// Snapshot returns the current session state. Safe to call from any
// goroutine; the value is assembled by the Run loop, so Run must be active.
func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	c.snapReq <- reply
	return <-reply
}

func (c *Controller) handle(cmd command) {
	switch cmd.kind {
	case cmdProfile:
		c.handleProfile(cmd.profile)
	case cmdStart:
		c.handleStart()
	case cmdQuestions:
		c.handleQuestions(cmd)
	case cmdNext:
		c.advance("manual")
	case cmdCaptureReady:
		c.handleCaptureReady(cmd.gen)
	case cmdReset:
		c.handleReset()
	case cmdResetAll:
		c.handleResetToOnboarding()
	}
}

func (c *Controller) handleProfile(p types.CandidateProfile) {
	if c.phase != types.PhaseOnboarding {
		c.log.Warn("profile submitted outside onboarding", "phase", c.phase)
		return
	}
	c.profile = p
	c.phase = types.PhaseAwaitingStart
	c.log.Info("onboarding complete", "candidate", p.ID)
	c.emit()
}

// handleStart kicks off the question fetch. The fetch runs off the loop
// goroutine so snapshots and commands stay responsive while the provider is
// slow; the result arrives back as a cmdQuestions event.
func (c *Controller) handleStart() {
	if c.phase != types.PhaseAwaitingStart {
		c.log.Warn("start ignored", "phase", c.phase)
		return
	}
	if c.fetching {
		return
	}
	c.fetching = true
	c.fetchGen++
	gen := c.fetchGen

	ctx := c.runCtx
	go func() {
		questions, err := c.cfg.Backend.FetchQuestions(ctx, c.cfg.SessionID)
		select {
		case c.events <- command{kind: cmdQuestions, questions: questions, err: err, gen: gen}:
		case <-ctx.Done():
		}
	}()
}

// handleQuestions finishes a start with the fetched list. A reset issued
// while the fetch was in flight invalidates the result.
func (c *Controller) handleQuestions(cmd command) {
	if !c.fetching || cmd.gen != c.fetchGen {
		return
	}
	c.fetching = false
	if c.phase != types.PhaseAwaitingStart {
		return
	}

	questions, err := cmd.questions, cmd.err
	if err != nil {
		c.lastErr = "could not fetch questions"
		c.log.Error("question fetch failed", "error", err)
		c.emit()
		return
	}
	if len(questions) == 0 {
		c.lastErr = "no questions available"
		c.log.Error("question provider returned an empty list")
		c.emit()
		return
	}

	c.questions = questions
	c.idx = 0
	c.answers = nil
	c.lastErr = ""
	c.phase = types.PhaseInProgress

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(c.runCtx, 1)
	}
	if c.cfg.Photos != nil {
		c.cfg.Photos.Start(c.runCtx)
	}

	c.log.Info("session started", "questions", len(c.questions), "quota", c.cfg.TotalQuestions)
	c.startQuestion()
}

// startQuestion arms the timer and narration for the question at the current
// index. The index is clamped so a shorter pre-fetched list cannot crash the
// session.
func (c *Controller) startQuestion() {
	q := c.activeQuestion()
	c.currentLimit = c.effectiveLimit(q)
	c.timeLeft = c.currentLimit

	c.cfg.Capture.Stop()
	c.cfg.Capture.ResetTranscript()
	c.resetTicker()

	c.log.Info("question armed", "index", c.idx, "question", q.ID, "limit", c.currentLimit)
	c.emit()

	// Narration completion (or its absence) arms capture via
	// NarrationFinished, carrying this narration's token back.
	c.narGen = c.cfg.Narrator.Speak(c.runCtx, q.Text)
}

func (c *Controller) handleCaptureReady(gen int) {
	if c.phase != types.PhaseInProgress || gen != c.narGen {
		return
	}
	if err := c.cfg.Capture.Start(c.runCtx); err != nil {
		c.lastErr = "microphone unavailable"
		c.log.Error("capture start failed", "error", err)
		c.emit()
	}
}

// tick advances the countdown; reaching zero auto-advances exactly like the
// candidate pressing next.
func (c *Controller) tick() {
	if c.phase != types.PhaseInProgress {
		return
	}
	c.timeLeft -= c.cfg.TickInterval
	if c.timeLeft <= 0 {
		c.timeLeft = 0
		c.emit()
		c.advance("timeout")
		return
	}
	c.emit()
}

// advance seals the current question's answer and moves on: to the next
// question, or to completion when the quota is exhausted.
func (c *Controller) advance(trigger string) {
	if c.phase != types.PhaseInProgress {
		return
	}

	c.cfg.Narrator.Cancel()

	answer := types.Answer{
		SessionID:   c.cfg.SessionID,
		QuestionID:  c.activeQuestion().ID,
		CandidateID: c.profile.ID,
		Text:        strings.TrimSpace(c.cfg.Capture.CurrentAnswer()),
		SubmittedAt: time.Now().UTC(),
		TimeSpent:   c.currentLimit - c.timeLeft,
	}
	c.cfg.Capture.Stop()

	c.answers = append(c.answers, answer)
	c.idx++
	c.persistAnswer(answer)

	c.log.Info("question advanced",
		"trigger", trigger,
		"answered", len(c.answers),
		"time_spent", answer.TimeSpent)

	if c.metrics != nil {
		c.metrics.AnswerDuration.Record(c.runCtx, answer.TimeSpent.Seconds())
	}

	if c.idx >= c.cfg.TotalQuestions {
		c.complete()
		return
	}
	if c.idx >= len(c.questions) {
		c.fetchMore()
	}
	if c.idx >= len(c.questions) {
		// The provider has nothing further; completion takes precedence over
		// an empty question.
		c.log.Warn("question list exhausted before quota", "answered", len(c.answers))
		c.complete()
		return
	}
	c.startQuestion()
}

// fetchMore asks the provider for additional questions, appending only ones
// not already in the list.
func (c *Controller) fetchMore() {
	questions, err := c.cfg.Backend.FetchQuestions(c.runCtx, c.cfg.SessionID)
	if err != nil {
		c.log.Error("follow-up question fetch failed", "error", err)
		return
	}
	seen := make(map[int64]bool, len(c.questions))
	for _, q := range c.questions {
		seen[q.ID] = true
	}
	for _, q := range questions {
		if !seen[q.ID] {
			c.questions = append(c.questions, q)
		}
	}
}

// persistAnswer submits the answer to the answer store and the local mirror
// off the loop goroutine. Failures are logged for HR-side reconciliation and
// never surface to the candidate.
func (c *Controller) persistAnswer(a types.Answer) {
	ctx := c.runCtx
	go func() {
		if err := c.cfg.Backend.SaveAnswer(ctx, a); err != nil {
			c.log.Error("answer submission failed",
				"question", a.QuestionID, "error", err)
		}
		if c.cfg.Mirror != nil {
			if err := c.cfg.Mirror.MirrorAnswer(ctx, a); err != nil {
				c.log.Warn("answer mirror failed", "error", err)
			}
		}
	}()
}

// complete finalizes the session: proctoring stops before the finalizer call
// so the camera is provably off, then the terminal state is submitted.
func (c *Controller) complete() {
	c.cfg.Narrator.Cancel()
	c.cfg.Capture.Stop()
	if c.cfg.Photos != nil {
		c.cfg.Photos.Stop()
	}

	summary := types.SessionSummary{
		Status:   "Completed",
		Closed:   true,
		TabCount: c.cfg.Focus.Count(),
	}
	if err := c.cfg.Backend.Finalize(c.runCtx, c.cfg.SessionID, summary); err != nil {
		c.log.Error("session finalize failed", "error", err)
	}

	c.phase = types.PhaseComplete
	c.timeLeft = 0

	if c.metrics != nil {
		c.metrics.SessionsCompleted.Add(c.runCtx, 1)
		c.metrics.ActiveSessions.Add(c.runCtx, -1)
	}

	c.log.Info("session complete",
		"answers", len(c.answers), "tab_count", summary.TabCount)
	c.emit()
}

// stopAttempt halts every per-attempt collaborator and wipes the question
// state shared by both reset edges. Must run before the phase changes.
func (c *Controller) stopAttempt() {
	if c.phase == types.PhaseInProgress && c.metrics != nil {
		c.metrics.ActiveSessions.Add(c.runCtx, -1)
	}

	c.cfg.Narrator.Cancel()
	c.cfg.Capture.Stop()
	c.cfg.Capture.ResetTranscript()
	if c.cfg.Photos != nil {
		c.cfg.Photos.Stop()
	}

	c.questions = nil
	c.answers = nil
	c.idx = 0
	c.timeLeft = 0
	c.currentLimit = 0
	c.lastErr = ""
	c.fetching = false
}

// handleReset abandons the attempt: everything stops, per-attempt state is
// wiped, and the registered candidate lands back on awaiting-start ready to
// try again. This is also the restart edge after completion.
func (c *Controller) handleReset() {
	if c.phase == types.PhaseOnboarding {
		return
	}
	c.stopAttempt()
	c.phase = types.PhaseAwaitingStart

	if c.cfg.Mirror != nil {
		if err := c.cfg.Mirror.ClearSession(c.runCtx, c.cfg.SessionID); err != nil {
			c.log.Warn("mirror clear failed", "error", err)
		}
	}

	c.log.Info("session reset")
	c.emit()
}

// handleResetToOnboarding is the full reset: beyond handleReset it also
// discards the registered profile and wipes the local store, so the next
// visit starts from a blank onboarding form.
func (c *Controller) handleResetToOnboarding() {
	c.stopAttempt()
	c.profile = types.CandidateProfile{}
	c.phase = types.PhaseOnboarding

	if c.cfg.Mirror != nil {
		if err := c.cfg.Mirror.ClearAll(c.runCtx); err != nil {
			c.log.Warn("local store clear failed", "error", err)
		}
	}

	c.log.Info("session reset to onboarding")
	c.emit()
}

// shutdown stops the collaborators when the run context ends.
func (c *Controller) shutdown() {
	c.cfg.Narrator.Cancel()
	c.cfg.Capture.Stop()
	if c.cfg.Photos != nil {
		c.cfg.Photos.Stop()
	}
}

// activeQuestion returns the question at the current index, clamped to the
// fetched list.
func (c *Controller) activeQuestion() types.Question {
	i := c.idx
	if i >= len(c.questions) {
		i = len(c.questions) - 1
	}
	if i < 0 {
		return types.Question{}
	}
	return c.questions[i]
}

// effectiveLimit applies the configured default to questions without their
// own time limit.
func (c *Controller) effectiveLimit(q types.Question) time.Duration {
	if q.TimeLimitSec > 0 {
		return time.Duration(q.TimeLimitSec) * time.Second
	}
	return c.cfg.DefaultTimeLimit
}

// resetTicker restarts the countdown period and discards any tick queued for
// the previous question.
func (c *Controller) resetTicker() {
	c.ticker.Reset(c.cfg.TickInterval)
	select {
	case <-c.ticker.C:
	default:
	}
}

// emit pushes the current snapshot to the update callback.
func (c *Controller) emit() {
	if c.cfg.OnUpdate == nil {
		return
	}
	c.cfg.OnUpdate(c.buildSnapshot())
}

func (c *Controller) buildSnapshot() Snapshot {
	s := Snapshot{
		Phase:          c.phase,
		SessionID:      c.cfg.SessionID,
		QuestionIndex:  c.idx,
		TotalQuestions: c.cfg.TotalQuestions,
		TimeLeft:       c.timeLeft,
		Clock:          types.FormatClock(c.timeLeft),
		AnswerCount:    len(c.answers),
		TabCount:       c.cfg.Focus.Count(),
		LastError:      c.lastErr,
	}
	if c.phase == types.PhaseInProgress && len(c.questions) > 0 {
		q := c.activeQuestion()
		s.Question = &q
	}
	return s
}

// Package types defines the shared types used across all Intervox packages.
//
// These types form the lingua franca between the capture, narration, and
// proctoring units, the session controller, and the backend client. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import (
	"fmt"
	"time"
)

// DefaultTimeLimit applies to questions whose provider record omits a
// per-question time limit.
const DefaultTimeLimit = 120 * time.Second

// Question is a single interview question fetched from the question provider.
// Immutable once fetched.
type Question struct {
	// ID is the provider-assigned question identifier.
	ID int64 `json:"id"`

	// Text is the question prompt, narrated to the candidate.
	Text string `json:"text"`

	// Technology is the skill tag the question was selected for (e.g., "Python").
	Technology string `json:"technology"`

	// DifficultyLevel is the provider's difficulty label (e.g., "easy", "medium").
	DifficultyLevel string `json:"difficulty_level"`

	// TimeLimitSec is the answering window in seconds. Zero means the session
	// default applies.
	TimeLimitSec int `json:"time_limit"`
}

// TimeLimit returns the effective answering window, falling back to
// [DefaultTimeLimit] when the question carries none.
func (q Question) TimeLimit() time.Duration {
	if q.TimeLimitSec <= 0 {
		return DefaultTimeLimit
	}
	return time.Duration(q.TimeLimitSec) * time.Second
}

// Answer is one candidate response, created exactly once per question
// transition (manual advance or timeout) and immutable afterwards.
type Answer struct {
	// SessionID is the owning interview session (HR document id).
	SessionID string `json:"hr"`

	// QuestionID identifies the question this answers.
	QuestionID int64 `json:"question"`

	// CandidateID identifies the answering candidate.
	CandidateID string `json:"candidate"`

	// Text is the final transcript captured at the time of advance. Empty when
	// the question timed out without speech.
	Text string `json:"answer_text"`

	// SubmittedAt is when the advance fired.
	SubmittedAt time.Time `json:"timestamp"`

	// TimeSpent is the elapsed answering time (time limit minus remaining).
	// Always within [0, time limit].
	TimeSpent time.Duration `json:"-"`
}

// CandidateProfile holds the onboarding fields collected before a session may
// start.
type CandidateProfile struct {
	// ID is assigned by the candidate store on registration. Empty until then.
	ID string `json:"id,omitempty"`

	// Name is the candidate's full name.
	Name string `json:"name"`

	// Technology is the declared primary skill. Must be one of [Technologies].
	Technology string `json:"technology"`

	// Experience is the declared experience bracket. Must be one of
	// [ExperienceLevels].
	Experience string `json:"experience"`

	// RegisteredAt is when the profile was submitted to the candidate store.
	RegisteredAt time.Time `json:"timestamp,omitempty"`
}

// Technologies enumerates the skills candidates can declare during onboarding.
var Technologies = []string{
	"Python",
	"Java",
	"JavaScript",
	"React",
	"Node.js",
	"Go",
	"SQL",
	"DevOps",
}

// ExperienceLevels enumerates the selectable experience brackets.
var ExperienceLevels = []string{
	"0-1 years",
	"1-3 years",
	"3-5 years",
	"5-10 years",
	"10+ years",
}

// Phase is the lifecycle stage of an interview session.
type Phase int

const (
	// PhaseOnboarding collects the candidate profile and verification photo.
	PhaseOnboarding Phase = iota

	// PhaseAwaitingStart has a registered candidate waiting on the explicit
	// start action (mic test screen).
	PhaseAwaitingStart

	// PhaseInProgress runs the question/answer loop.
	PhaseInProgress

	// PhaseComplete is terminal: all answers are submitted and the session is
	// finalized server-side.
	PhaseComplete
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseOnboarding:
		return "onboarding"
	case PhaseAwaitingStart:
		return "awaiting-start"
	case PhaseInProgress:
		return "in-progress"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// SessionSummary is the final session state submitted to the session
// finalizer when the question quota is exhausted.
type SessionSummary struct {
	// Status is the terminal interview status, always "Completed".
	Status string `json:"interview_status"`

	// Closed marks the session as no longer joinable.
	Closed bool `json:"interview_closed"`

	// TabCount is the de-duplicated focus-loss total collected during the
	// session.
	TabCount int `json:"tab_count"`
}

// FormatClock renders a countdown duration as mm:ss for display.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

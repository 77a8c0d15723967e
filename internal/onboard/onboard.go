// Package onboard collects and validates the candidate profile that gates an
// interview session: name, declared technology, experience bracket, and a
// face-bearing verification photo. A successful submission registers the
// candidate with the platform and caches the profile locally so a revisit
// skips onboarding entirely.
package onboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/intervox/intervox/pkg/types"
)

// ErrNoFace is returned when the verification photo fails the face presence
// check.
var ErrNoFace = errors.New("onboard: no face detected in photo")

// Form carries the raw onboarding input.
type Form struct {
	Name       string `validate:"required,min=2,max=120"`
	Technology string `validate:"required,technology"`
	Experience string `validate:"required,experience"`
}

// Registrar registers a candidate with the platform candidate store.
type Registrar interface {
	CreateCandidate(ctx context.Context, p types.CandidateProfile, photoJPEG []byte) (types.CandidateProfile, error)
}

// ProfileCache persists the registered profile locally.
type ProfileCache interface {
	SaveProfile(ctx context.Context, p types.CandidateProfile) error
	LoadProfile(ctx context.Context) (types.CandidateProfile, bool, error)
}

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithFaceChecker replaces the default skin-tone heuristic.
func WithFaceChecker(fc FaceChecker) Option {
	return func(m *Manager) {
		m.faces = fc
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// Manager runs the onboarding flow. Safe for concurrent use.
type Manager struct {
	registrar Registrar
	cache     ProfileCache
	faces     FaceChecker
	validate  *validator.Validate
	log       *slog.Logger
}

// New creates a Manager submitting to registrar and caching through cache.
// cache may be nil, in which case profiles are not cached locally.
func New(registrar Registrar, cache ProfileCache, opts ...Option) *Manager {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Enumerated fields get named validators so error messages carry the
	// field meaning rather than a literal value list.
	_ = v.RegisterValidation("technology", func(fl validator.FieldLevel) bool {
		return slices.Contains(types.Technologies, fl.Field().String())
	})
	_ = v.RegisterValidation("experience", func(fl validator.FieldLevel) bool {
		return slices.Contains(types.ExperienceLevels, fl.Field().String())
	})

	m := &Manager{
		registrar: registrar,
		cache:     cache,
		faces:     SkinToneChecker{},
		validate:  v,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ValidateForm checks the profile fields without touching the photo or the
// backend. Used for incremental form feedback.
func (m *Manager) ValidateForm(f Form) error {
	if err := m.validate.Struct(f); err != nil {
		return fmt.Errorf("onboard: invalid profile: %w", err)
	}
	return nil
}

// Submit validates the form and photo, registers the candidate, and caches
// the resulting profile. Returns the profile with the store-assigned ID.
func (m *Manager) Submit(ctx context.Context, f Form, photoJPEG []byte) (types.CandidateProfile, error) {
	if err := m.ValidateForm(f); err != nil {
		return types.CandidateProfile{}, err
	}
	if len(photoJPEG) == 0 {
		return types.CandidateProfile{}, errors.New("onboard: photo is required")
	}

	ok, err := m.faces.ContainsFace(photoJPEG)
	if err != nil {
		return types.CandidateProfile{}, err
	}
	if !ok {
		return types.CandidateProfile{}, ErrNoFace
	}

	profile := types.CandidateProfile{
		Name:         f.Name,
		Technology:   f.Technology,
		Experience:   f.Experience,
		RegisteredAt: time.Now().UTC(),
	}
	created, err := m.registrar.CreateCandidate(ctx, profile, photoJPEG)
	if err != nil {
		return types.CandidateProfile{}, fmt.Errorf("onboard: register candidate: %w", err)
	}

	if m.cache != nil {
		// Cache failures must not block the candidate; the backend copy is
		// authoritative.
		if err := m.cache.SaveProfile(ctx, created); err != nil {
			m.log.Warn("profile cache write failed", "error", err)
		}
	}

	m.log.Info("candidate registered",
		"candidate", created.ID, "technology", created.Technology)
	return created, nil
}

// CachedProfile returns the locally cached profile, if any. A cached profile
// lets the session skip onboarding on re-entry.
func (m *Manager) CachedProfile(ctx context.Context) (types.CandidateProfile, bool) {
	if m.cache == nil {
		return types.CandidateProfile{}, false
	}
	p, ok, err := m.cache.LoadProfile(ctx)
	if err != nil {
		m.log.Warn("profile cache read failed", "error", err)
		return types.CandidateProfile{}, false
	}
	return p, ok
}

// Package localstore keeps a best-effort local mirror of session state in an
// embedded SQLite database: the cached candidate profile (so a revisit skips
// onboarding) and a diagnostic copy of every submitted answer. The platform
// backend remains the authoritative store; nothing here is required for a
// session to succeed.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/intervox/intervox/pkg/types"
)

// schema creates the mirror tables. The profile table holds at most one row.
const schema = `
CREATE TABLE IF NOT EXISTS profile (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	candidate   TEXT NOT NULL,
	name        TEXT NOT NULL,
	technology  TEXT NOT NULL,
	experience  TEXT NOT NULL,
	registered  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	session     TEXT NOT NULL,
	question    INTEGER NOT NULL,
	candidate   TEXT NOT NULL,
	answer_text TEXT NOT NULL,
	submitted   TIMESTAMP NOT NULL,
	spent_ms    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS answers_session ON answers(session);
`

// Store is the local mirror database. Safe for concurrent use; database/sql
// serialises access to the underlying connection pool.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the mirror database at path. Use
// ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstore: open %q: %w", path, err)
	}
	// modernc.org/sqlite serialises writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveProfile caches the registered candidate profile, replacing any previous
// one.
func (s *Store) SaveProfile(ctx context.Context, p types.CandidateProfile) error {
	registered := p.RegisteredAt
	if registered.IsZero() {
		registered = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile (id, candidate, name, technology, experience, registered)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			candidate = excluded.candidate,
			name = excluded.name,
			technology = excluded.technology,
			experience = excluded.experience,
			registered = excluded.registered`,
		p.ID, p.Name, p.Technology, p.Experience, registered)
	if err != nil {
		return fmt.Errorf("localstore: save profile: %w", err)
	}
	return nil
}

// LoadProfile returns the cached profile. The second return value reports
// whether a profile was present.
func (s *Store) LoadProfile(ctx context.Context) (types.CandidateProfile, bool, error) {
	var p types.CandidateProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT candidate, name, technology, experience, registered
		FROM profile WHERE id = 1`).
		Scan(&p.ID, &p.Name, &p.Technology, &p.Experience, &p.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.CandidateProfile{}, false, nil
	}
	if err != nil {
		return types.CandidateProfile{}, false, fmt.Errorf("localstore: load profile: %w", err)
	}
	return p, true, nil
}

// MirrorAnswer appends one submitted answer to the local mirror.
func (s *Store) MirrorAnswer(ctx context.Context, a types.Answer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answers (session, question, candidate, answer_text, submitted, spent_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.QuestionID, a.CandidateID, a.Text, a.SubmittedAt.UTC(),
		a.TimeSpent.Milliseconds())
	if err != nil {
		return fmt.Errorf("localstore: mirror answer: %w", err)
	}
	return nil
}

// Answers returns the mirrored answers for one session in submission order.
func (s *Store) Answers(ctx context.Context, sessionID string) ([]types.Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, question, candidate, answer_text, submitted, spent_ms
		FROM answers WHERE session = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("localstore: list answers: %w", err)
	}
	defer rows.Close()

	var out []types.Answer
	for rows.Next() {
		var (
			a       types.Answer
			spentMS int64
		)
		if err := rows.Scan(&a.SessionID, &a.QuestionID, &a.CandidateID, &a.Text,
			&a.SubmittedAt, &spentMS); err != nil {
			return nil, fmt.Errorf("localstore: scan answer: %w", err)
		}
		a.TimeSpent = time.Duration(spentMS) * time.Millisecond
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("localstore: list answers: %w", err)
	}
	return out, nil
}

// SessionExport is a diagnostic dump of one session's mirrored state.
type SessionExport struct {
	SessionID  string                 `json:"session_id"`
	Profile    *types.CandidateProfile `json:"profile,omitempty"`
	Answers    []types.Answer         `json:"answers"`
	TotalSpent time.Duration          `json:"total_spent"`
	ExportedAt time.Time              `json:"exported_at"`
}

// Export assembles the mirrored profile and answers for sessionID.
func (s *Store) Export(ctx context.Context, sessionID string) (SessionExport, error) {
	exp := SessionExport{
		SessionID:  sessionID,
		ExportedAt: time.Now().UTC(),
	}

	profile, ok, err := s.LoadProfile(ctx)
	if err != nil {
		return SessionExport{}, err
	}
	if ok {
		exp.Profile = &profile
	}

	answers, err := s.Answers(ctx, sessionID)
	if err != nil {
		return SessionExport{}, err
	}
	exp.Answers = answers
	for _, a := range answers {
		exp.TotalSpent += a.TimeSpent
	}
	return exp, nil
}

// ClearSession removes mirrored answers for one session. Used on session
// reset.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM answers WHERE session = ?`, sessionID); err != nil {
		return fmt.Errorf("localstore: clear session: %w", err)
	}
	return nil
}

// ClearAll wipes the cached profile and every mirrored answer.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM answers`); err != nil {
		return fmt.Errorf("localstore: clear answers: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profile`); err != nil {
		return fmt.Errorf("localstore: clear profile: %w", err)
	}
	return nil
}

// Package store persists supervised session metadata in SQLite. WAL mode
// plus a busy timeout make it safe for the CLI and the automation daemon
// to share one database file.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is bumped when migrations are added.
const SchemaVersion = 1

// ErrNotFound is returned when a session row does not exist.
var ErrNotFound = errors.New("session not found")

// SessionRow is one supervised session.
type SessionRow struct {
	Name           string
	ProjectPath    string
	WorktreePath   string
	WorktreeBranch string
	AgentCommand   string
	Mode           string
	CreatedAt      time.Time
	LastAccessed   time.Time
	LastMatcher    string
	LastMatcherAt  time.Time
}

// Store wraps the SQLite database. Safe for concurrent use within one
// process; cross-process access relies on WAL and the busy timeout.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			name            TEXT PRIMARY KEY,
			project_path    TEXT NOT NULL,
			worktree_path   TEXT NOT NULL DEFAULT '',
			worktree_branch TEXT NOT NULL DEFAULT '',
			agent_command   TEXT NOT NULL DEFAULT '',
			mode            TEXT NOT NULL DEFAULT 'act',
			created_at      INTEGER NOT NULL,
			last_accessed   INTEGER NOT NULL DEFAULT 0,
			last_matcher    TEXT NOT NULL DEFAULT '',
			last_matcher_at INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("store: create sessions: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", SchemaVersion),
	); err != nil {
		return fmt.Errorf("store: set schema version: %w", err)
	}

	return tx.Commit()
}

// Save inserts or replaces a session row.
func (s *Store) Save(row *SessionRow) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (
			name, project_path, worktree_path, worktree_branch,
			agent_command, mode, created_at, last_accessed,
			last_matcher, last_matcher_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.Name, row.ProjectPath, row.WorktreePath, row.WorktreeBranch,
		row.AgentCommand, row.Mode, row.CreatedAt.Unix(), unixOrZero(row.LastAccessed),
		row.LastMatcher, unixOrZero(row.LastMatcherAt),
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", row.Name, err)
	}
	return s.touch()
}

// Get returns one session by name, or ErrNotFound.
func (s *Store) Get(name string) (*SessionRow, error) {
	row := s.db.QueryRow(`
		SELECT name, project_path, worktree_path, worktree_branch,
			agent_command, mode, created_at, last_accessed,
			last_matcher, last_matcher_at
		FROM sessions WHERE name = ?
	`, name)
	rec, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns all sessions, most recently created first.
func (s *Store) List() ([]*SessionRow, error) {
	rows, err := s.db.Query(`
		SELECT name, project_path, worktree_path, worktree_branch,
			agent_command, mode, created_at, last_accessed,
			last_matcher, last_matcher_at
		FROM sessions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []*SessionRow
	for rows.Next() {
		rec, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a session row. Deleting an absent row is not an error.
func (s *Store) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("store: delete %s: %w", name, err)
	}
	return s.touch()
}

// TouchAccessed bumps a session's last-accessed timestamp.
func (s *Store) TouchAccessed(name string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET last_accessed = ? WHERE name = ?`,
		time.Now().Unix(), name,
	)
	return err
}

// RecordAutomation notes the most recent matcher fired for a session.
func (s *Store) RecordAutomation(name, matcher string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET last_matcher = ?, last_matcher_at = ? WHERE name = ?`,
		matcher, time.Now().Unix(), name,
	)
	return err
}

// LastModified returns the heartbeat written on every mutation, zero if
// never written. External watchers poll this to detect changes cheaply.
func (s *Store) LastModified() (time.Time, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM metadata WHERE key = 'last_modified'`,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	var unix int64
	if _, err := fmt.Sscanf(value, "%d", &unix); err != nil {
		return time.Time{}, fmt.Errorf("store: bad last_modified %q: %w", value, err)
	}
	return time.Unix(unix, 0), nil
}

func (s *Store) touch() error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('last_modified', ?)`,
		fmt.Sprintf("%d", time.Now().Unix()),
	)
	return err
}

func scanSession(scan func(dest ...any) error) (*SessionRow, error) {
	rec := &SessionRow{}
	var created, accessed, matcherAt int64
	if err := scan(
		&rec.Name, &rec.ProjectPath, &rec.WorktreePath, &rec.WorktreeBranch,
		&rec.AgentCommand, &rec.Mode, &created, &accessed,
		&rec.LastMatcher, &matcherAt,
	); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(created, 0)
	if accessed > 0 {
		rec.LastAccessed = time.Unix(accessed, 0)
	}
	if matcherAt > 0 {
		rec.LastMatcherAt = time.Unix(matcherAt, 0)
	}
	return rec, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

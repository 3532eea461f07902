// Package store persists terminal, inbox, approval and flow records in a
// single sqlite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agent-conductor/conductord/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS terminals (
	id            TEXT PRIMARY KEY,
	session_name  TEXT NOT NULL,
	window_name   TEXT NOT NULL,
	provider      TEXT NOT NULL,
	agent_profile TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS inbox_messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id   TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	message     TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS approval_requests (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	terminal_id   TEXT NOT NULL,
	supervisor_id TEXT NOT NULL,
	command_text  TEXT NOT NULL,
	metadata      TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	decided_at    TEXT
);
CREATE TABLE IF NOT EXISTS flows (
	name          TEXT PRIMARY KEY,
	file_path     TEXT NOT NULL,
	schedule      TEXT NOT NULL,
	agent_profile TEXT NOT NULL,
	script        TEXT NOT NULL DEFAULT '',
	enabled       INTEGER NOT NULL DEFAULT 1,
	last_run      TEXT,
	next_run      TEXT
);
`

type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directories) if needed and
// applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer connection keeps per-record updates serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout keeps a fixed-width fraction so the TEXT columns sort
// lexicographically in timestamp order; RFC3339Nano trims trailing
// zeros and breaks sub-second ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

// ---- terminals ----

const terminalColumns = `id, session_name, window_name, provider, agent_profile, status, created_at`

func scanTerminal(scanner interface{ Scan(...any) error }) (*model.Terminal, error) {
	var t model.Terminal
	var createdAt string
	err := scanner.Scan(&t.ID, &t.SessionName, &t.WindowName, &t.Provider,
		&t.AgentProfile, &t.Status, &createdAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func (s *Store) CreateTerminal(t *model.Terminal) error {
	_, err := s.db.Exec(
		`INSERT INTO terminals (id, session_name, window_name, provider, agent_profile, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionName, t.WindowName, t.Provider, t.AgentProfile, t.Status, formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert terminal: %w", err)
	}
	return nil
}

// GetTerminal returns (nil, nil) when the id is unknown.
func (s *Store) GetTerminal(id string) (*model.Terminal, error) {
	row := s.db.QueryRow(`SELECT `+terminalColumns+` FROM terminals WHERE id = ?`, id)
	t, err := scanTerminal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query terminal: %w", err)
	}
	return t, nil
}

func (s *Store) ListTerminals(session string) ([]model.Terminal, error) {
	rows, err := s.db.Query(
		`SELECT `+terminalColumns+` FROM terminals WHERE session_name = ? ORDER BY created_at ASC`,
		session,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list terminals: %w", err)
	}
	defer rows.Close()

	var terminals []model.Terminal
	for rows.Next() {
		t, err := scanTerminal(rows)
		if err != nil {
			return nil, err
		}
		terminals = append(terminals, *t)
	}
	return terminals, rows.Err()
}

func (s *Store) ListSessionNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT session_name FROM terminals ORDER BY session_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) CountTerminalsInSession(session string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM terminals WHERE session_name = ?`, session).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count terminals: %w", err)
	}
	return count, nil
}

func (s *Store) UpdateTerminalStatus(id string, status model.TerminalStatus) error {
	_, err := s.db.Exec(`UPDATE terminals SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update terminal status: %w", err)
	}
	return nil
}

func (s *Store) DeleteTerminal(id string) error {
	_, err := s.db.Exec(`DELETE FROM terminals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete terminal: %w", err)
	}
	return nil
}

// ListTerminalIDs returns every persisted terminal id, for orphan-log
// reconciliation.
func (s *Store) ListTerminalIDs() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT id FROM terminals`)
	if err != nil {
		return nil, fmt.Errorf("failed to list terminal ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// ListPurgeableTerminals returns terminals in a terminal state created
// before the cutoff.
func (s *Store) ListPurgeableTerminals(cutoff time.Time) ([]model.Terminal, error) {
	rows, err := s.db.Query(
		`SELECT `+terminalColumns+` FROM terminals
		 WHERE status IN (?, ?) AND created_at <= ?
		 ORDER BY created_at ASC`,
		model.StatusCompleted, model.StatusError, formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purgeable terminals: %w", err)
	}
	defer rows.Close()

	var terminals []model.Terminal
	for rows.Next() {
		t, err := scanTerminal(rows)
		if err != nil {
			return nil, err
		}
		terminals = append(terminals, *t)
	}
	return terminals, rows.Err()
}

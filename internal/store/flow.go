package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agent-conductor/conductord/internal/model"
)

const flowColumns = `name, file_path, schedule, agent_profile, script, enabled, last_run, next_run`

func scanFlow(scanner interface{ Scan(...any) error }) (*model.Flow, error) {
	var f model.Flow
	var lastRun, nextRun sql.NullString
	err := scanner.Scan(&f.Name, &f.FilePath, &f.Schedule, &f.AgentProfile,
		&f.Script, &f.Enabled, &lastRun, &nextRun)
	if err != nil {
		return nil, err
	}
	f.LastRun = parseTimePtr(lastRun)
	f.NextRun = parseTimePtr(nextRun)
	return &f, nil
}

// UpsertFlow registers or replaces a flow definition by name.
func (s *Store) UpsertFlow(f *model.Flow) error {
	_, err := s.db.Exec(
		`INSERT INTO flows (name, file_path, schedule, agent_profile, script, enabled)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			file_path = excluded.file_path,
			schedule = excluded.schedule,
			agent_profile = excluded.agent_profile,
			script = excluded.script,
			enabled = excluded.enabled`,
		f.Name, f.FilePath, f.Schedule, f.AgentProfile, f.Script, f.Enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert flow: %w", err)
	}
	return nil
}

func (s *Store) GetFlow(name string) (*model.Flow, error) {
	row := s.db.QueryRow(`SELECT `+flowColumns+` FROM flows WHERE name = ?`, name)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query flow: %w", err)
	}
	return f, nil
}

func (s *Store) ListFlows() ([]model.Flow, error) {
	rows, err := s.db.Query(`SELECT ` + flowColumns + ` FROM flows ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var flows []model.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, *f)
	}
	return flows, rows.Err()
}

func (s *Store) SetFlowEnabled(name string, enabled bool) error {
	_, err := s.db.Exec(`UPDATE flows SET enabled = ? WHERE name = ?`, enabled, name)
	if err != nil {
		return fmt.Errorf("failed to update flow: %w", err)
	}
	return nil
}

func (s *Store) DeleteFlow(name string) error {
	_, err := s.db.Exec(`DELETE FROM flows WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	return nil
}

// RecordFlowRun stamps the last and next run times after an external
// runner executes the flow.
func (s *Store) RecordFlowRun(name string, lastRun time.Time, nextRun *time.Time) error {
	var next any
	if nextRun != nil {
		next = formatTime(*nextRun)
	}
	_, err := s.db.Exec(`UPDATE flows SET last_run = ?, next_run = ? WHERE name = ?`,
		formatTime(lastRun), next, name)
	if err != nil {
		return fmt.Errorf("failed to record flow run: %w", err)
	}
	return nil
}

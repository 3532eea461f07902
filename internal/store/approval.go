package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agent-conductor/conductord/internal/model"
)

const approvalColumns = `id, terminal_id, supervisor_id, command_text, metadata, status, created_at, decided_at`

func scanApproval(scanner interface{ Scan(...any) error }) (*model.ApprovalRequest, error) {
	var a model.ApprovalRequest
	var createdAt string
	var decidedAt sql.NullString
	err := scanner.Scan(&a.ID, &a.TerminalID, &a.SupervisorID, &a.CommandText,
		&a.Metadata, &a.Status, &createdAt, &decidedAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdAt)
	a.DecidedAt = parseTimePtr(decidedAt)
	return &a, nil
}

func (s *Store) CreateApproval(terminalID, supervisorID, commandText, metadata string) (*model.ApprovalRequest, error) {
	now := time.Now()
	result, err := s.db.Exec(
		`INSERT INTO approval_requests (terminal_id, supervisor_id, command_text, metadata, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		terminalID, supervisorID, commandText, metadata, model.ApprovalPending, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert approval request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get approval request id: %w", err)
	}
	return &model.ApprovalRequest{
		ID:           id,
		TerminalID:   terminalID,
		SupervisorID: supervisorID,
		CommandText:  commandText,
		Metadata:     metadata,
		Status:       model.ApprovalPending,
		CreatedAt:    now.UTC(),
	}, nil
}

// GetApproval returns (nil, nil) when the id is unknown.
func (s *Store) GetApproval(id int64) (*model.ApprovalRequest, error) {
	row := s.db.QueryRow(`SELECT `+approvalColumns+` FROM approval_requests WHERE id = ?`, id)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query approval request: %w", err)
	}
	return a, nil
}

// ListApprovals returns requests oldest first, optionally filtered by status.
func (s *Store) ListApprovals(status model.ApprovalStatus) ([]model.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	defer rows.Close()

	var approvals []model.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, *a)
	}
	return approvals, rows.Err()
}

// DecideApproval transitions a PENDING request to the given status via
// compare-and-swap. Returns false when the request was already decided
// (or does not exist); the caller disambiguates.
func (s *Store) DecideApproval(id int64, status model.ApprovalStatus, decidedAt time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE approval_requests SET status = ?, decided_at = ? WHERE id = ? AND status = ?`,
		status, formatTime(decidedAt), id, model.ApprovalPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decide approval request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read decision result: %w", err)
	}
	return n == 1, nil
}

package store

import (
	"fmt"
	"time"

	"github.com/agent-conductor/conductord/internal/model"
)

const inboxColumns = `id, sender_id, receiver_id, message, status, created_at`

func scanInbox(scanner interface{ Scan(...any) error }) (*model.InboxMessage, error) {
	var m model.InboxMessage
	var createdAt string
	err := scanner.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Message, &m.Status, &createdAt)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func (s *Store) CreateInboxMessage(sender, receiver, message string) (*model.InboxMessage, error) {
	now := time.Now()
	result, err := s.db.Exec(
		`INSERT INTO inbox_messages (sender_id, receiver_id, message, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sender, receiver, message, model.InboxPending, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert inbox message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox message id: %w", err)
	}
	return &model.InboxMessage{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Message:    message,
		Status:     model.InboxPending,
		CreatedAt:  now.UTC(),
	}, nil
}

func (s *Store) listInbox(query string, args ...any) ([]model.InboxMessage, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox messages: %w", err)
	}
	defer rows.Close()

	var messages []model.InboxMessage
	for rows.Next() {
		m, err := scanInbox(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// ListInbox returns every message addressed to receiver, oldest first.
func (s *Store) ListInbox(receiver string) ([]model.InboxMessage, error) {
	return s.listInbox(
		`SELECT `+inboxColumns+` FROM inbox_messages WHERE receiver_id = ? ORDER BY id ASC`,
		receiver,
	)
}

// ListPendingInbox returns undelivered messages for receiver in creation order.
func (s *Store) ListPendingInbox(receiver string) ([]model.InboxMessage, error) {
	return s.listInbox(
		`SELECT `+inboxColumns+` FROM inbox_messages WHERE receiver_id = ? AND status = ? ORDER BY id ASC`,
		receiver, model.InboxPending,
	)
}

// ListPendingReceivers returns the distinct receivers with at least one
// pending message.
func (s *Store) ListPendingReceivers() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT receiver_id FROM inbox_messages WHERE status = ? ORDER BY receiver_id ASC`,
		model.InboxPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending receivers: %w", err)
	}
	defer rows.Close()

	var receivers []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		receivers = append(receivers, r)
	}
	return receivers, rows.Err()
}

// SetInboxStatus records a delivery outcome. A message leaves PENDING at
// most once; re-marking a delivered message is a no-op.
func (s *Store) SetInboxStatus(id int64, status model.InboxStatus) error {
	_, err := s.db.Exec(
		`UPDATE inbox_messages SET status = ? WHERE id = ? AND status = ?`,
		status, id, model.InboxPending,
	)
	if err != nil {
		return fmt.Errorf("failed to update inbox status: %w", err)
	}
	return nil
}

// Package model holds the record types shared by the orchestration core.
package model

import "time"

// TerminalStatus is the coarse lifecycle state of a terminal's agent process.
type TerminalStatus string

const (
	StatusReady     TerminalStatus = "READY"
	StatusRunning   TerminalStatus = "RUNNING"
	StatusCompleted TerminalStatus = "COMPLETED"
	StatusError     TerminalStatus = "ERROR"
)

// InboxStatus is the delivery state of an inbox message.
type InboxStatus string

const (
	InboxPending   InboxStatus = "PENDING"
	InboxDelivered InboxStatus = "DELIVERED"
	InboxFailed    InboxStatus = "FAILED"
)

// ApprovalStatus is the decision state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalDenied   ApprovalStatus = "DENIED"
)

// Terminal is one tmux window bound to one agent process.
type Terminal struct {
	ID           string         `json:"id"`
	SessionName  string         `json:"session_name"`
	WindowName   string         `json:"window_name"`
	Provider     string         `json:"provider"`
	AgentProfile string         `json:"agent_profile,omitempty"`
	Status       TerminalStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Session is a derived grouping of terminals sharing a tmux session.
// The terminal whose window name carries the supervisor role prefix is
// the session's supervisor; the rest are workers.
type Session struct {
	Name      string     `json:"name"`
	Terminals []Terminal `json:"terminals"`
}

// InboxMessage is a queued unit of terminal-to-terminal communication.
type InboxMessage struct {
	ID         int64       `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id"`
	Message    string      `json:"message"`
	Status     InboxStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ApprovalRequest gates execution of a command on a terminal behind a
// human decision.
type ApprovalRequest struct {
	ID           int64          `json:"id"`
	TerminalID   string         `json:"terminal_id"`
	SupervisorID string         `json:"supervisor_id"`
	CommandText  string         `json:"command_text"`
	Metadata     string         `json:"metadata,omitempty"`
	Status       ApprovalStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
}

// Flow is a registered flow definition. Scheduling is out of scope; the
// daemon only persists and lists these.
type Flow struct {
	Name         string     `json:"name"`
	FilePath     string     `json:"file_path"`
	Schedule     string     `json:"schedule"`
	AgentProfile string     `json:"agent_profile"`
	Script       string     `json:"script,omitempty"`
	Enabled      bool       `json:"enabled"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

// Package approval implements the human-in-the-loop gate: agents request
// permission for commands, supervisors decide, every step lands in an
// append-only audit trail.
package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/store"
)

var (
	// ErrRequestNotFound reports an unknown approval request id.
	ErrRequestNotFound = errors.New("approval request not found")
	// ErrAlreadyDecided reports a second decision on the same request.
	ErrAlreadyDecided = errors.New("approval request already decided")
)

// Sender delivers text into a terminal.
type Sender interface {
	SendInput(id, text string) error
}

// Notifier queues an inbox message.
type Notifier interface {
	Queue(sender, receiver, message string) (*model.InboxMessage, error)
}

type Service struct {
	store    *store.Store
	sender   Sender
	notifier Notifier

	auditMu   sync.Mutex
	auditPath string
}

func NewService(st *store.Store, sender Sender, notifier Notifier, auditDir string) *Service {
	return &Service{
		store:     st,
		sender:    sender,
		notifier:  notifier,
		auditPath: filepath.Join(auditDir, "audit.jsonl"),
	}
}

type auditRecord struct {
	Timestamp    string `json:"timestamp"`
	Action       string `json:"action"`
	RequestID    int64  `json:"request_id"`
	TerminalID   string `json:"terminal_id"`
	SupervisorID string `json:"supervisor_id"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

// audit appends one record to the jsonl trail and fsyncs it. Audit write
// failures are logged, never surfaced to the workflow.
func (s *Service) audit(action string, req *model.ApprovalRequest, reason string) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.auditPath), 0o755); err != nil {
		log.Printf("approval: audit dir: %v", err)
		return
	}
	f, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("approval: audit open: %v", err)
		return
	}
	defer f.Close()

	rec := auditRecord{
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Action:       action,
		RequestID:    req.ID,
		TerminalID:   req.TerminalID,
		SupervisorID: req.SupervisorID,
		Status:       string(req.Status),
		Reason:       reason,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("approval: audit marshal: %v", err)
		return
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("approval: audit write: %v", err)
		return
	}
	if err := f.Sync(); err != nil {
		log.Printf("approval: audit sync: %v", err)
	}
}

// Request records a pending approval and notifies the supervisor through
// its inbox.
func (s *Service) Request(terminalID, supervisorID, commandText, metadata string) (*model.ApprovalRequest, error) {
	req, err := s.store.CreateApproval(terminalID, supervisorID, commandText, metadata)
	if err != nil {
		return nil, err
	}
	s.audit("REQUESTED", req, "")

	notice := fmt.Sprintf("Approval required for request %d from %s: %s", req.ID, terminalID, commandText)
	if _, err := s.notifier.Queue(terminalID, supervisorID, notice); err != nil {
		log.Printf("approval: supervisor notification for request %d: %v", req.ID, err)
	}
	return req, nil
}

// Get returns one request.
func (s *Service) Get(id int64) (*model.ApprovalRequest, error) {
	req, err := s.store.GetApproval(id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %d", ErrRequestNotFound, id)
	}
	return req, nil
}

// List returns requests oldest first, optionally filtered by status.
func (s *Service) List(status model.ApprovalStatus) ([]model.ApprovalRequest, error) {
	return s.store.ListApprovals(status)
}

// decide runs the compare-and-swap transition out of PENDING and
// disambiguates the failure.
func (s *Service) decide(id int64, status model.ApprovalStatus) (*model.ApprovalRequest, error) {
	decided, err := s.store.DecideApproval(id, status, time.Now())
	if err != nil {
		return nil, err
	}
	if !decided {
		req, err := s.store.GetApproval(id)
		if err != nil {
			return nil, err
		}
		if req == nil {
			return nil, fmt.Errorf("%w: %d", ErrRequestNotFound, id)
		}
		return nil, fmt.Errorf("%w: %d is %s", ErrAlreadyDecided, id, req.Status)
	}
	return s.Get(id)
}

// Approve marks the request APPROVED and executes the held command in
// the requesting terminal.
func (s *Service) Approve(id int64) (*model.ApprovalRequest, error) {
	req, err := s.decide(id, model.ApprovalApproved)
	if err != nil {
		return nil, err
	}
	s.audit("APPROVED", req, "")

	if err := s.sender.SendInput(req.TerminalID, req.CommandText); err != nil {
		return nil, fmt.Errorf("failed to execute approved command %d in %s: %w", req.ID, req.TerminalID, err)
	}
	return req, nil
}

// Deny marks the request DENIED. A non-empty reason is relayed to the
// requesting terminal's inbox.
func (s *Service) Deny(id int64, reason string) (*model.ApprovalRequest, error) {
	req, err := s.decide(id, model.ApprovalDenied)
	if err != nil {
		return nil, err
	}
	s.audit("DENIED", req, reason)

	if reason != "" {
		notice := fmt.Sprintf("Approval request %d denied: %s", req.ID, reason)
		if _, err := s.notifier.Queue(req.SupervisorID, req.TerminalID, notice); err != nil {
			log.Printf("approval: denial notification for request %d: %v", req.ID, err)
		}
	}
	return req, nil
}

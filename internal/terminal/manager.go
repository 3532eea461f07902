// Package terminal owns the lifecycle of agent terminals: tmux window,
// provider instance and persisted record move together.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/providers"
	"github.com/agent-conductor/conductord/internal/store"
	"github.com/agent-conductor/conductord/internal/tmux"
)

const (
	// SessionPrefix names tmux sessions owned by the daemon.
	SessionPrefix = "conductor-"
	// SupervisorWindowPrefix marks the window that receives escalations
	// for its session.
	SupervisorWindowPrefix = "supervisor-"
	// TerminalIDEnv is exported into the tmux session so agent processes
	// can identify their own terminal when talking back to the daemon.
	TerminalIDEnv = "CONDUCTOR_TERMINAL_ID"
)

// ErrTerminalNotFound reports an unknown terminal id.
var ErrTerminalNotFound = errors.New("terminal not found")

// Providers is the slice of the registry the manager needs.
type Providers interface {
	Create(ctx context.Context, kind, terminalID, session, window, profile string) (providers.Provider, error)
	Get(terminalID string) (providers.Provider, error)
	Cleanup(terminalID string)
}

// Tmux is the slice of the tmux client the manager needs.
type Tmux interface {
	SessionExists(name string) bool
	CreateSession(session, window, startDir string, env map[string]string) error
	CreateWindow(session, window, startDir string, env map[string]string) error
	KillSession(session string) error
	KillWindow(session, window string) error
	CapturePane(session, window string) (string, error)
	PipePane(session, window, command string) error
}

type Manager struct {
	store     *store.Store
	tmux      Tmux
	providers Providers
	logDir    string
}

func NewManager(st *store.Store, tm Tmux, pr Providers, logDir string) *Manager {
	return &Manager{store: st, tmux: tm, providers: pr, logDir: logDir}
}

// CreateRequest describes a terminal to spawn.
type CreateRequest struct {
	Provider     string
	AgentProfile string
	Role         string
	SessionName  string
	WorkingDir   string
}

func newTerminalID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSessionName generates a fresh daemon-owned session name.
func NewSessionName() string {
	return SessionPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// windowName composes role, profile and kind so two terminals in one
// session never collide unless they share all three.
func windowName(role, profile, kind string) string {
	if role == "" {
		role = "worker"
	}
	if profile == "" {
		return role + "-" + kind
	}
	return role + "-" + profile + "-" + kind
}

// IsSupervisorWindow reports whether a window name marks the session
// supervisor.
func IsSupervisorWindow(window string) bool {
	return strings.HasPrefix(window, SupervisorWindowPrefix)
}

// Create spawns the tmux window, starts the agent process through its
// provider and persists the terminal record. Any failure rolls the tmux
// side back so no half-created window leaks.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*model.Terminal, error) {
	id := newTerminalID()
	session := req.SessionName
	if session == "" {
		session = NewSessionName()
	}
	window := windowName(req.Role, req.AgentProfile, req.Provider)
	env := map[string]string{TerminalIDEnv: id}

	createdSession := false
	if m.tmux.SessionExists(session) {
		if err := m.tmux.CreateWindow(session, window, req.WorkingDir, env); err != nil {
			return nil, fmt.Errorf("failed to create terminal window: %w", err)
		}
	} else {
		// An explicitly named session must be live; only generated names
		// bring up a fresh session.
		if req.SessionName != "" {
			return nil, fmt.Errorf("%w: session %q", tmux.ErrTargetNotFound, session)
		}
		if err := m.tmux.CreateSession(session, window, req.WorkingDir, env); err != nil {
			return nil, fmt.Errorf("failed to create terminal session: %w", err)
		}
		createdSession = true
	}

	teardown := func() {
		if err := m.tmux.KillWindow(session, window); err != nil && !errors.Is(err, tmux.ErrTargetNotFound) {
			log.Printf("terminal %s: window teardown: %v", id, err)
		}
		if createdSession {
			if err := m.tmux.KillSession(session); err != nil {
				log.Printf("terminal %s: session teardown: %v", id, err)
			}
		}
	}

	if m.logDir != "" {
		if err := os.MkdirAll(m.logDir, 0o755); err != nil {
			log.Printf("terminal %s: log dir: %v", id, err)
		} else {
			logFile := filepath.Join(m.logDir, id+".log")
			if err := m.tmux.PipePane(session, window, "cat >> "+logFile); err != nil {
				log.Printf("terminal %s: pipe-pane: %v", id, err)
			}
		}
	}

	if _, err := m.providers.Create(ctx, req.Provider, id, session, window, req.AgentProfile); err != nil {
		teardown()
		return nil, err
	}

	t := &model.Terminal{
		ID:           id,
		SessionName:  session,
		WindowName:   window,
		Provider:     req.Provider,
		AgentProfile: req.AgentProfile,
		Status:       model.StatusReady,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.CreateTerminal(t); err != nil {
		m.providers.Cleanup(id)
		teardown()
		return nil, err
	}
	return t, nil
}

// Get returns the persisted terminal record.
func (m *Manager) Get(id string) (*model.Terminal, error) {
	t, err := m.store.GetTerminal(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %q", ErrTerminalNotFound, id)
	}
	return t, nil
}

// List returns the terminals of one session, creation order.
func (m *Manager) List(session string) ([]model.Terminal, error) {
	return m.store.ListTerminals(session)
}

// SendInput forwards text to the terminal's agent and refreshes the
// persisted status from the pane afterwards.
func (m *Manager) SendInput(id, text string) error {
	t, err := m.Get(id)
	if err != nil {
		return err
	}
	p, err := m.providers.Get(id)
	if err != nil {
		return err
	}
	if err := p.SendInput(text); err != nil {
		return fmt.Errorf("failed to send input to terminal %s: %w", id, err)
	}
	status, err := p.Status()
	if err != nil {
		log.Printf("terminal %s: status refresh after input: %v", id, err)
		status = model.StatusRunning
	}
	if err := m.store.UpdateTerminalStatus(t.ID, status); err != nil {
		return err
	}
	return nil
}

// RefreshStatus re-derives a terminal's status from its pane and
// persists it.
func (m *Manager) RefreshStatus(id string) (model.TerminalStatus, error) {
	t, err := m.Get(id)
	if err != nil {
		return "", err
	}
	p, err := m.providers.Get(id)
	if err != nil {
		return t.Status, err
	}
	status, err := p.Status()
	if err != nil {
		return t.Status, err
	}
	if status != t.Status {
		if err := m.store.UpdateTerminalStatus(id, status); err != nil {
			return status, err
		}
	}
	return status, nil
}

// CaptureOutput returns the terminal's pane text. With lastOnly the
// provider extracts just the most recent agent answer.
func (m *Manager) CaptureOutput(id string, lastOnly bool) (string, error) {
	t, err := m.Get(id)
	if err != nil {
		return "", err
	}
	history, err := m.tmux.CapturePane(t.SessionName, t.WindowName)
	if err != nil {
		return "", err
	}
	if !lastOnly {
		return history, nil
	}
	p, err := m.providers.Get(id)
	if err != nil {
		return "", err
	}
	return p.ExtractLastMessage(history)
}

// Delete tears a terminal down: provider shutdown, window kill, record
// removal, and the session too once its last terminal is gone. Deleting
// an unknown id is a no-op.
func (m *Manager) Delete(id string) error {
	t, err := m.store.GetTerminal(id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}

	m.providers.Cleanup(id)

	if err := m.tmux.KillWindow(t.SessionName, t.WindowName); err != nil {
		log.Printf("terminal %s: kill window: %v", id, err)
	}
	if err := m.store.DeleteTerminal(id); err != nil {
		return err
	}

	remaining, err := m.store.CountTerminalsInSession(t.SessionName)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := m.tmux.KillSession(t.SessionName); err != nil {
			log.Printf("terminal %s: kill session %s: %v", id, t.SessionName, err)
		}
	}
	return nil
}

// LogPath returns the pipe-pane log file for a terminal id.
func (m *Manager) LogPath(id string) string {
	return filepath.Join(m.logDir, id+".log")
}

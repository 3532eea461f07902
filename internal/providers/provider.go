// Package providers turns raw tmux pane text into agent lifecycle
// status, extracted answers and pending interactive prompts. Each agent
// kind ships its own marker tables; everything else is shared contract.
package providers

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/agent-conductor/conductord/internal/model"
)

const (
	KindClaudeCode = "claude_code"
	KindCodex      = "codex"
	KindQCLI       = "q_cli"
)

var (
	// ErrUnknownProvider reports an unregistered provider kind.
	ErrUnknownProvider = errors.New("unknown provider kind")
	// ErrProviderNotLoaded reports that no live instance exists for a
	// terminal, e.g. after a daemon restart.
	ErrProviderNotLoaded = errors.New("provider not loaded")
	// ErrNoResponse reports that the scrollback contains no agent answer.
	ErrNoResponse = errors.New("no response found in history")
)

// InitError is a provider startup failure: either the bounded readiness
// wait timed out or the pane showed unrecoverable startup text.
type InitError struct {
	Kind       string
	Timeout    bool
	Diagnostic string
}

func (e *InitError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s initialization timed out", e.Kind)
	}
	return fmt.Sprintf("%s initialization failed: %s", e.Kind, e.Diagnostic)
}

// Driver is the slice of the tmux client a provider needs.
type Driver interface {
	SendKeys(session, window, text string) error
	CapturePane(session, window string) (string, error)
}

// Provider is the per-agent-kind state machine bound to one terminal.
type Provider interface {
	// Initialize launches the agent process in the bound window and
	// waits until it reports READY or the kind's deadline elapses.
	Initialize(ctx context.Context) error
	// SendInput writes text plus a confirm keystroke into the window
	// and optimistically marks the terminal RUNNING.
	SendInput(text string) error
	// Status re-reads the pane and classifies it.
	Status() (model.TerminalStatus, error)
	// ExtractLastMessage returns the most recent agent answer found in
	// the given scrollback, cleaned of markup.
	ExtractLastMessage(history string) (string, error)
	// DetectInteractivePrompt returns the pane's pending choice prompt,
	// or "" when the agent is not blocked on one or the same prompt was
	// already reported. Kinds without the capability always return "".
	DetectInteractivePrompt() string
	// Cleanup sends a best-effort shutdown command and forces COMPLETED.
	Cleanup()
}

// Options carries the tunables a kind's constructor needs.
type Options struct {
	Bin          string
	InitTimeout  time.Duration
	PollInterval time.Duration
	StateRoot    string
}

// base holds the fields and behavior every kind shares.
type base struct {
	terminalID  string
	session     string
	window      string
	profileName string
	driver      Driver
	opts        Options

	mu     sync.Mutex
	status model.TerminalStatus
}

func (b *base) setStatus(s model.TerminalStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

func (b *base) lastStatus() model.TerminalStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// sendInput implements the shared send path: mark RUNNING first, then
// write the keystrokes. The next Status call re-derives from the pane.
func (b *base) sendInput(text string) error {
	b.setStatus(model.StatusRunning)
	return b.driver.SendKeys(b.session, b.window, text)
}

var errWaitTimeout = errors.New("readiness wait timed out")
var errStartupFailed = errors.New("startup failed")

// waitForReady polls status until it reports READY. ERROR aborts the
// wait immediately; the deadline is a hard failure.
func waitForReady(ctx context.Context, timeout, interval time.Duration, status func() (model.TerminalStatus, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s, err := status()
		if err == nil {
			switch s {
			case model.StatusReady:
				return nil
			case model.StatusError:
				return errStartupFailed
			}
		}
		select {
		case <-ctx.Done():
			return errWaitTimeout
		case <-ticker.C:
		}
	}
}

// ensureBinary fails fast when the agent CLI is not installed.
func ensureBinary(kind, bin string) error {
	if _, err := exec.LookPath(bin); err != nil {
		return &InitError{
			Kind:       kind,
			Diagnostic: fmt.Sprintf("required binary %q not found on PATH", bin),
		}
	}
	return nil
}

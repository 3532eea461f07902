// Package tmux wraps the tmux binary with the session/window operations
// the orchestration core needs.
package tmux

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/agent-conductor/conductord/internal/config"
)

// ErrTargetNotFound reports that the addressed session or window vanished
// out-of-band (killed by hand, server restarted, ...).
var ErrTargetNotFound = errors.New("tmux target not found")

// Runner executes one tmux command and returns its combined output.
// Injected so tests can run without a tmux server.
type Runner interface {
	Run(args ...string) (string, error)
}

type execRunner struct {
	bin    string
	socket string
}

func (r *execRunner) Run(args ...string) (string, error) {
	if r.socket != "" {
		args = append([]string{"-S", r.socket}, args...)
	}
	cmd := exec.Command(r.bin, args...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

type Client struct {
	runner       Runner
	captureLines int
}

func NewClient(cfg *config.TmuxConfig) *Client {
	return &Client{
		runner:       &execRunner{bin: cfg.Bin, socket: cfg.Socket},
		captureLines: cfg.CaptureLines,
	}
}

// NewClientWithRunner builds a client on a custom runner, used by tests.
func NewClientWithRunner(runner Runner, captureLines int) *Client {
	return &Client{runner: runner, captureLines: captureLines}
}

func target(session, window string) string {
	return session + ":" + window
}

// run executes a tmux command and normalizes its failure modes. Missing
// sessions/windows and a missing server all map to ErrTargetNotFound.
func (c *Client) run(args ...string) (string, error) {
	output, err := c.runner.Run(args...)
	if err == nil {
		return output, nil
	}
	lower := strings.ToLower(strings.TrimSpace(output))
	switch {
	case strings.Contains(lower, "can't find session"),
		strings.Contains(lower, "can't find window"),
		strings.Contains(lower, "session not found"),
		strings.Contains(lower, "window not found"),
		strings.Contains(lower, "no server running"):
		return output, fmt.Errorf("%w: %s", ErrTargetNotFound, strings.TrimSpace(output))
	}
	if lower != "" {
		return output, fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(output))
	}
	return output, fmt.Errorf("tmux %s: %w", args[0], err)
}

// SessionExists checks whether a session is live on the server.
func (c *Client) SessionExists(name string) bool {
	_, err := c.runner.Run("has-session", "-t", name)
	return err == nil
}

// CreateSession creates a detached session with a named initial window
// and binds the given environment into the session scope.
func (c *Client) CreateSession(session, window, startDir string, env map[string]string) error {
	if c.SessionExists(session) {
		return fmt.Errorf("tmux session %q already exists", session)
	}
	args := []string{"new-session", "-d", "-s", session, "-n", window}
	if startDir != "" {
		args = append(args, "-c", startDir)
	}
	if _, err := c.run(args...); err != nil {
		return fmt.Errorf("failed to create session %q: %w", session, err)
	}
	c.applyEnvironment(session, env)
	return nil
}

// CreateWindow spawns a named window inside an existing session.
func (c *Client) CreateWindow(session, window, startDir string, env map[string]string) error {
	c.applyEnvironment(session, env)
	args := []string{"new-window", "-d", "-t", session, "-n", window}
	if startDir != "" {
		args = append(args, "-c", startDir)
	}
	if _, err := c.run(args...); err != nil {
		return fmt.Errorf("failed to create window %q in %q: %w", window, session, err)
	}
	return nil
}

// KillSession terminates a session. Killing an already-gone session is
// not an error here; callers treat teardown as idempotent.
func (c *Client) KillSession(session string) error {
	_, err := c.run("kill-session", "-t", session)
	return err
}

// KillWindow terminates one window inside a session.
func (c *Client) KillWindow(session, window string) error {
	_, err := c.run("kill-window", "-t", target(session, window))
	return err
}

// SendKeys writes text literally into the window followed by a confirm
// keystroke, mimicking an operator typing a line and pressing Enter.
func (c *Client) SendKeys(session, window, text string) error {
	t := target(session, window)
	if text != "" {
		if _, err := c.run("send-keys", "-t", t, "-l", "--", text); err != nil {
			return err
		}
	}
	_, err := c.run("send-keys", "-t", t, "Enter")
	return err
}

// SendRawKeys sends key names (e.g. "C-c", "Escape") without the literal flag.
func (c *Client) SendRawKeys(session, window string, keys ...string) error {
	args := append([]string{"send-keys", "-t", target(session, window)}, keys...)
	_, err := c.run(args...)
	return err
}

// CapturePane returns the window's visible buffer plus scrollback, up to
// the configured history depth.
func (c *Client) CapturePane(session, window string) (string, error) {
	args := []string{
		"capture-pane", "-p", "-t", target(session, window),
		"-S", fmt.Sprintf("-%d", c.captureLines),
	}
	output, err := c.run(args...)
	if err != nil {
		return "", err
	}
	return output, nil
}

// PipePane appends the window's output to an external command, typically
// a shell redirect into a per-terminal log file.
func (c *Client) PipePane(session, window, command string) error {
	_, err := c.run("pipe-pane", "-o", "-t", target(session, window), command)
	return err
}

// applyEnvironment sets session-scoped environment variables so processes
// spawned in new windows can self-identify. Set failures only degrade
// self-identification and are ignored.
func (c *Client) applyEnvironment(session string, env map[string]string) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = c.run("set-environment", "-t", session, k, env[k])
	}
}

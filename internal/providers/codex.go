package providers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/profile"
)

// Pattern tables for the Codex CLI, evaluated top-down, first match wins.
var (
	codexReadyPatterns = compilePatterns(
		`100% context left`,
		`Implement \{feature\}`,
		`/model to change`,
		`Type \? for shortcuts`,
		`To get started, describe a task`,
	)
	codexBusyPatterns = compilePatterns(
		`Thinking…`,
		`Running command`,
		`Applying diff`,
		`Executing`,
	)
	codexErrorPatterns = compilePatterns(
		`failed to initialize rollout recorder`,
		`rollout recorder: (?:operation not permitted|permission denied)`,
		`agent loop died`,
		`fatal error`,
		`panic`,
		`Failed to create session`,
	)
	codexPromptRe = regexp.MustCompile(`^(?:codex>|›|>>>|\$)\s*$`)
)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return compiled
}

type codexProvider struct {
	base
	prof *profile.Profile
}

func newCodexProvider(terminalID, session, window, profileName string, driver Driver, opts Options, profiles *profile.Loader) *codexProvider {
	p := &codexProvider{
		base: base{
			terminalID:  terminalID,
			session:     session,
			window:      window,
			profileName: profileName,
			driver:      driver,
			opts:        opts,
			status:      model.StatusReady,
		},
	}
	if profileName != "" {
		prof, err := profiles.Load(profileName)
		if err != nil {
			log.Printf("codex: unable to load agent profile %q: %v", profileName, err)
		} else {
			p.prof = prof
		}
	}
	return p
}

func (p *codexProvider) profileVar(key string) string {
	if p.prof == nil {
		return ""
	}
	return p.prof.Variables[key]
}

// buildEnvPrefix gives Codex a writable HOME/TMP under the provider
// state root and disables its rollout recorder.
func (p *codexProvider) buildEnvPrefix() ([]string, error) {
	base := filepath.Join(p.opts.StateRoot, p.terminalID)
	for _, sub := range []string{"tmp", "state", "cache", "rollouts"} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create codex state dir: %w", err)
		}
	}

	env := map[string]string{
		"HOME":                   filepath.Dir(p.opts.StateRoot),
		"TMPDIR":                 filepath.Join(base, "tmp"),
		"XDG_STATE_HOME":         filepath.Join(base, "state"),
		"XDG_CACHE_HOME":         filepath.Join(base, "cache"),
		"CODEX_DISABLE_RECORDER": "1",
		"CODEX_ROLLOUT_DIR":      filepath.Join(base, "rollouts"),
	}
	for _, key := range []string{"HOME", "TMPDIR", "XDG_STATE_HOME", "XDG_CACHE_HOME", "CODEX_DISABLE_RECORDER", "CODEX_ROLLOUT_DIR"} {
		if v := p.profileVar(key); v != "" {
			env[key] = v
		}
	}
	if extra := p.profileVar("codex_env"); extra != "" {
		for _, pair := range strings.Fields(extra) {
			if key, value, ok := strings.Cut(pair, "="); ok {
				env[key] = value
			}
		}
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	prefix := []string{"env"}
	for _, k := range keys {
		prefix = append(prefix, k+"="+env[k])
	}
	return prefix, nil
}

func (p *codexProvider) buildCommand() (string, error) {
	cmd := []string{p.opts.Bin, "--full-auto", "--sandbox", "workspace-write", "--search"}

	if p.prof != nil {
		if p.prof.Model != "" {
			cmd = append(cmd, "--model", p.prof.Model)
		}
		if extra := p.profileVar("codex_args"); extra != "" {
			cmd = append(cmd, strings.Fields(extra)...)
		}
	}

	prefix, err := p.buildEnvPrefix()
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(prefix)+len(cmd))
	for _, part := range append(prefix, cmd...) {
		parts = append(parts, shellQuote(part))
	}
	return strings.Join(parts, " "), nil
}

func (p *codexProvider) Initialize(ctx context.Context) error {
	if err := ensureBinary(KindCodex, p.opts.Bin); err != nil {
		return err
	}
	command, err := p.buildCommand()
	if err != nil {
		return &InitError{Kind: KindCodex, Diagnostic: err.Error()}
	}

	// Nudge the shell first so the banner renders reliably.
	if err := p.driver.SendKeys(p.session, p.window, ""); err != nil {
		return &InitError{Kind: KindCodex, Diagnostic: err.Error()}
	}
	time.Sleep(200 * time.Millisecond)

	if err := p.driver.SendKeys(p.session, p.window, command); err != nil {
		return &InitError{Kind: KindCodex, Diagnostic: err.Error()}
	}

	if err := waitForReady(ctx, p.opts.InitTimeout, p.opts.PollInterval, p.Status); err != nil {
		if diag := p.startupDiagnostic(); diag != "" {
			return &InitError{Kind: KindCodex, Diagnostic: diag}
		}
		return &InitError{Kind: KindCodex, Timeout: true}
	}

	p.setStatus(model.StatusReady)
	return nil
}

// startupDiagnostic returns the matched fatal marker text, if any.
func (p *codexProvider) startupDiagnostic() string {
	history, err := p.driver.CapturePane(p.session, p.window)
	if err != nil {
		return ""
	}
	for _, re := range codexErrorPatterns {
		if m := re.FindString(history); m != "" {
			return m
		}
	}
	return ""
}

func (p *codexProvider) SendInput(text string) error {
	return p.sendInput(text)
}

func (p *codexProvider) Status() (model.TerminalStatus, error) {
	history, err := p.driver.CapturePane(p.session, p.window)
	if err != nil {
		return model.StatusRunning, err
	}
	status := classifyCodex(history)
	p.setStatus(status)
	return status, nil
}

func classifyCodex(history string) model.TerminalStatus {
	if strings.TrimSpace(history) == "" {
		return model.StatusRunning
	}

	for _, re := range codexErrorPatterns {
		if re.MatchString(history) {
			return model.StatusError
		}
	}

	lines := nonEmptyLines(history)
	if len(lines) > 0 && codexPromptRe.MatchString(lines[len(lines)-1]) {
		return model.StatusReady
	}

	for _, re := range codexBusyPatterns {
		if re.MatchString(history) {
			return model.StatusRunning
		}
	}
	for _, re := range codexReadyPatterns {
		if re.MatchString(history) {
			return model.StatusReady
		}
	}
	return model.StatusRunning
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r", ""), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, " \t"))
		}
	}
	return lines
}

// ExtractLastMessage walks paragraph blocks from the bottom, skipping
// prompts and banner chrome, and returns the first real answer block.
func (p *codexProvider) ExtractLastMessage(history string) (string, error) {
	sanitized := strings.ReplaceAll(history, "\r", "")
	blocks := regexp.MustCompile(`\n{2,}`).Split(sanitized, -1)

	for i := len(blocks) - 1; i >= 0; i-- {
		lines := nonEmptyLines(blocks[i])
		if len(lines) == 0 {
			continue
		}
		for j := range lines {
			lines[j] = strings.TrimSpace(lines[j])
		}
		text := strings.Join(lines, "\n")
		lower := strings.ToLower(text)

		if codexPromptRe.MatchString(lines[len(lines)-1]) {
			continue
		}
		if matchesAny(codexReadyPatterns, text) {
			continue
		}
		if strings.Contains(lower, "implement {feature") ||
			strings.Contains(lower, "100% context left") ||
			strings.Contains(lower, "to get started") ||
			strings.Contains(lower, "/model to change") {
			continue
		}
		return text, nil
	}

	return "", fmt.Errorf("%s: %w", KindCodex, ErrNoResponse)
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// DetectInteractivePrompt is unsupported for Codex; its approval dialogs
// are handled by the CLI's own full-auto mode.
func (p *codexProvider) DetectInteractivePrompt() string {
	return ""
}

func (p *codexProvider) Cleanup() {
	if err := p.driver.SendKeys(p.session, p.window, "/quit"); err != nil {
		log.Printf("codex: skipping quit command for %s/%s: %v", p.session, p.window, err)
	}
	p.setStatus(model.StatusCompleted)
}

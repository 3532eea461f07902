package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/profile"
)

// UI markers of the Claude Code CLI. The ⏺ glyph prefixes a finished
// answer block; the spinner banner carries "esc to interrupt" while the
// agent is working; ❯ against a numbered list marks a choice dialog.
var (
	ansiRe         = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	claudeAnswerRe = regexp.MustCompile(`⏺(?:\x1b\[[0-9;]*m)*\s+`)
	claudeBusyRe   = regexp.MustCompile(`[✶✢✽✻·✳].*….*\(esc to interrupt.*\)`)
	claudeIdleRe   = regexp.MustCompile(`>[\s\x{00a0}]`)
	claudeChoiceRe = regexp.MustCompile(`❯.*\d+\.`)
	claudeOptionRe = regexp.MustCompile(`^\s*(?:❯\s*)?\d+\.\s`)
	answerEndRe    = regexp.MustCompile(`^>\s`)
)

type claudeProvider struct {
	base
	profiles    *profile.Loader
	initialized bool

	promptMu     sync.Mutex
	lastPromptFP string
}

func newClaudeProvider(terminalID, session, window, profileName string, driver Driver, opts Options, profiles *profile.Loader) *claudeProvider {
	return &claudeProvider{
		base: base{
			terminalID:  terminalID,
			session:     session,
			window:      window,
			profileName: profileName,
			driver:      driver,
			opts:        opts,
			status:      model.StatusReady,
		},
		profiles: profiles,
	}
}

func (p *claudeProvider) buildCommand() (string, error) {
	parts := []string{p.opts.Bin}

	if p.profileName != "" {
		prof, err := p.profiles.Load(p.profileName)
		if err != nil {
			return "", &InitError{Kind: KindClaudeCode, Diagnostic: err.Error()}
		}
		if prompt := prof.SystemPrompt(); prompt != "" {
			parts = append(parts, "--append-system-prompt", shellQuote(prompt))
		}
		if len(prof.MCPServers) > 0 {
			mcp, err := json.Marshal(map[string]any{"mcpServers": prof.MCPServers})
			if err != nil {
				return "", &InitError{Kind: KindClaudeCode, Diagnostic: err.Error()}
			}
			parts = append(parts, "--mcp-config", shellQuote(string(mcp)))
		}
	}

	return strings.Join(parts, " "), nil
}

func (p *claudeProvider) Initialize(ctx context.Context) error {
	if err := ensureBinary(KindClaudeCode, p.opts.Bin); err != nil {
		return err
	}
	command, err := p.buildCommand()
	if err != nil {
		return err
	}
	if err := p.driver.SendKeys(p.session, p.window, command); err != nil {
		return &InitError{Kind: KindClaudeCode, Diagnostic: err.Error()}
	}

	if err := waitForReady(ctx, p.opts.InitTimeout, p.opts.PollInterval, p.Status); err != nil {
		return &InitError{Kind: KindClaudeCode, Timeout: true}
	}

	p.initialized = true
	p.setStatus(model.StatusReady)
	return nil
}

func (p *claudeProvider) SendInput(text string) error {
	return p.sendInput(text)
}

func (p *claudeProvider) Status() (model.TerminalStatus, error) {
	output, err := p.driver.CapturePane(p.session, p.window)
	if err != nil {
		return model.StatusRunning, err
	}
	status := classifyClaude(output)
	p.setStatus(status)
	return status, nil
}

// classifyClaude walks the marker checks in priority order; anything
// unmatched counts as busy, never idle.
func classifyClaude(output string) model.TerminalStatus {
	if strings.TrimSpace(output) == "" {
		return model.StatusRunning
	}
	if claudeBusyRe.MatchString(output) {
		return model.StatusRunning
	}
	if claudeChoiceRe.MatchString(output) {
		return model.StatusRunning
	}
	if claudeAnswerRe.MatchString(output) && claudeIdleRe.MatchString(output) {
		return model.StatusCompleted
	}
	if claudeIdleRe.MatchString(output) {
		return model.StatusReady
	}
	return model.StatusRunning
}

func (p *claudeProvider) ExtractLastMessage(history string) (string, error) {
	matches := claudeAnswerRe.FindAllStringIndex(history, -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("%s: %w", KindClaudeCode, ErrNoResponse)
	}

	remaining := history[matches[len(matches)-1][1]:]
	var lines []string
	for _, line := range strings.Split(remaining, "\n") {
		if answerEndRe.MatchString(line) || strings.Contains(line, "────────") {
			break
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("%s: answer block empty after marker: %w", KindClaudeCode, ErrNoResponse)
	}

	answer := ansiRe.ReplaceAllString(strings.Join(lines, "\n"), "")
	return strings.TrimSpace(answer), nil
}

func (p *claudeProvider) DetectInteractivePrompt() string {
	output, err := p.driver.CapturePane(p.session, p.window)
	if err != nil {
		return ""
	}
	block := claudePromptBlock(output)
	if block == "" {
		return ""
	}

	fp := fingerprint(block)
	p.promptMu.Lock()
	defer p.promptMu.Unlock()
	if fp == p.lastPromptFP {
		return ""
	}
	p.lastPromptFP = fp
	return block
}

// claudePromptBlock extracts the choice dialog: the numbered options and
// the question line directly above them.
func claudePromptBlock(output string) string {
	if !claudeChoiceRe.MatchString(output) {
		return ""
	}

	lines := strings.Split(ansiRe.ReplaceAllString(output, ""), "\n")
	first, last := -1, -1
	for i, line := range lines {
		if claudeOptionRe.MatchString(line) {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	if first == -1 {
		return ""
	}
	// Include the question preceding the options.
	for i := first - 1; i >= 0 && first-i <= 3; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			break
		}
		first = i
	}

	var block []string
	for _, line := range lines[first : last+1] {
		if trimmed := strings.TrimRight(line, " \t"); strings.TrimSpace(trimmed) != "" {
			block = append(block, strings.TrimSpace(trimmed))
		}
	}
	return strings.Join(block, "\n")
}

func (p *claudeProvider) Cleanup() {
	if p.initialized {
		if err := p.driver.SendKeys(p.session, p.window, "/exit"); err != nil {
			log.Printf("claude_code: skipping exit command for %s/%s: %v", p.session, p.window, err)
		}
	}
	p.setStatus(model.StatusCompleted)
}

func fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// shellQuote single-quotes a string for use inside a shell command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

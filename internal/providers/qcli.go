package providers

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/agent-conductor/conductord/internal/model"
)

var qcliIdleRe = regexp.MustCompile(`(?m)^[>»]\s*$`)

// qcliProvider manages the Amazon Q CLI. It carries the base heuristics
// only: a shell-style idle prompt and no interactive-prompt support.
type qcliProvider struct {
	base
}

func newQCLIProvider(terminalID, session, window, profileName string, driver Driver, opts Options) *qcliProvider {
	return &qcliProvider{
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
}

func (p *qcliProvider) startupCommand() string {
	if p.profileName != "" {
		return fmt.Sprintf("%s chat --agent-profile %s", p.opts.Bin, shellQuote(p.profileName))
	}
	return p.opts.Bin + " chat"
}

func (p *qcliProvider) Initialize(ctx context.Context) error {
	if err := ensureBinary(KindQCLI, p.opts.Bin); err != nil {
		return err
	}
	if err := p.driver.SendKeys(p.session, p.window, p.startupCommand()); err != nil {
		return &InitError{Kind: KindQCLI, Diagnostic: err.Error()}
	}
	// During startup the idle prompt always means ready, regardless of
	// the transition bookkeeping Status applies afterwards.
	startupStatus := func() (model.TerminalStatus, error) {
		output, err := p.driver.CapturePane(p.session, p.window)
		if err != nil {
			return model.StatusRunning, err
		}
		if qcliIdleRe.MatchString(output) {
			return model.StatusReady, nil
		}
		return model.StatusRunning, nil
	}
	if err := waitForReady(ctx, p.opts.InitTimeout, p.opts.PollInterval, startupStatus); err != nil {
		return &InitError{Kind: KindQCLI, Timeout: true}
	}
	p.setStatus(model.StatusReady)
	return nil
}

func (p *qcliProvider) SendInput(text string) error {
	return p.sendInput(text)
}

func (p *qcliProvider) Status() (model.TerminalStatus, error) {
	output, err := p.driver.CapturePane(p.session, p.window)
	if err != nil {
		return model.StatusRunning, err
	}

	status := model.StatusRunning
	if qcliIdleRe.MatchString(output) {
		if p.lastStatus() == model.StatusRunning {
			// An idle prompt after input means the answer finished.
			status = model.StatusCompleted
		} else {
			status = model.StatusReady
		}
	}
	p.setStatus(status)
	return status, nil
}

// ExtractLastMessage returns the last non-empty block of the history,
// the base heuristic for providers without an answer marker.
func (p *qcliProvider) ExtractLastMessage(history string) (string, error) {
	lines := nonEmptyLines(history)
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if qcliIdleRe.MatchString(line) {
			continue
		}
		return line, nil
	}
	return "", fmt.Errorf("%s: %w", KindQCLI, ErrNoResponse)
}

func (p *qcliProvider) DetectInteractivePrompt() string {
	return ""
}

func (p *qcliProvider) Cleanup() {
	if err := p.driver.SendKeys(p.session, p.window, "/quit"); err != nil {
		log.Printf("q_cli: skipping quit command for %s/%s: %v", p.session, p.window, err)
	}
	p.setStatus(model.StatusCompleted)
}

package providers

import "sync"

// fakeDriver scripts pane content and records keystrokes.
type fakeDriver struct {
	mu       sync.Mutex
	pane     string
	panes    []string
	sent     []string
	captures int
	sendErr  error
	capErr   error
}

func (d *fakeDriver) SendKeys(session, window, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, text)
	return nil
}

func (d *fakeDriver) CapturePane(session, window string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capErr != nil {
		return "", d.capErr
	}
	d.captures++
	if len(d.panes) > 0 {
		out := d.panes[0]
		if len(d.panes) > 1 {
			d.panes = d.panes[1:]
		}
		return out, nil
	}
	return d.pane, nil
}

func (d *fakeDriver) setPane(text string) {
	d.mu.Lock()
	d.pane = text
	d.mu.Unlock()
}

func (d *fakeDriver) sentKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func testClaude(d Driver, opts Options) *claudeProvider {
	return newClaudeProvider("t-1", "conductor-abc", "worker-default", "", d, opts, nil)
}

func testCodex(d Driver, opts Options) *codexProvider {
	return newCodexProvider("t-1", "conductor-abc", "worker-default", "", d, opts, nil)
}

func testQCLI(d Driver, opts Options) *qcliProvider {
	return newQCLIProvider("t-1", "conductor-abc", "worker-default", "", d, opts)
}

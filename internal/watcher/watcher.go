// Package watcher escalates interactive agent prompts to the session
// supervisor's inbox.
package watcher

import (
	"fmt"
	"log"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/providers"
	"github.com/agent-conductor/conductord/internal/store"
	"github.com/agent-conductor/conductord/internal/terminal"
)

// Providers resolves live provider instances.
type Providers interface {
	Get(terminalID string) (providers.Provider, error)
}

// Notifier queues an inbox message.
type Notifier interface {
	Queue(sender, receiver, message string) (*model.InboxMessage, error)
}

type Watcher struct {
	store     *store.Store
	providers Providers
	notifier  Notifier
}

func New(st *store.Store, pr Providers, notifier Notifier) *Watcher {
	return &Watcher{store: st, providers: pr, notifier: notifier}
}

// Scan walks every session once. Worker terminals blocked on an
// interactive prompt get the prompt forwarded to the session's
// supervisor; sessions without a supervisor are skipped.
func (w *Watcher) Scan() (forwarded int, err error) {
	sessions, err := w.store.ListSessionNames()
	if err != nil {
		return 0, err
	}

	for _, session := range sessions {
		terminals, err := w.store.ListTerminals(session)
		if err != nil {
			log.Printf("watcher: listing %s: %v", session, err)
			continue
		}

		var supervisor *model.Terminal
		for i := range terminals {
			if terminal.IsSupervisorWindow(terminals[i].WindowName) {
				supervisor = &terminals[i]
				break
			}
		}
		if supervisor == nil {
			continue
		}

		for i := range terminals {
			t := &terminals[i]
			if t.ID == supervisor.ID {
				continue
			}
			p, err := w.providers.Get(t.ID)
			if err != nil {
				continue
			}
			prompt := p.DetectInteractivePrompt()
			if prompt == "" {
				continue
			}
			msg := fmt.Sprintf(
				"[PROMPT] %s is awaiting input:\n%s\nRespond via: conductorctl send %s --message \"<choice>\"",
				t.WindowName, prompt, t.ID,
			)
			if _, err := w.notifier.Queue(t.ID, supervisor.ID, msg); err != nil {
				log.Printf("watcher: escalation for %s: %v", t.ID, err)
				continue
			}
			forwarded++
		}
	}
	return forwarded, nil
}

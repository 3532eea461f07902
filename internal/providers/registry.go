package providers

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agent-conductor/conductord/internal/config"
	"github.com/agent-conductor/conductord/internal/profile"
)

type factory func(terminalID, session, window, profileName string, driver Driver, opts Options) Provider

// Registry is the provider factory plus the cache of live instances
// keyed by terminal id. Instances are process-local: a daemon restart
// starts with an empty cache even though terminal records survive.
type Registry struct {
	driver Driver

	mu        sync.Mutex
	factories map[string]factory
	options   map[string]Options
	live      map[string]Provider
}

func NewRegistry(driver Driver, profiles *profile.Loader, cfg *config.ProvidersConfig) *Registry {
	r := &Registry{
		driver:    driver,
		factories: make(map[string]factory),
		options:   make(map[string]Options),
		live:      make(map[string]Provider),
	}

	r.register(KindClaudeCode, providerOptions(&cfg.Claude, ""), func(terminalID, session, window, profileName string, driver Driver, opts Options) Provider {
		return newClaudeProvider(terminalID, session, window, profileName, driver, opts, profiles)
	})
	r.register(KindCodex, providerOptions(&cfg.Codex.ProviderConfig, cfg.Codex.StateRoot), func(terminalID, session, window, profileName string, driver Driver, opts Options) Provider {
		return newCodexProvider(terminalID, session, window, profileName, driver, opts, profiles)
	})
	r.register(KindQCLI, providerOptions(&cfg.QCLI, ""), func(terminalID, session, window, profileName string, driver Driver, opts Options) Provider {
		return newQCLIProvider(terminalID, session, window, profileName, driver, opts)
	})

	return r
}

func providerOptions(cfg *config.ProviderConfig, stateRoot string) Options {
	return Options{
		Bin:          cfg.Bin,
		InitTimeout:  time.Duration(cfg.InitTimeoutMs) * time.Millisecond,
		PollInterval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		StateRoot:    stateRoot,
	}
}

func (r *Registry) register(kind string, opts Options, f factory) {
	r.factories[kind] = f
	r.options[kind] = opts
}

// Kinds returns the registered provider kinds.
func (r *Registry) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}

// Create constructs and initializes a provider for the terminal and
// caches it. Initialization failures propagate; nothing is cached then.
func (r *Registry) Create(ctx context.Context, kind, terminalID, session, window, profileName string) (Provider, error) {
	r.mu.Lock()
	f, ok := r.factories[kind]
	opts := r.options[kind]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}

	p := f(terminalID, session, window, profileName, r.driver, opts)

	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.live[terminalID] = p
	r.mu.Unlock()
	return p, nil
}

// Get returns the live instance for a terminal.
func (r *Registry) Get(terminalID string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.live[terminalID]
	if !ok {
		return nil, fmt.Errorf("%w: terminal %q", ErrProviderNotLoaded, terminalID)
	}
	return p, nil
}

// Cleanup removes and tears down the cached instance. Teardown problems
// are logged, never surfaced: they must not block terminal deletion.
func (r *Registry) Cleanup(terminalID string) {
	r.mu.Lock()
	p, ok := r.live[terminalID]
	delete(r.live, terminalID)
	r.mu.Unlock()

	if !ok {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("provider cleanup panicked for %s: %v", terminalID, rec)
		}
	}()
	p.Cleanup()
}

// Shutdown tears down every live instance, used at daemon stop.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Cleanup(id)
	}
}

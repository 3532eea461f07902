// Package flow is the registry of named flow definitions. It persists
// and lists them; running flows is an external concern.
package flow

import (
	"errors"
	"fmt"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/store"
)

// ErrFlowNotFound reports an unknown flow name.
var ErrFlowNotFound = errors.New("flow not found")

type Registry struct {
	store *store.Store
}

func NewRegistry(st *store.Store) *Registry {
	return &Registry{store: st}
}

// Register inserts or replaces a flow definition by name.
func (r *Registry) Register(f *model.Flow) error {
	if f.Name == "" {
		return fmt.Errorf("flow needs a name")
	}
	return r.store.UpsertFlow(f)
}

func (r *Registry) Get(name string) (*model.Flow, error) {
	f, err := r.store.GetFlow(name)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrFlowNotFound, name)
	}
	return f, nil
}

func (r *Registry) List() ([]model.Flow, error) {
	return r.store.ListFlows()
}

// SetEnabled toggles a flow; unknown names are rejected.
func (r *Registry) SetEnabled(name string, enabled bool) (*model.Flow, error) {
	if _, err := r.Get(name); err != nil {
		return nil, err
	}
	if err := r.store.SetFlowEnabled(name, enabled); err != nil {
		return nil, err
	}
	return r.Get(name)
}

func (r *Registry) Delete(name string) error {
	return r.store.DeleteFlow(name)
}

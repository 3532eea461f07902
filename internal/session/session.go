// Package session aggregates terminals into their tmux sessions.
package session

import (
	"fmt"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/store"
)

// Terminals is the slice of the terminal manager the service needs.
type Terminals interface {
	Delete(id string) error
}

type Service struct {
	store     *store.Store
	terminals Terminals
}

func NewService(st *store.Store, terminals Terminals) *Service {
	return &Service{store: st, terminals: terminals}
}

// List groups every persisted terminal under its session name.
func (s *Service) List() ([]model.Session, error) {
	names, err := s.store.ListSessionNames()
	if err != nil {
		return nil, err
	}

	sessions := make([]model.Session, 0, len(names))
	for _, name := range names {
		terminals, err := s.store.ListTerminals(name)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, model.Session{Name: name, Terminals: terminals})
	}
	return sessions, nil
}

// Get returns one session with its terminals, or nil when no terminal
// references the name.
func (s *Service) Get(name string) (*model.Session, error) {
	terminals, err := s.store.ListTerminals(name)
	if err != nil {
		return nil, err
	}
	if len(terminals) == 0 {
		return nil, nil
	}
	return &model.Session{Name: name, Terminals: terminals}, nil
}

// Delete removes every terminal of the session. The terminal manager
// kills the underlying tmux session when the last one goes.
func (s *Service) Delete(name string) error {
	terminals, err := s.store.ListTerminals(name)
	if err != nil {
		return err
	}
	for _, t := range terminals {
		if err := s.terminals.Delete(t.ID); err != nil {
			return fmt.Errorf("failed to delete terminal %s: %w", t.ID, err)
		}
	}
	return nil
}

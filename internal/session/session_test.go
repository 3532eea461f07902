package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/store"
)

type fakeTerminals struct {
	st      *store.Store
	deleted []string
}

func (f *fakeTerminals) Delete(id string) error {
	f.deleted = append(f.deleted, id)
	return f.st.DeleteTerminal(id)
}

func seedTerminal(t *testing.T, st *store.Store, id, session string) {
	t.Helper()
	require.NoError(t, st.CreateTerminal(&model.Terminal{
		ID:          id,
		SessionName: session,
		WindowName:  "worker-" + id,
		Provider:    "q_cli",
		Status:      model.StatusReady,
		CreatedAt:   time.Now(),
	}))
}

func newTestService(t *testing.T) (*Service, *store.Store, *fakeTerminals) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ft := &fakeTerminals{st: st}
	return NewService(st, ft), st, ft
}

func TestListGroupsBySession(t *testing.T) {
	s, st, _ := newTestService(t)

	seedTerminal(t, st, "a1", "conductor-a")
	seedTerminal(t, st, "a2", "conductor-a")
	seedTerminal(t, st, "b1", "conductor-b")

	sessions, err := s.List()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "conductor-a", sessions[0].Name)
	assert.Len(t, sessions[0].Terminals, 2)
	assert.Equal(t, "conductor-b", sessions[1].Name)
	assert.Len(t, sessions[1].Terminals, 1)
}

func TestGetUnknownSession(t *testing.T) {
	s, _, _ := newTestService(t)
	sess, err := s.Get("ghost")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestDeleteRemovesEveryTerminal(t *testing.T) {
	s, _, ft := newTestService(t)

	seedTerminal(t, ft.st, "a1", "conductor-a")
	seedTerminal(t, ft.st, "a2", "conductor-a")
	seedTerminal(t, ft.st, "b1", "conductor-b")

	require.NoError(t, s.Delete("conductor-a"))
	assert.ElementsMatch(t, []string{"a1", "a2"}, ft.deleted)

	sessions, err := s.List()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "conductor-b", sessions[0].Name)
}

package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/providers"
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

func seedTerminal(t *testing.T, st *store.Store, id string, status model.TerminalStatus, age time.Duration) {
	t.Helper()
	require.NoError(t, st.CreateTerminal(&model.Terminal{
		ID:          id,
		SessionName: "conductor-a",
		WindowName:  "worker-" + id,
		Provider:    providers.KindQCLI,
		Status:      status,
		CreatedAt:   time.Now().Add(-age),
	}))
}

func newTestSweeper(t *testing.T, retention time.Duration) (*Sweeper, *store.Store, *fakeTerminals, string) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logDir := t.TempDir()
	ft := &fakeTerminals{st: st}
	return NewSweeper(st, ft, logDir, retention), st, ft, logDir
}

func TestPurgeTerminalsHonorsRetention(t *testing.T) {
	s, _, ft, _ := newTestSweeper(t, 7*24*time.Hour)

	seedTerminal(t, s.store, "old-done", model.StatusCompleted, 8*24*time.Hour)
	seedTerminal(t, s.store, "old-err", model.StatusError, 9*24*time.Hour)
	seedTerminal(t, s.store, "fresh-done", model.StatusCompleted, time.Hour)
	seedTerminal(t, s.store, "old-busy", model.StatusRunning, 30*24*time.Hour)

	purged, err := s.PurgeTerminals(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, purged)
	assert.ElementsMatch(t, []string{"old-done", "old-err"}, ft.deleted)
}

func TestPurgeOrphanLogs(t *testing.T) {
	s, st, _, logDir := newTestSweeper(t, time.Hour)

	seedTerminal(t, st, "alive", model.StatusRunning, time.Minute)
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "alive.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "ghost.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "notes.txt"), []byte("x"), 0o644))

	removed, err := s.PurgeOrphanLogs()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.FileExists(t, filepath.Join(logDir, "alive.log"))
	assert.NoFileExists(t, filepath.Join(logDir, "ghost.log"))
	assert.FileExists(t, filepath.Join(logDir, "notes.txt"))
}

func TestPurgeOrphanLogsMissingDir(t *testing.T) {
	s, _, _, logDir := newTestSweeper(t, time.Hour)
	require.NoError(t, os.RemoveAll(logDir))

	removed, err := s.PurgeOrphanLogs()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

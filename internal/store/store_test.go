package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-conductor/conductord/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTerminal(t *testing.T, s *Store, id, session string, status model.TerminalStatus, createdAt time.Time) {
	t.Helper()
	require.NoError(t, s.CreateTerminal(&model.Terminal{
		ID:          id,
		SessionName: session,
		WindowName:  "worker-" + id,
		Provider:    "claude_code",
		Status:      status,
		CreatedAt:   createdAt,
	}))
}

func TestTerminalRoundTrip(t *testing.T) {
	s := openTestStore(t)
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateTerminal(&model.Terminal{
		ID:           "t1",
		SessionName:  "conductor-a",
		WindowName:   "supervisor-lead",
		Provider:     "claude_code",
		AgentProfile: "reviewer",
		Status:       model.StatusReady,
		CreatedAt:    created,
	}))

	got, err := s.GetTerminal("t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "supervisor-lead", got.WindowName)
	assert.Equal(t, "reviewer", got.AgentProfile)
	assert.True(t, got.CreatedAt.Equal(created))

	missing, err := s.GetTerminal("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListTerminalsOrderedByCreation(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()

	seedTerminal(t, s, "b", "conductor-a", model.StatusReady, base.Add(time.Second))
	seedTerminal(t, s, "a", "conductor-a", model.StatusReady, base)
	seedTerminal(t, s, "other", "conductor-z", model.StatusReady, base)

	terminals, err := s.ListTerminals("conductor-a")
	require.NoError(t, err)
	require.Len(t, terminals, 2)
	assert.Equal(t, "a", terminals[0].ID)
	assert.Equal(t, "b", terminals[1].ID)

	names, err := s.ListSessionNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"conductor-a", "conductor-z"}, names)

	count, err := s.CountTerminalsInSession("conductor-a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListTerminalsSubSecondOrder(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// 120ms would serialize shorter than 125ms if trailing zeros were
	// trimmed, and the string comparison in ORDER BY would invert them.
	seedTerminal(t, s, "second", "conductor-a", model.StatusReady, base.Add(125*time.Millisecond))
	seedTerminal(t, s, "first", "conductor-a", model.StatusReady, base.Add(120*time.Millisecond))

	got, err := s.ListTerminals("conductor-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].ID)
	assert.Equal(t, "second", got[1].ID)
}

func TestFormatTimeFixedWidth(t *testing.T) {
	a := formatTime(time.Date(2026, 8, 1, 10, 0, 0, 120_000_000, time.UTC))
	b := formatTime(time.Date(2026, 8, 1, 10, 0, 0, 125_000_000, time.UTC))
	assert.Len(t, a, len(b))
	assert.True(t, a < b)
}

func TestUpdateAndDeleteTerminal(t *testing.T) {
	s := openTestStore(t)
	seedTerminal(t, s, "t1", "conductor-a", model.StatusReady, time.Now())

	require.NoError(t, s.UpdateTerminalStatus("t1", model.StatusCompleted))
	got, err := s.GetTerminal("t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	require.NoError(t, s.DeleteTerminal("t1"))
	got, err = s.GetTerminal("t1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListPurgeableTerminals(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	seedTerminal(t, s, "old-done", "s", model.StatusCompleted, now.Add(-48*time.Hour))
	seedTerminal(t, s, "old-err", "s", model.StatusError, now.Add(-48*time.Hour))
	seedTerminal(t, s, "old-busy", "s", model.StatusRunning, now.Add(-48*time.Hour))
	seedTerminal(t, s, "new-done", "s", model.StatusCompleted, now)

	purgeable, err := s.ListPurgeableTerminals(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, purgeable, 2)
	assert.Equal(t, "old-done", purgeable[0].ID)
	assert.Equal(t, "old-err", purgeable[1].ID)
}

func TestInboxFIFOAndStatusGuard(t *testing.T) {
	s := openTestStore(t)

	first, err := s.CreateInboxMessage("a", "b", "first")
	require.NoError(t, err)
	_, err = s.CreateInboxMessage("a", "b", "second")
	require.NoError(t, err)

	pending, err := s.ListPendingInbox("b")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].Message)

	require.NoError(t, s.SetInboxStatus(first.ID, model.InboxDelivered))

	// A second transition attempt does not revert the status.
	require.NoError(t, s.SetInboxStatus(first.ID, model.InboxFailed))
	all, err := s.ListInbox("b")
	require.NoError(t, err)
	assert.Equal(t, model.InboxDelivered, all[0].Status)
	assert.Equal(t, model.InboxPending, all[1].Status)

	receivers, err := s.ListPendingReceivers()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, receivers)
}

func TestApprovalCAS(t *testing.T) {
	s := openTestStore(t)

	req, err := s.CreateApproval("t1", "sup", "git push", "")
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalPending, req.Status)

	decided, err := s.DecideApproval(req.ID, model.ApprovalApproved, time.Now())
	require.NoError(t, err)
	assert.True(t, decided)

	// Second decision loses the CAS.
	decided, err = s.DecideApproval(req.ID, model.ApprovalDenied, time.Now())
	require.NoError(t, err)
	assert.False(t, decided)

	got, err := s.GetApproval(req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, got.Status)
	require.NotNil(t, got.DecidedAt)

	// Unknown id also loses the CAS.
	decided, err = s.DecideApproval(9999, model.ApprovalApproved, time.Now())
	require.NoError(t, err)
	assert.False(t, decided)
}

func TestListApprovalsFilter(t *testing.T) {
	s := openTestStore(t)

	a, err := s.CreateApproval("t1", "sup", "cmd a", "")
	require.NoError(t, err)
	_, err = s.CreateApproval("t2", "sup", "cmd b", "")
	require.NoError(t, err)

	_, err = s.DecideApproval(a.ID, model.ApprovalDenied, time.Now())
	require.NoError(t, err)

	pending, err := s.ListApprovals(model.ApprovalPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "cmd b", pending[0].CommandText)

	all, err := s.ListApprovals("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFlowUpsertAndToggle(t *testing.T) {
	s := openTestStore(t)

	f := &model.Flow{Name: "nightly", FilePath: "/flows/nightly.md", Schedule: "0 2 * * *", Enabled: true}
	require.NoError(t, s.UpsertFlow(f))

	// Upsert replaces in place.
	f.Schedule = "0 3 * * *"
	require.NoError(t, s.UpsertFlow(f))

	got, err := s.GetFlow("nightly")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0 3 * * *", got.Schedule)
	assert.True(t, got.Enabled)

	require.NoError(t, s.SetFlowEnabled("nightly", false))
	got, err = s.GetFlow("nightly")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	last := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.RecordFlowRun("nightly", last, nil))
	got, err = s.GetFlow("nightly")
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	assert.True(t, got.LastRun.Equal(last))
	assert.Nil(t, got.NextRun)

	require.NoError(t, s.DeleteFlow("nightly"))
	got, err = s.GetFlow("nightly")
	require.NoError(t, err)
	assert.Nil(t, got)
}

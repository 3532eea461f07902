package inbox

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/store"
)

type fakeSender struct {
	sent    map[string][]string
	failFor map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]string), failFor: make(map[string]bool)}
}

func (f *fakeSender) SendInput(id, text string) error {
	if f.failFor[id] {
		return errors.New("terminal unreachable")
	}
	f.sent[id] = append(f.sent[id], text)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeSender, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	sender := newFakeSender()
	return NewService(st, sender), sender, st
}

func TestQueueAndList(t *testing.T) {
	s, _, _ := newTestService(t)

	m, err := s.Queue("term-a", "term-b", "review my diff")
	require.NoError(t, err)
	assert.Equal(t, model.InboxPending, m.Status)

	msgs, err := s.List("term-b")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "review my diff", msgs[0].Message)
	assert.Equal(t, "term-a", msgs[0].SenderID)
}

func TestQueueRequiresReceiver(t *testing.T) {
	s, _, _ := newTestService(t)
	_, err := s.Queue("term-a", "", "lost message")
	assert.Error(t, err)
}

func TestDeliverPendingFramesAndOrders(t *testing.T) {
	s, sender, _ := newTestService(t)

	_, err := s.Queue("term-a", "term-b", "first")
	require.NoError(t, err)
	_, err = s.Queue("term-c", "term-b", "second")
	require.NoError(t, err)

	delivered, failed, err := s.DeliverPending("term-b")
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 0, failed)

	require.Len(t, sender.sent["term-b"], 2)
	assert.Equal(t, "[INBOX:term-a] first", sender.sent["term-b"][0])
	assert.Equal(t, "[INBOX:term-c] second", sender.sent["term-b"][1])

	// A second sweep finds nothing pending.
	delivered, failed, err = s.DeliverPending("term-b")
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Zero(t, failed)
}

func TestDeliverPendingMarksFailures(t *testing.T) {
	s, sender, st := newTestService(t)
	sender.failFor["term-b"] = true

	m, err := s.Queue("term-a", "term-b", "unreachable")
	require.NoError(t, err)

	delivered, failed, err := s.DeliverPending("term-b")
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Equal(t, 1, failed)

	msgs, err := st.ListInbox("term-b")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, m.ID, msgs[0].ID)
	assert.Equal(t, model.InboxFailed, msgs[0].Status)
}

func TestDeliverAllPendingSweepsEveryReceiver(t *testing.T) {
	s, sender, _ := newTestService(t)

	_, err := s.Queue("term-a", "term-b", "to b")
	require.NoError(t, err)
	_, err = s.Queue("term-a", "term-c", "to c")
	require.NoError(t, err)

	delivered, failed, err := s.DeliverAllPending()
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Zero(t, failed)
	assert.Len(t, sender.sent["term-b"], 1)
	assert.Len(t, sender.sent["term-c"], 1)
}

func TestDeliverOneFailureDoesNotBlockOthers(t *testing.T) {
	s, sender, _ := newTestService(t)
	sender.failFor["term-b"] = true

	_, err := s.Queue("term-a", "term-b", "doomed")
	require.NoError(t, err)
	_, err = s.Queue("term-a", "term-c", "fine")
	require.NoError(t, err)

	delivered, failed, err := s.DeliverAllPending()
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, failed)
	assert.Len(t, sender.sent["term-c"], 1)
}

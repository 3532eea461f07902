// Package inbox is the durable terminal-to-terminal message queue with
// its delivery sweep.
package inbox

import (
	"fmt"
	"log"

	"github.com/agent-conductor/conductord/internal/model"
	"github.com/agent-conductor/conductord/internal/store"
)

// Sender delivers text into a terminal, normally the terminal manager.
type Sender interface {
	SendInput(id, text string) error
}

type Service struct {
	store  *store.Store
	sender Sender
}

func NewService(st *store.Store, sender Sender) *Service {
	return &Service{store: st, sender: sender}
}

// Queue persists a message for later delivery.
func (s *Service) Queue(sender, receiver, message string) (*model.InboxMessage, error) {
	if receiver == "" {
		return nil, fmt.Errorf("inbox message needs a receiver")
	}
	return s.store.CreateInboxMessage(sender, receiver, message)
}

// List returns a receiver's messages, oldest first.
func (s *Service) List(receiver string) ([]model.InboxMessage, error) {
	return s.store.ListInbox(receiver)
}

// frame prefixes the body so the receiving agent can tell queued
// messages from direct operator input.
func frame(m *model.InboxMessage) string {
	return fmt.Sprintf("[INBOX:%s] %s", m.SenderID, m.Message)
}

// DeliverPending pushes the receiver's pending messages into its
// terminal, oldest first. Each message is marked DELIVERED or FAILED
// individually; one failure never blocks the rest.
func (s *Service) DeliverPending(receiver string) (delivered, failed int, err error) {
	pending, err := s.store.ListPendingInbox(receiver)
	if err != nil {
		return 0, 0, err
	}

	for i := range pending {
		m := &pending[i]
		status := model.InboxDelivered
		if err := s.sender.SendInput(m.ReceiverID, frame(m)); err != nil {
			log.Printf("inbox: delivery of message %d to %s failed: %v", m.ID, m.ReceiverID, err)
			status = model.InboxFailed
			failed++
		} else {
			delivered++
		}
		if err := s.store.SetInboxStatus(m.ID, status); err != nil {
			log.Printf("inbox: failed to mark message %d %s: %v", m.ID, status, err)
		}
	}
	return delivered, failed, nil
}

// DeliverAllPending runs one delivery sweep over every receiver that has
// pending messages.
func (s *Service) DeliverAllPending() (delivered, failed int, err error) {
	receivers, err := s.store.ListPendingReceivers()
	if err != nil {
		return 0, 0, err
	}
	for _, r := range receivers {
		d, f, err := s.DeliverPending(r)
		if err != nil {
			log.Printf("inbox: sweep for %s: %v", r, err)
			continue
		}
		delivered += d
		failed += f
	}
	return delivered, failed, nil
}

package memory

import (
	"context"
	"sync"
)

type Notification struct {
	Subject string
	Payload interface{}
}

// Notifier keeps every notification in memory.
type Notifier struct {
	mtx  sync.Mutex
	sent []Notification
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Send(_ context.Context, subject string, payload interface{}) error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.sent = append(n.sent, Notification{Subject: subject, Payload: payload})
	return nil
}

func (n *Notifier) Sent() []Notification {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return append([]Notification(nil), n.sent...)
}

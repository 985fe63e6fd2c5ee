package notify

import (
	"context"
	"sync"

	"github.com/me/meetup/pkg/model"
)

// Recorder is an in-memory Sink. Setting Err makes every delivery fail.
type Recorder struct {
	mu  sync.Mutex
	Err error

	sent []*model.Notification
}

// Deliver records n unless Err is set.
func (r *Recorder) Deliver(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

// SetErr changes the injected delivery error.
func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}

// Sent returns every recorded notification in delivery order.
func (r *Recorder) Sent() []*model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Notification(nil), r.sent...)
}

// OfKind returns the recorded notifications of one kind.
func (r *Recorder) OfKind(kind model.NotificationKind) []*model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Reset drops all recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

package notify

import "context"

// Notifier receives envelopes produced by the poll tasks.
// Implementations must not block the caller on slow consumers.
type Notifier interface {
	Notify(ctx context.Context, env Envelope)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, env Envelope)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, env Envelope) { f(ctx, env) }

// Hub dispatches envelopes to multiple notifiers.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers.
func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Notify hands the envelope to every registered notifier, in registration order.
// Dispatch is synchronous so that envelopes from one task keep their order.
func (h *Hub) Notify(ctx context.Context, env Envelope) {
	for _, n := range h.notifiers {
		n.Notify(ctx, env)
	}
}

package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/btouchard/craftlist/internal/metrics"
	"github.com/btouchard/craftlist/internal/notify"
)

const (
	defaultPingInterval = 10 * time.Second
	defaultBufferSize   = 10

	connectedMessage = "connected"
	pingComment      = "ping"
)

// Config tunes the broadcaster.
type Config struct {
	PingInterval time.Duration
	BufferSize   int
}

// Broadcaster owns the live subscriber registry.
//
// The registry lock is held only to copy or rewrite the subscriber list; every
// send happens after it is released. Broadcast never removes a subscriber:
// removal is left to the liveness probe run by Prune.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers []*Subscriber

	pingInterval time.Duration
	bufferSize   int
	clock        clockwork.Clock
	log          *slog.Logger
}

// New creates a Broadcaster. Zero config values fall back to defaults.
func New(cfg Config, clock clockwork.Clock) *Broadcaster {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = defaultBufferSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broadcaster{
		pingInterval: cfg.PingInterval,
		bufferSize:   cfg.BufferSize,
		clock:        clock,
		log:          slog.With("component", "broadcaster"),
	}
}

// Subscribe registers a new subscriber after acknowledging it with a
// "connected" frame. It fails if that first frame cannot be queued.
func (b *Broadcaster) Subscribe() (*Subscriber, error) {
	sub := newSubscriber(b.bufferSize)
	if err := sub.Send(DataFrame([]byte(connectedMessage))); err != nil {
		return nil, fmt.Errorf("acknowledging subscriber: %w", err)
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	total := len(b.subscribers)
	b.mu.Unlock()

	metrics.SubscribersConnected.Inc()
	b.log.Debug("subscriber registered", "subscriber_id", sub.ID().String(), "total", total)
	return sub, nil
}

// Broadcast delivers env to every subscriber registered when the call starts.
// Individual send failures are logged and otherwise ignored.
func (b *Broadcaster) Broadcast(ctx context.Context, env notify.Envelope) {
	frame := DataFrame(env.Encode())
	subs := b.snapshot()

	metrics.BroadcastsTotal.WithLabelValues(string(env.Event)).Inc()

	failed := 0
	for _, sub := range subs {
		if err := sub.Send(frame); err != nil {
			failed++
			metrics.SendFailuresTotal.WithLabelValues("data").Inc()
			b.log.DebugContext(ctx, "broadcast send failed",
				"subscriber_id", sub.ID().String(),
				"event", string(env.Event),
				"error", err)
		}
	}

	b.log.DebugContext(ctx, "broadcast delivered",
		"event", string(env.Event),
		"subscribers", len(subs),
		"failed", failed)
}

// Notify implements notify.Notifier.
func (b *Broadcaster) Notify(ctx context.Context, env notify.Envelope) {
	b.Broadcast(ctx, env)
}

// Prune sends a keep-alive comment to every subscriber and removes the ones
// that cannot accept it. It returns the number of removed subscribers.
func (b *Broadcaster) Prune(ctx context.Context) int {
	frame := CommentFrame(pingComment)
	subs := b.snapshot()

	dead := make(map[*Subscriber]struct{})
	for _, sub := range subs {
		if err := sub.Send(frame); err != nil {
			metrics.SendFailuresTotal.WithLabelValues("ping").Inc()
			dead[sub] = struct{}{}
		}
	}
	if len(dead) == 0 {
		return 0
	}

	b.mu.Lock()
	alive := b.subscribers[:0]
	for _, sub := range b.subscribers {
		if _, ok := dead[sub]; !ok {
			alive = append(alive, sub)
		}
	}
	clear(b.subscribers[len(alive):])
	b.subscribers = alive
	remaining := len(alive)
	b.mu.Unlock()

	for sub := range dead {
		sub.Close()
		b.log.DebugContext(ctx, "subscriber pruned", "subscriber_id", sub.ID().String())
	}

	metrics.SubscribersConnected.Sub(float64(len(dead)))
	metrics.SubscribersPrunedTotal.Add(float64(len(dead)))
	b.log.InfoContext(ctx, "stale subscribers removed", "removed", len(dead), "remaining", remaining)
	return len(dead)
}

// Run probes subscribers every ping interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := b.clock.NewTicker(b.pingInterval)
	defer ticker.Stop()

	b.log.Info("liveness probe started", "interval", b.pingInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			b.Prune(ctx)
		}
	}
}

// Count returns the number of registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close removes and closes every subscriber. Used at process shutdown.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	metrics.SubscribersConnected.Sub(float64(len(subs)))
}

func (b *Broadcaster) snapshot() []*Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Subscriber(nil), b.subscribers...)
}

package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/btouchard/craftlist/internal/diff"
	"github.com/btouchard/craftlist/internal/metrics"
	"github.com/btouchard/craftlist/internal/notify"
	"github.com/btouchard/craftlist/internal/snapshot"
)

// FetchFunc reads one collection from the data store. On success the returned
// envelope carries the serialized collection in Data.
type FetchFunc func(ctx context.Context) (notify.Envelope, error)

// outcome labels one poll round.
type outcome string

const (
	outcomeSeeded      outcome = "seeded"
	outcomeUnchanged   outcome = "unchanged"
	outcomeChanged     outcome = "changed"
	outcomeForwarded   outcome = "forwarded"
	outcomeFetchError  outcome = "fetch_error"
	outcomeDecodeError outcome = "decode_error"
)

// Poll periodically fetches a collection of T, compares it with the cached
// snapshot and broadcasts the delta when it changed.
type Poll[T any] struct {
	id       notify.Event
	fetch    FetchFunc
	equal    func(a, b T) bool
	interval time.Duration

	cache    *snapshot.Cache
	notifier notify.Notifier
	clock    clockwork.Clock
	log      *slog.Logger
}

// ID returns the event tag that keys this task's cache slot.
func (p *Poll[T]) ID() notify.Event { return p.id }

// Run seeds the cache, then checks for changes every interval until ctx is done.
func (p *Poll[T]) Run(ctx context.Context) {
	if !p.seedUntilReady(ctx) {
		return
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.check(ctx)
		}
	}
}

// seedUntilReady retries the initial fetch every interval until it succeeds.
// It returns false if ctx ends first.
func (p *Poll[T]) seedUntilReady(ctx context.Context) bool {
	for {
		err := p.seed(ctx)
		if err == nil {
			return true
		}

		p.log.ErrorContext(ctx, "seeding snapshot failed", "error", err)
		p.notifier.Notify(ctx, notify.ErrorEnvelope(err))

		select {
		case <-ctx.Done():
			return false
		case <-p.clock.After(p.interval):
		}
	}
}

// seed stores the first fetched collection verbatim. No comparison, no broadcast.
func (p *Poll[T]) seed(ctx context.Context) error {
	env, err := p.timedFetch(ctx)
	if err != nil {
		metrics.PollRoundsTotal.WithLabelValues(string(p.id), string(outcomeFetchError)).Inc()
		return fmt.Errorf("initial fetch: %w", err)
	}
	if env.Data == nil {
		return fmt.Errorf("initial fetch returned no data")
	}

	p.cache.Set(p.id, env.Data)
	metrics.PollRoundsTotal.WithLabelValues(string(p.id), string(outcomeSeeded)).Inc()
	p.log.InfoContext(ctx, "snapshot seeded", "bytes", len(env.Data))
	return nil
}

// check runs one fetch-compare-update round.
func (p *Poll[T]) check(ctx context.Context) outcome {
	res := p.round(ctx)
	metrics.PollRoundsTotal.WithLabelValues(string(p.id), string(res)).Inc()
	return res
}

func (p *Poll[T]) round(ctx context.Context) outcome {
	env, err := p.timedFetch(ctx)
	if err != nil {
		p.log.WarnContext(ctx, "fetch failed", "error", err)
		p.notifier.Notify(ctx, notify.ErrorEnvelope(err))
		return outcomeFetchError
	}

	if env.Data == nil {
		p.notifier.Notify(ctx, env)
		return outcomeForwarded
	}

	current, err := decode[T](env.Data)
	if err != nil {
		p.log.ErrorContext(ctx, "decoding fetched collection", "error", err)
		return outcomeDecodeError
	}

	raw, ok := p.cache.Get(p.id)
	if !ok {
		p.log.ErrorContext(ctx, "snapshot missing for seeded task")
		return outcomeDecodeError
	}
	cached, err := decode[T](raw)
	if err != nil {
		p.log.ErrorContext(ctx, "decoding cached collection", "error", err)
		return outcomeDecodeError
	}

	result := diff.Compare(cached, current, p.equal)
	if !result.Changed {
		return outcomeUnchanged
	}

	delta, err := json.Marshal(result.Delta)
	if err != nil {
		p.log.ErrorContext(ctx, "encoding delta", "error", err)
		return outcomeDecodeError
	}

	p.cache.Set(p.id, env.Data)
	p.notifier.Notify(ctx, notify.NewEnvelope(env.Code, env.Message, delta, env.Event))

	p.log.DebugContext(ctx, "collection changed",
		"cached", len(cached),
		"current", len(current),
		"delta", len(result.Delta))
	return outcomeChanged
}

func (p *Poll[T]) timedFetch(ctx context.Context) (notify.Envelope, error) {
	start := p.clock.Now()
	defer func() {
		metrics.PollFetchDuration.WithLabelValues(string(p.id)).Observe(p.clock.Since(start).Seconds())
	}()
	return p.fetch(ctx)
}

func decode[T any](raw json.RawMessage) ([]T, error) {
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding collection: %w", err)
	}
	return out, nil
}

// Package feed binds the data store to the live-update pipeline: it builds
// the fetch functions polled by the task registry and the full snapshots
// replayed to new subscribers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/btouchard/craftlist/internal/notify"
	"github.com/btouchard/craftlist/internal/snapshot"
	"github.com/btouchard/craftlist/internal/store"
	"github.com/btouchard/craftlist/internal/task"
)

const okMessage = "Ok"

// Source is the subset of store.Store the feeds read from.
type Source interface {
	ListServers(ctx context.Context) ([]store.Server, error)
	ListPlayersGraph(ctx context.Context) ([]store.PlayersSample, error)
}

// Servers returns a fetch function over the joined server listing.
func Servers(src Source) task.FetchFunc {
	return collection(notify.EventServers, src.ListServers)
}

// PlayersGraph returns a fetch function over all player-count samples.
func PlayersGraph(src Source) task.FetchFunc {
	return collection(notify.EventPlayersGraph, src.ListPlayersGraph)
}

func collection[T any](event notify.Event, list func(context.Context) ([]T, error)) task.FetchFunc {
	return func(ctx context.Context) (notify.Envelope, error) {
		items, err := list(ctx)
		if err != nil {
			return notify.Envelope{}, fmt.Errorf("listing %s: %w", event, err)
		}
		data, err := json.Marshal(items)
		if err != nil {
			return notify.Envelope{}, fmt.Errorf("encoding %s: %w", event, err)
		}
		return notify.NewEnvelope(http.StatusOK, okMessage, data, event), nil
	}
}

// Register adds one poll task per live collection.
func Register(reg *task.Registry, src Source) error {
	if err := task.Add(reg, notify.EventServers, Servers(src), store.Server.Equal); err != nil {
		return fmt.Errorf("registering servers feed: %w", err)
	}
	if err := task.Add(reg, notify.EventPlayersGraph, PlayersGraph(src), store.PlayersSample.Equal); err != nil {
		return fmt.Errorf("registering players graph feed: %w", err)
	}
	return nil
}

// Snapshots returns one full-collection envelope per seeded cache entry,
// in key order. New subscribers receive these before any delta.
func Snapshots(cache *snapshot.Cache) []notify.Envelope {
	keys := cache.Keys()
	out := make([]notify.Envelope, 0, len(keys))
	for _, k := range keys {
		raw, ok := cache.Get(k)
		if !ok {
			continue
		}
		out = append(out, notify.NewEnvelope(http.StatusOK, okMessage, raw, k))
	}
	return out
}

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/btouchard/craftlist/internal/notify"
	"github.com/btouchard/craftlist/internal/snapshot"
)

var (
	// ErrDuplicateTask is returned when two tasks claim the same event tag.
	ErrDuplicateTask = errors.New("task already registered")
	// ErrStarted is returned when a task is added after Start.
	ErrStarted = errors.New("registry already started")
)

// Runner is a registered task erased of its entity type.
type Runner interface {
	ID() notify.Event
	Run(ctx context.Context)
}

// Registry collects poll tasks at startup and launches them.
type Registry struct {
	mu      sync.Mutex
	tasks   []Runner
	ids     map[notify.Event]struct{}
	started bool

	cache    *snapshot.Cache
	notifier notify.Notifier
	clock    clockwork.Clock
	interval time.Duration
}

// NewRegistry creates a Registry whose tasks share cache, notifier and interval.
func NewRegistry(cache *snapshot.Cache, notifier notify.Notifier, clock clockwork.Clock, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = 6 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		ids:      make(map[notify.Event]struct{}),
		cache:    cache,
		notifier: notifier,
		clock:    clock,
		interval: interval,
	}
}

// Add registers a poll task over entity type T keyed by id.
// equal defines structural equality of two T values.
func Add[T any](r *Registry, id notify.Event, fetch FetchFunc, equal func(a, b T) bool) error {
	if !id.Valid() || id == notify.EventError {
		return fmt.Errorf("invalid task id %q", id)
	}
	if fetch == nil || equal == nil {
		return fmt.Errorf("task %q: fetch and equal are required", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrStarted
	}
	if _, ok := r.ids[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}

	r.ids[id] = struct{}{}
	r.tasks = append(r.tasks, &Poll[T]{
		id:       id,
		fetch:    fetch,
		equal:    equal,
		interval: r.interval,
		cache:    r.cache,
		notifier: r.notifier,
		clock:    r.clock,
		log:      slog.With("component", "poll", "task", string(id)),
	})

	slog.Info("task registered", "task", string(id), "interval", r.interval)
	return nil
}

// Start launches every registered task in its own goroutine and returns.
// Tasks are not restarted; a panicking task is logged and stays down.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	tasks := append([]Runner(nil), r.tasks...)
	r.mu.Unlock()

	for _, t := range tasks {
		go run(ctx, t)
	}
	slog.Info("tasks started", "count", len(tasks))
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func run(ctx context.Context, t Runner) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("task panicked",
				"task", string(t.ID()),
				"panic", rec)
		}
	}()
	t.Run(ctx)
}

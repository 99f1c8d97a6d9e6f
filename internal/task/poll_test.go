package task

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/craftlist/internal/notify"
	"github.com/btouchard/craftlist/internal/snapshot"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// recorder captures every envelope it is notified with.
type recorder struct {
	mu   sync.Mutex
	envs []notify.Envelope
}

func (r *recorder) Notify(_ context.Context, env notify.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
}

func (r *recorder) all() []notify.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Envelope(nil), r.envs...)
}

// script replays fetch results in order, repeating the last one.
type script struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	items []item
	empty bool
	err   error
}

func (s *script) fetch(context.Context) (notify.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	if st.err != nil {
		return notify.Envelope{}, st.err
	}
	if st.empty {
		return notify.NewEnvelope(200, "Ok", nil, notify.EventServers), nil
	}
	raw, _ := json.Marshal(st.items)
	return notify.NewEnvelope(200, "Ok", raw, notify.EventServers), nil
}

func newTestPoll(t *testing.T, s *script) (*Poll[item], *snapshot.Cache, *recorder, *clockwork.FakeClock) {
	t.Helper()
	cache := snapshot.New()
	rec := &recorder{}
	clock := clockwork.NewFakeClock()
	p := &Poll[item]{
		id:       notify.EventServers,
		fetch:    s.fetch,
		equal:    func(a, b item) bool { return a == b },
		interval: 6 * time.Second,
		cache:    cache,
		notifier: rec,
		clock:    clock,
		log:      testLogger(),
	}
	return p, cache, rec, clock
}

func cached(t *testing.T, c *snapshot.Cache) []item {
	t.Helper()
	raw, ok := c.Get(notify.EventServers)
	require.True(t, ok)
	var out []item
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestPoll_ChangedBroadcastsDelta(t *testing.T) {
	t.Parallel()
	s := &script{steps: []step{
		{items: []item{{1, "a"}, {2, "b"}}},
		{items: []item{{1, "a"}, {2, "c"}}},
	}}
	p, cache, rec, _ := newTestPoll(t, s)
	ctx := context.Background()

	require.NoError(t, p.seed(ctx))
	assert.Empty(t, rec.all(), "seeding must not broadcast")

	assert.Equal(t, outcomeChanged, p.check(ctx))

	envs := rec.all()
	require.Len(t, envs, 1)
	assert.Equal(t, 200, envs[0].Code)
	assert.Equal(t, "Ok", envs[0].Message)
	assert.Equal(t, notify.EventServers, envs[0].Event)
	assert.JSONEq(t, `[{"id":2,"name":"c"},{"id":2,"name":"b"}]`, string(envs[0].Data))

	assert.Equal(t, []item{{1, "a"}, {2, "c"}}, cached(t, cache))
}

func TestPoll_UnchangedIsSilent(t *testing.T) {
	t.Parallel()
	s := &script{steps: []step{{items: []item{{1, "a"}}}}}
	p, _, rec, _ := newTestPoll(t, s)
	ctx := context.Background()

	require.NoError(t, p.seed(ctx))
	for i := 0; i < 3; i++ {
		assert.Equal(t, outcomeUnchanged, p.check(ctx))
	}
	assert.Empty(t, rec.all())
}

func TestPoll_ReorderBroadcastsEmptyDelta(t *testing.T) {
	t.Parallel()
	s := &script{steps: []step{
		{items: []item{{1, "a"}, {2, "b"}}},
		{items: []item{{2, "b"}, {1, "a"}}},
	}}
	p, _, rec, _ := newTestPoll(t, s)
	ctx := context.Background()

	require.NoError(t, p.seed(ctx))
	assert.Equal(t, outcomeChanged, p.check(ctx))

	envs := rec.all()
	require.Len(t, envs, 1)
	assert.JSONEq(t, `[]`, string(envs[0].Data))
}

func TestPoll_FetchErrorsLeaveCacheUntouched(t *testing.T) {
	t.Parallel()
	boom := errors.New("database is locked")
	s := &script{steps: []step{
		{items: []item{{1, "a"}}},
		{err: boom},
		{err: boom},
		{items: []item{{1, "a"}}},
	}}
	p, cache, rec, _ := newTestPoll(t, s)
	ctx := context.Background()

	require.NoError(t, p.seed(ctx))
	assert.Equal(t, outcomeFetchError, p.check(ctx))
	assert.Equal(t, outcomeFetchError, p.check(ctx))

	envs := rec.all()
	require.Len(t, envs, 2)
	for _, env := range envs {
		assert.Equal(t, notify.EventError, env.Event)
		assert.Equal(t, 500, env.Code)
		assert.Nil(t, env.Data)
	}
	assert.Equal(t, []item{{1, "a"}}, cached(t, cache))

	assert.Equal(t, outcomeUnchanged, p.check(ctx), "recovered fetch compares against the old snapshot")
	assert.Len(t, rec.all(), 2)
}

func TestPoll_NilDataIsForwarded(t *testing.T) {
	t.Parallel()
	s := &script{steps: []step{
		{items: []item{{1, "a"}}},
		{empty: true},
	}}
	p, cache, rec, _ := newTestPoll(t, s)
	ctx := context.Background()

	require.NoError(t, p.seed(ctx))
	assert.Equal(t, outcomeForwarded, p.check(ctx))

	envs := rec.all()
	require.Len(t, envs, 1)
	assert.Nil(t, envs[0].Data)
	assert.Equal(t, notify.EventServers, envs[0].Event)
	assert.Equal(t, []item{{1, "a"}}, cached(t, cache))
}

func TestPoll_UndecodableDataSkipsRound(t *testing.T) {
	t.Parallel()
	calls := 0
	fetch := func(context.Context) (notify.Envelope, error) {
		calls++
		if calls == 1 {
			return notify.NewEnvelope(200, "Ok", json.RawMessage(`[{"id":1,"name":"a"}]`), notify.EventServers), nil
		}
		return notify.NewEnvelope(200, "Ok", json.RawMessage(`{"not":"a list"}`), notify.EventServers), nil
	}
	p, cache, rec, _ := newTestPoll(t, &script{steps: []step{{}}})
	p.fetch = fetch
	ctx := context.Background()

	require.NoError(t, p.seed(ctx))
	assert.Equal(t, outcomeDecodeError, p.check(ctx))
	assert.Empty(t, rec.all())
	assert.Equal(t, []item{{1, "a"}}, cached(t, cache))
}

func TestPoll_RunChecksEveryInterval(t *testing.T) {
	t.Parallel()
	s := &script{steps: []step{
		{items: []item{{1, "a"}}},
		{items: []item{{1, "a"}, {2, "b"}}},
	}}
	p, _, rec, clock := newTestPoll(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Empty(t, rec.all())

	clock.Advance(6 * time.Second)
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `[{"id":2,"name":"b"}]`, string(rec.all()[0].Data))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPoll_RunRetriesSeed(t *testing.T) {
	t.Parallel()
	s := &script{steps: []step{
		{err: errors.New("no such table: servers")},
		{items: []item{{1, "a"}}},
	}}
	p, cache, rec, clock := newTestPoll(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	envs := rec.all()
	require.Len(t, envs, 1)
	assert.Equal(t, notify.EventError, envs[0].Event)
	assert.False(t, cache.Has(notify.EventServers))

	clock.Advance(6 * time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool { return cache.Has(notify.EventServers) }, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.all(), 1)
}

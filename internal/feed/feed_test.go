package feed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/craftlist/internal/notify"
	"github.com/btouchard/craftlist/internal/snapshot"
	"github.com/btouchard/craftlist/internal/store"
	"github.com/btouchard/craftlist/internal/task"
)

type fakeSource struct {
	servers []store.Server
	samples []store.PlayersSample
	err     error
}

func (f *fakeSource) ListServers(context.Context) ([]store.Server, error) {
	return f.servers, f.err
}

func (f *fakeSource) ListPlayersGraph(context.Context) ([]store.PlayersSample, error) {
	return f.samples, f.err
}

func TestServers_BuildsOkEnvelope(t *testing.T) {
	t.Parallel()
	src := &fakeSource{servers: []store.Server{{ID: 1, Name: "alpha", Categories: []string{}}}}

	env, err := Servers(src)(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 200, env.Code)
	assert.Equal(t, "Ok", env.Message)
	assert.Equal(t, notify.EventServers, env.Event)

	var got []store.Server
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "alpha", got[0].Name)
}

func TestPlayersGraph_BuildsOkEnvelope(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{samples: []store.PlayersSample{{ServerID: 1, PlayersOnline: 20, Date: at}}}

	env, err := PlayersGraph(src)(context.Background())
	require.NoError(t, err)

	assert.Equal(t, notify.EventPlayersGraph, env.Event)
	assert.JSONEq(t, `[{"server_id":1,"players_online":20,"date":"2026-03-01T00:00:00Z"}]`, string(env.Data))
}

func TestFetch_WrapsStoreError(t *testing.T) {
	t.Parallel()
	src := &fakeSource{err: store.ErrServerNotFound}

	_, err := Servers(src)(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrServerNotFound)

	env := notify.ErrorEnvelope(err)
	assert.Equal(t, 404, env.Code, "store status flows into the error envelope")
}

func TestRegister_AddsBothFeeds(t *testing.T) {
	t.Parallel()
	cache := snapshot.New()
	reg := task.NewRegistry(cache, notify.NotifierFunc(func(context.Context, notify.Envelope) {}), clockwork.NewFakeClock(), time.Second)

	require.NoError(t, Register(reg, &fakeSource{}))
	assert.Equal(t, 2, reg.Len())

	err := Register(reg, &fakeSource{})
	assert.ErrorIs(t, err, task.ErrDuplicateTask)
}

func TestSnapshots_ReplaysCache(t *testing.T) {
	t.Parallel()
	cache := snapshot.New()
	assert.Empty(t, Snapshots(cache))

	cache.Set(notify.EventServers, json.RawMessage(`[{"id":1}]`))
	cache.Set(notify.EventPlayersGraph, json.RawMessage(`[]`))

	envs := Snapshots(cache)
	require.Len(t, envs, 2)
	assert.Equal(t, notify.EventPlayersGraph, envs[0].Event)
	assert.Equal(t, notify.EventServers, envs[1].Event)
	assert.JSONEq(t, `[{"id":1}]`, string(envs[1].Data))
	assert.Equal(t, 200, envs[1].Code)
}

func TestPlayersGraph_WrapsPlainError(t *testing.T) {
	t.Parallel()
	src := &fakeSource{err: errors.New("disk I/O error")}

	_, err := PlayersGraph(src)(context.Background())
	assert.EqualError(t, err, "listing PlayersGraph: disk I/O error")
}

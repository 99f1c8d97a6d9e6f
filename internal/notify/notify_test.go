package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) StatusCode() int { return e.code }

func TestEnvelope_Encode_WithData(t *testing.T) {
	t.Parallel()

	env := NewEnvelope(200, "Ok", json.RawMessage(`[{"id":1}]`), EventServers)

	assert.JSONEq(t, `{"code":200,"message":"Ok","data":[{"id":1}],"event":"Servers"}`, string(env.Encode()))
}

func TestEnvelope_Encode_NilDataIsNull(t *testing.T) {
	t.Parallel()

	env := NewEnvelope(200, "Ok", nil, EventPlayersGraph)

	assert.JSONEq(t, `{"code":200,"message":"Ok","data":null,"event":"PlayersGraph"}`, string(env.Encode()))
}

func TestEnvelope_Encode_InvalidRawFallsBack(t *testing.T) {
	t.Parallel()

	env := NewEnvelope(200, "Ok", json.RawMessage(`{not json`), EventServers)

	assert.Equal(t, fallbackFrame, string(env.Encode()))
}

func TestErrorEnvelope_DefaultsTo500(t *testing.T) {
	t.Parallel()

	env := ErrorEnvelope(errors.New("database is locked"))

	assert.Equal(t, 500, env.Code)
	assert.Equal(t, "database is locked", env.Message)
	assert.Equal(t, EventError, env.Event)
	assert.Nil(t, env.Data)
}

func TestErrorEnvelope_UsesWrappedStatus(t *testing.T) {
	t.Parallel()

	env := ErrorEnvelope(fmt.Errorf("listing: %w", statusErr{code: 503}))

	assert.Equal(t, 503, env.Code)
}

func TestEvent_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, EventServers.Valid())
	assert.True(t, EventPlayersGraph.Valid())
	assert.True(t, EventError.Valid())
	assert.False(t, Event("Reviews").Valid())
}

func TestHub_NotifiesAllInOrder(t *testing.T) {
	t.Parallel()

	var got []string
	first := NotifierFunc(func(_ context.Context, env Envelope) { got = append(got, "a:"+env.Message) })
	second := NotifierFunc(func(_ context.Context, env Envelope) { got = append(got, "b:"+env.Message) })

	NewHub(first, second).Notify(context.Background(), Envelope{Message: "m"})

	assert.Equal(t, []string{"a:m", "b:m"}, got)
}

type recordingSender struct {
	mu    sync.Mutex
	calls []map[string]any
}

func (r *recordingSender) SendNotificationToAllClients(method string, params map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	params["_method"] = method
	r.calls = append(r.calls, params)
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestMCPNotifier_DebouncesPerEvent(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	sender := &recordingSender{}
	n := NewMCPNotifier(sender, time.Second, clock)
	ctx := context.Background()

	n.Notify(ctx, Envelope{Event: EventServers})
	n.Notify(ctx, Envelope{Event: EventServers})
	n.Notify(ctx, Envelope{Event: EventPlayersGraph})
	assert.Equal(t, 2, sender.count())

	clock.Advance(time.Second)
	n.Notify(ctx, Envelope{Event: EventServers})
	assert.Equal(t, 3, sender.count())
}

func TestMCPNotifier_ErrorsBypassDebounce(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	n := NewMCPNotifier(sender, time.Hour, clockwork.NewFakeClock())
	ctx := context.Background()

	n.Notify(ctx, ErrorEnvelope(errors.New("boom")))
	n.Notify(ctx, ErrorEnvelope(errors.New("boom")))

	require.Equal(t, 2, sender.count())
	assert.Equal(t, "error", sender.calls[0]["level"])
	assert.Equal(t, "notifications/message", sender.calls[0]["_method"])
}

package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liminal/internal/events"
	"liminal/internal/metrics"
)

type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	broken bool
	closed bool
}

func (r *recorder) Send(msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken {
		return errors.New("gone")
	}
	r.frames = append(r.frames, msg)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) types(t *testing.T) []events.EventType {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.EventType
	for _, f := range r.frames {
		typ, _, err := events.Decode(f)
		require.NoError(t, err)
		out = append(out, typ)
	}
	return out
}

type mirrorFunc func(events.EventType, []byte)

func (f mirrorFunc) Mirror(t events.EventType, frame []byte) { f(t, frame) }

func TestConnectSendsWelcome(t *testing.T) {
	h := New()
	obs := &recorder{}
	id := h.Connect(obs)

	require.Len(t, obs.frames, 1)
	typ, payload, err := events.Decode(obs.frames[0])
	require.NoError(t, err)
	assert.Equal(t, events.Connected, typ)

	var p events.ConnectedPayload
	require.NoError(t, json.Unmarshal(payload, &p))
	assert.Equal(t, id, p.SessionID)
	assert.Equal(t, welcomeMessage, p.Message)
	assert.Equal(t, 1, h.Observers())
}

func TestPublishFansOutAndPrunes(t *testing.T) {
	m := metrics.NewCollector(prometheus.NewRegistry())
	h := New(WithMetrics(m))

	a, b := &recorder{}, &recorder{}
	h.Connect(a)
	h.Connect(b)
	b.broken = true

	require.NoError(t, h.Publish(events.SpinStart, events.SpinStartPayload{SpinID: "s", Options: []string{"x"}}))

	assert.Equal(t, []events.EventType{events.Connected, events.SpinStart}, a.types(t))
	assert.Equal(t, 1, h.Observers())
	assert.True(t, b.closed)
}

func TestPublishMirrors(t *testing.T) {
	var got []events.EventType
	h := New(WithMirror(mirrorFunc(func(et events.EventType, _ []byte) { got = append(got, et) })))

	require.NoError(t, h.Publish(events.SpinTick, events.SpinTickPayload{}))
	require.NoError(t, h.Publish(events.SpinComplete, events.SpinCompletePayload{}))

	assert.Equal(t, []events.EventType{events.SpinTick, events.SpinComplete}, got)
}

func TestPublishUnencodablePayload(t *testing.T) {
	h := New()
	assert.Error(t, h.Publish(events.SpinTick, make(chan int)))
}

func TestEcho(t *testing.T) {
	h := New()
	obs := &recorder{}
	h.Connect(obs)

	require.NoError(t, h.Echo(obs, []byte("hello")))

	typ, payload, err := events.Decode(obs.frames[1])
	require.NoError(t, err)
	assert.Equal(t, events.Echo, typ)
	assert.JSONEq(t, `{"received":"hello"}`, string(payload))
}

func TestDisconnectAndClose(t *testing.T) {
	h := New()
	a, b := &recorder{}, &recorder{}
	id := h.Connect(a)
	h.Connect(b)

	h.Disconnect(id)
	h.Disconnect(id)
	assert.Equal(t, 1, h.Observers())
	assert.True(t, a.closed)

	h.Close()
	assert.Equal(t, 0, h.Observers())
	assert.True(t, b.closed)
}

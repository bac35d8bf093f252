package emitter

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liminal/internal/config"
	"liminal/internal/events"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeBroker struct {
	mu     sync.Mutex
	topics []string
	qos    []byte
	err    error
}

func (b *fakeBroker) Publish(topic string, qos byte, _ bool, _ interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.qos = append(b.qos, qos)
	return newToken(b.err)
}

func (b *fakeBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

func newTestEmitter(t *testing.T, broker *fakeBroker) *MQTTEmitter {
	t.Helper()
	e := NewMQTTEmitter(config.MQTTConfig{TopicPrefix: "liminal/spinner", QoS: 1}, nil)
	e.setConnected(true)
	e.start(broker)
	t.Cleanup(e.Disconnect)
	return e
}

func TestTopic(t *testing.T) {
	e := NewMQTTEmitter(config.MQTTConfig{TopicPrefix: "a/b"}, nil)
	assert.Equal(t, "a/b/spin_tick", e.Topic(events.SpinTick))
}

func TestMirrorPublishes(t *testing.T) {
	broker := &fakeBroker{}
	e := newTestEmitter(t, broker)

	e.Mirror(events.SpinStart, []byte(`{}`))
	e.Mirror(events.SpinComplete, []byte(`{}`))

	require.Eventually(t, func() bool { return broker.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"liminal/spinner/spin_start", "liminal/spinner/spin_complete"}, broker.topics)
	assert.Equal(t, []byte{1, 1}, broker.qos)

	require.Eventually(t, func() bool { return e.Stats().Published["liminal/spinner/spin_start"] == 1 }, time.Second, 5*time.Millisecond)
}

func TestPublishErrorsCounted(t *testing.T) {
	broker := &fakeBroker{err: errors.New("not authorized")}
	e := newTestEmitter(t, broker)

	e.Mirror(events.SpinTick, []byte(`{}`))

	require.Eventually(t, func() bool { return e.Stats().Errors == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, e.Stats().Published)
}

func TestPublishWhileDisconnected(t *testing.T) {
	e := NewMQTTEmitter(config.MQTTConfig{TopicPrefix: "p"}, nil)
	e.pub = &fakeBroker{}

	err := e.publish(outbound{topic: "p/x", frame: []byte("{}")})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, uint64(1), e.Stats().Errors)
}

func TestMirrorDropsWhenQueueFull(t *testing.T) {
	// No loop running, so nothing drains the queue.
	e := NewMQTTEmitter(config.MQTTConfig{TopicPrefix: "p"}, nil)
	for i := 0; i < queueSize+3; i++ {
		e.Mirror(events.SpinTick, []byte("{}"))
	}
	assert.Equal(t, uint64(3), e.Stats().Dropped)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	e := newTestEmitter(t, &fakeBroker{})
	e.Disconnect()
	e.Disconnect()
	assert.False(t, e.Stats().Connected)
}

func TestConnectFailureDoesNotRedial(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	e := NewMQTTEmitter(config.MQTTConfig{
		Broker:      "tcp://" + addr,
		ClientID:    "liminal-test",
		TopicPrefix: "p",
	}, nil)
	t.Cleanup(e.Disconnect)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.Error(t, e.Connect(ctx))
	assert.Nil(t, e.client)
	assert.False(t, e.Stats().Connected)

	// Bring a listener back on the same address; a leftover client would dial it.
	broker, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer broker.Close()

	dialed := make(chan struct{}, 1)
	go func() {
		conn, err := broker.Accept()
		if err != nil {
			return
		}
		conn.Close()
		dialed <- struct{}{}
	}()

	select {
	case <-dialed:
		t.Fatal("client kept dialing after Connect failed")
	case <-time.After(3 * time.Second):
	}
}

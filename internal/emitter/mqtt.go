// Package emitter mirrors hub frames onto an MQTT broker.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"liminal/internal/config"
	"liminal/internal/events"
)

var ErrNotConnected = errors.New("mqtt not connected")

const queueSize = 512

// publisher is the subset of mqtt.Client the emitter needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type outbound struct {
	topic string
	frame []byte
}

// MQTTEmitter publishes every hub frame to <topic_prefix>/<event_type>.
// Mirror never blocks the hub: frames are queued and dropped when the queue is full.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	pub    publisher
	log    *slog.Logger

	queue chan outbound
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.RWMutex
	published map[string]uint64
	dropped   uint64
	errors    uint64
	connected bool
}

func NewMQTTEmitter(cfg config.MQTTConfig, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{
		cfg:       cfg,
		log:       logger,
		queue:     make(chan outbound, queueSize),
		done:      make(chan struct{}),
		published: make(map[string]uint64),
	}
}

// Connect dials the broker once and starts the publish loop. Reconnects only
// happen after a first successful connection; on failure the client is torn
// down so nothing keeps dialing in the background.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.log.Info("mqtt connection established", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", e.cfg.Broker)
	}

	e.client = mqtt.NewClient(opts)
	e.log.Info("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		e.abandon()
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		e.abandon()
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	e.start(e.client)
	return nil
}

// abandon drops a client whose first connect never completed.
func (e *MQTTEmitter) abandon() {
	e.client.Disconnect(0)
	e.client = nil
	e.setConnected(false)
}

func (e *MQTTEmitter) start(pub publisher) {
	e.pub = pub
	e.wg.Add(1)
	go e.loop()
}

func (e *MQTTEmitter) Topic(t events.EventType) string {
	return fmt.Sprintf("%s/%s", e.cfg.TopicPrefix, t)
}

// Mirror queues frame for publication.
func (e *MQTTEmitter) Mirror(t events.EventType, frame []byte) {
	select {
	case e.queue <- outbound{topic: e.Topic(t), frame: frame}:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	}
}

func (e *MQTTEmitter) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case out := <-e.queue:
			if err := e.publish(out); err != nil {
				e.log.Debug("mqtt publish failed", "topic", out.topic, "error", err)
			}
		}
	}
}

func (e *MQTTEmitter) publish(out outbound) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	token := e.pub.Publish(out.topic, e.cfg.QoS, false, out.frame)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[out.topic]++
	e.mu.Unlock()
	return nil
}

// Disconnect stops the publish loop and closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	select {
	case <-e.done:
		return
	default:
		close(e.done)
	}
	e.wg.Wait()

	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		e.log.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

type Stats struct {
	Connected bool
	Published map[string]uint64
	Dropped   uint64
	Errors    uint64
}

func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Dropped:   e.dropped,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

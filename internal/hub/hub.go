// Package hub turns spin events into wire frames and fans them out to observers.
package hub

import (
	"log/slog"

	"liminal/internal/events"
	"liminal/internal/metrics"
	"liminal/internal/observer"
)

const welcomeMessage = "Connected to Liminal WebSocket"

// Mirror receives a copy of every published frame, e.g. an MQTT bridge.
// Implementations must not block.
type Mirror interface {
	Mirror(t events.EventType, frame []byte)
}

type Option func(*Hub)

func WithMetrics(m *metrics.Collector) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithMirror(m Mirror) Option {
	return func(h *Hub) {
		if m != nil {
			h.mirrors = append(h.mirrors, m)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

type Hub struct {
	registry *observer.Registry
	metrics  *metrics.Collector
	mirrors  []Mirror
	log      *slog.Logger
}

func New(opts ...Option) *Hub {
	h := &Hub{log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.registry = observer.NewRegistry(
		observer.WithGreeting(h.welcome),
		observer.WithLogger(h.log),
	)
	return h
}

func (h *Hub) welcome(id string) []byte {
	frame, err := events.Encode(events.Connected, events.ConnectedPayload{
		SessionID: id,
		Message:   welcomeMessage,
	})
	if err != nil {
		h.log.Error("encode welcome", "error", err)
	}
	return frame
}

// Connect hands obs to the registry. The observer's first frame is always
// the connected acknowledgement carrying the returned session id.
func (h *Hub) Connect(obs observer.Observer) string {
	id := h.registry.Register(obs)
	n := h.registry.Count()
	h.metrics.SetObservers(n)
	h.log.Info("observer connected", "session", id, "observers", n)
	return id
}

func (h *Hub) Disconnect(id string) {
	if !h.registry.Has(id) {
		return
	}
	h.registry.Unregister(id)
	n := h.registry.Count()
	h.metrics.SetObservers(n)
	h.log.Info("observer disconnected", "session", id, "observers", n)
}

// Publish encodes {type, payload} and broadcasts it. Observers that cannot
// take the frame are pruned; their failure never surfaces to the caller.
func (h *Hub) Publish(t events.EventType, payload interface{}) error {
	frame, err := events.Encode(t, payload)
	if err != nil {
		return err
	}

	res := h.registry.Broadcast(frame)
	h.metrics.RecordPublish(string(t), len(res.Pruned))
	if len(res.Pruned) > 0 {
		h.metrics.SetObservers(h.registry.Count())
		h.log.Info("pruned unreachable observers", "event", t, "pruned", len(res.Pruned))
	}

	for _, m := range h.mirrors {
		m.Mirror(t, frame)
	}
	return nil
}

// Echo answers an inbound text frame on the same observer only.
func (h *Hub) Echo(obs observer.Observer, text []byte) error {
	frame, err := events.Encode(events.Echo, events.EchoPayload{Received: string(text)})
	if err != nil {
		return err
	}
	return obs.Send(frame)
}

func (h *Hub) Observers() int {
	return h.registry.Count()
}

// Close drops every observer.
func (h *Hub) Close() {
	n := h.registry.CloseAll()
	h.metrics.SetObservers(0)
	if n > 0 {
		h.log.Info("closed observers", "count", n)
	}
}

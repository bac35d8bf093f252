// Package observer tracks the connections watching spins and fans frames out to them.
package observer

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	ErrClosed         = errors.New("observer closed")
	ErrSendBufferFull = errors.New("observer send buffer full")
)

// Observer is a single remote party that accepts text frames.
// Send must not block; a non-nil error marks the observer dead.
type Observer interface {
	Send(msg []byte) error
	Close() error
}

// Result summarizes one broadcast.
type Result struct {
	Delivered int
	Pruned    []string
}

type Option func(*Registry)

// WithGreeting queues a frame built from the new id before the observer
// becomes visible to Broadcast, so it is always the first frame delivered.
func WithGreeting(fn func(id string) []byte) Option {
	return func(r *Registry) { r.greet = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// Registry owns every registered observer. Removal closes the observer.
type Registry struct {
	mu        sync.RWMutex
	observers map[string]Observer
	greet     func(id string) []byte
	log       *slog.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		observers: make(map[string]Observer),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register takes ownership of obs and returns its generated id.
func (r *Registry) Register(obs Observer) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.greet != nil {
		// Send only enqueues, so holding the lock here never waits on the network.
		if err := obs.Send(r.greet(id)); err != nil {
			r.log.Debug("greeting not queued", "observer", id, "error", err)
		}
	}
	r.observers[id] = obs
	r.log.Debug("observer registered", "observer", id, "observers", len(r.observers))
	return id
}

// Unregister removes and closes the observer. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	obs, ok := r.observers[id]
	delete(r.observers, id)
	r.mu.Unlock()

	if ok {
		_ = obs.Close()
		r.log.Debug("observer unregistered", "observer", id)
	}
}

// Broadcast sends msg to every observer registered when the call starts.
// Observers whose Send fails are unregistered after all sends are attempted.
func (r *Registry) Broadcast(msg []byte) Result {
	type target struct {
		id  string
		obs Observer
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.observers))
	for id, obs := range r.observers {
		targets = append(targets, target{id: id, obs: obs})
	}
	r.mu.RUnlock()

	var res Result
	for _, t := range targets {
		if err := t.obs.Send(msg); err != nil {
			r.log.Debug("send failed, pruning observer", "observer", t.id, "error", err)
			res.Pruned = append(res.Pruned, t.id)
			continue
		}
		res.Delivered++
	}

	r.sent.Add(uint64(res.Delivered))
	r.dropped.Add(uint64(len(res.Pruned)))

	for _, id := range res.Pruned {
		r.Unregister(id)
	}
	return res
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.observers[id]
	return ok
}

// Stats returns lifetime delivered and pruned-send totals.
func (r *Registry) Stats() (sent, dropped uint64) {
	return r.sent.Load(), r.dropped.Load()
}

// CloseAll drops and closes every observer. Used on shutdown.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	observers := r.observers
	r.observers = make(map[string]Observer)
	r.mu.Unlock()

	for _, obs := range observers {
		_ = obs.Close()
	}
	return len(observers)
}

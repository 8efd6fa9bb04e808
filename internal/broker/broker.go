// Package broker carries server push events from the services that produce
// them to the websocket hub(s) that deliver them.
package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Envelope addresses an already-encoded event to UserIDs, or to every
// connected user when All is set. Relayed envelopes always carry UserIDs.
type Envelope struct {
	UserIDs []uuid.UUID     `json:"user_ids,omitempty"`
	All     bool            `json:"all,omitempty"`
	Event   json.RawMessage `json:"event"`
}

type Handler func(Envelope)

// Broker is a fire-and-forget publish/subscribe bus. Publish must not block
// on network I/O; callers may hold locks while publishing.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(h Handler)
	// Run services the broker until ctx is cancelled.
	Run(ctx context.Context) error
	Close() error
}

type handlers struct {
	mu   sync.RWMutex
	list []Handler
}

func (hs *handlers) add(h Handler) {
	hs.mu.Lock()
	hs.list = append(hs.list, h)
	hs.mu.Unlock()
}

func (hs *handlers) dispatch(env Envelope) {
	hs.mu.RLock()
	list := hs.list
	hs.mu.RUnlock()
	for _, h := range list {
		h(env)
	}
}

// Local delivers envelopes synchronously to in-process subscribers.
type Local struct {
	handlers handlers
}

func NewLocal() *Local {
	return &Local{}
}

func (b *Local) Publish(_ context.Context, env Envelope) error {
	b.handlers.dispatch(env)
	return nil
}

func (b *Local) Subscribe(h Handler) {
	b.handlers.add(h)
}

func (b *Local) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *Local) Close() error { return nil }

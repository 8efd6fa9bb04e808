// Package ai holds the chat-completion backends used for AI conversations.
package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider turns a role-tagged transcript into the assistant's next reply.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

type ProviderFunc func(ctx context.Context, messages []Message) (string, error)

func (f ProviderFunc) Chat(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

type ProviderFactory func(model string) (Provider, error)

// Registry maps backend names (AI_PROVIDER) to constructors.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(name, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(model)
}

package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// HandlerRegistry is the process-wide topic to handler map. It is populated
// at startup and read by the reconciler through HandlerResolver.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]WebhookHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]WebhookHandler)}
}

func (r *HandlerRegistry) Register(topic string, handler WebhookHandler) error {
	if handler == nil {
		return fmt.Errorf("core: webhook handler is nil")
	}
	key := normalizeTopic(topic)
	if key == "" {
		return fmt.Errorf("core: webhook topic is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("core: webhook handler already registered: %s", key)
	}
	r.handlers[key] = handler
	return nil
}

func (r *HandlerRegistry) RegisterFunc(topic string, fn func(ctx context.Context, delivery Delivery) error) error {
	if fn == nil {
		return fmt.Errorf("core: webhook handler is nil")
	}
	return r.Register(topic, WebhookHandlerFunc(fn))
}

func (r *HandlerRegistry) Resolve(topic string) (WebhookHandler, bool) {
	key := normalizeTopic(topic)
	if r == nil || key == "" {
		return nil, false
	}
	r.mu.RLock()
	handler, ok := r.handlers[key]
	r.mu.RUnlock()
	return handler, ok
}

func (r *HandlerRegistry) Topics() []string {
	r.mu.RLock()
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	r.mu.RUnlock()
	sort.Strings(topics)
	return topics
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

var _ HandlerResolver = (*HandlerRegistry)(nil)

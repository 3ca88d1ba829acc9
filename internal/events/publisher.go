// Package events provides the in-process channel bus that carries streaming
// events from transports to subscribers.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tOgg1/fedistream/internal/models"
)

// Handler is invoked for every event published on a subscribed key.
type Handler func(event models.StreamEvent)

// Key addresses one channel of one account.
type Key struct {
	AccountID string
	Channel   models.Channel
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.AccountID, k.Channel)
}

// SubscriptionID identifies a subscription for later release.
type SubscriptionID string

type subscription struct {
	id      SubscriptionID
	key     Key
	handler Handler
}

// Bus is the publish/subscribe surface used by transports and the binding
// registry.
type Bus interface {
	// Publish delivers event to every handler subscribed to its key.
	Publish(ctx context.Context, event models.StreamEvent)

	// Subscribe registers handler for key.
	Subscribe(key Key, handler Handler) (SubscriptionID, error)

	// Unsubscribe releases a subscription.
	Unsubscribe(id SubscriptionID) error
}

// InMemoryBus implements Bus with in-process fanout.
type InMemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[SubscriptionID]*subscription
	admit         func(Key) error
}

// BusOption configures an InMemoryBus.
type BusOption func(*InMemoryBus)

// WithAdmission installs a check run before each subscription; a non-nil
// error rejects it.
func WithAdmission(admit func(Key) error) BusOption {
	return func(b *InMemoryBus) {
		b.admit = admit
	}
}

// NewInMemoryBus creates a new in-memory bus.
func NewInMemoryBus(opts ...BusOption) *InMemoryBus {
	b := &InMemoryBus{
		subscriptions: make(map[SubscriptionID]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers event synchronously. Handlers run outside the lock so they
// may subscribe or unsubscribe.
func (b *InMemoryBus) Publish(ctx context.Context, event models.StreamEvent) {
	if ctx.Err() != nil {
		return
	}
	key := Key{AccountID: event.AccountID, Channel: event.Channel}

	b.mu.RLock()
	var handlers []Handler
	for _, sub := range b.subscriptions {
		if sub.key == key {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Subscribe registers handler for key.
func (b *InMemoryBus) Subscribe(key Key, handler Handler) (SubscriptionID, error) {
	if key.AccountID == "" || !key.Channel.IsValid() {
		return "", ErrInvalidKey
	}
	if handler == nil {
		return "", ErrNilHandler
	}
	if b.admit != nil {
		if err := b.admit(key); err != nil {
			return "", err
		}
	}

	id := SubscriptionID(uuid.New().String())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[id] = &subscription{id: id, key: key, handler: handler}
	return id, nil
}

// Unsubscribe releases a subscription.
func (b *InMemoryBus) Unsubscribe(id SubscriptionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(b.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscriptions.
func (b *InMemoryBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// HasSubscribers reports whether anything listens on key.
func (b *InMemoryBus) HasSubscribers(key Key) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscriptions {
		if sub.key == key {
			return true
		}
	}
	return false
}

// Close removes all subscriptions.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[SubscriptionID]*subscription)
}

// Errors for bus operations.
var (
	ErrInvalidKey           = &BusError{Message: "subscription key needs an account and a known channel"}
	ErrNilHandler           = &BusError{Message: "handler cannot be nil"}
	ErrSubscriptionNotFound = &BusError{Message: "subscription not found"}
)

// BusError represents an error from bus operations.
type BusError struct {
	Message string
}

func (e *BusError) Error() string {
	return e.Message
}

// Package notify decouples "something changed" signaling from the storage
// backend. Services publish after a successful mutation; a push-capable
// backend (Redis pubsub) or an in-process fan-out delivers the change to
// whoever re-reads state. Consumers always refetch rather than patching
// local copies.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Publisher announces that a group purchase changed. Implementations must
// be safe for concurrent use and must not block the mutating call path on
// slow consumers.
type Publisher interface {
	PublishGroupPurchaseChanged(ctx context.Context, id uuid.UUID) error
}

// Handler consumes change notifications.
type Handler func(ctx context.Context, id uuid.UUID)

// Broker is an in-process Publisher for single-node deployments (the
// memory storage driver). Delivery is asynchronous and best-effort:
// a subscriber whose buffer is full misses the signal and catches up on
// its next refetch.
type Broker struct {
	mu   sync.RWMutex
	subs map[int]chan uuid.UUID
	next int
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan uuid.UUID)}
}

func (b *Broker) PublishGroupPurchaseChanged(_ context.Context, id uuid.UUID) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- id:
		default:
		}
	}

	return nil
}

// Subscribe invokes handler for every published change until ctx is done.
func (b *Broker) Subscribe(ctx context.Context, handler Handler) error {
	ch := make(chan uuid.UUID, 64)

	b.mu.Lock()
	key := b.next
	b.next++
	b.subs[key] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, key)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-ch:
			handler(ctx, id)
		}
	}
}

// Nop discards all notifications. Used in tests and when no consumer is
// wired.
type Nop struct{}

func (Nop) PublishGroupPurchaseChanged(context.Context, uuid.UUID) error { return nil }

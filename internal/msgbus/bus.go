// Package msgbus provides the in-process update bus that broadcasts message
// mutations to every open conversation window.
package msgbus

import (
	"sync"

	"github.com/emberchat/ember/internal/models"
)

// Handler is a callback invoked for every published update.
//
// Handlers receive the full stream and filter by peer themselves; a single
// shared bus keeps wiring trivial and the per-event filter cost is O(1).
type Handler func(update models.Update)

// subscription represents an active bus subscription.
type subscription struct {
	id      string
	handler Handler
}

// Bus defines the update bus interface. There is no buffering or replay:
// subscribers that attach after an update was published will not see it.
type Bus interface {
	// Added broadcasts newly arrived messages for a conversation.
	Added(messages []models.Message, peer models.Peer)

	// Updated broadcasts an in-place change to one message.
	Updated(message models.Message, peer models.Peer, animated bool)

	// Deleted broadcasts removal of messages by per-conversation id.
	Deleted(messageIDs []int64, peer models.Peer)

	// Reload signals that a conversation's local history changed wholesale.
	Reload(peer models.Peer, animated bool)

	// Subscribe registers a handler under an id for later removal.
	Subscribe(id string, handler Handler) error

	// Unsubscribe removes a subscription by id.
	Unsubscribe(id string) error

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// InMemoryBus implements Bus with synchronous in-process dispatch.
//
// Handlers run on the publisher's goroutine while the dispatch lock is held,
// which makes delivery order equal publish order for every subscriber.
// Handlers must not publish to the bus from within a callback.
type InMemoryBus struct {
	mu   sync.Mutex
	subs []*subscription
}

// NewInMemoryBus creates a new in-memory update bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{}
}

// Added broadcasts newly arrived messages for a conversation.
func (b *InMemoryBus) Added(messages []models.Message, peer models.Peer) {
	if len(messages) == 0 {
		return
	}
	b.publish(models.Update{
		Kind:     models.UpdateKindAdd,
		Peer:     peer,
		Messages: messages,
	})
}

// Updated broadcasts an in-place change to one message.
func (b *InMemoryBus) Updated(message models.Message, peer models.Peer, animated bool) {
	b.publish(models.Update{
		Kind:     models.UpdateKindUpdate,
		Peer:     peer,
		Message:  &message,
		Animated: animated,
	})
}

// Deleted broadcasts removal of messages by per-conversation id.
func (b *InMemoryBus) Deleted(messageIDs []int64, peer models.Peer) {
	if len(messageIDs) == 0 {
		return
	}
	b.publish(models.Update{
		Kind:       models.UpdateKindDelete,
		Peer:       peer,
		MessageIDs: messageIDs,
	})
}

// Reload signals that a conversation's local history changed wholesale.
func (b *InMemoryBus) Reload(peer models.Peer, animated bool) {
	b.publish(models.Update{
		Kind:     models.UpdateKindReload,
		Peer:     peer,
		Animated: animated,
	})
}

func (b *InMemoryBus) publish(update models.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.handler(update)
	}
}

// Subscribe registers a handler under an id for later removal.
func (b *InMemoryBus) Subscribe(id string, handler Handler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if sub.id == id {
			return ErrSubscriptionExists
		}
	}

	b.subs = append(b.subs, &subscription{id: id, handler: handler})
	return nil
}

// Unsubscribe removes a subscription by id.
func (b *InMemoryBus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

// SubscriberCount returns the number of active subscribers.
func (b *InMemoryBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close removes all subscriptions.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// Errors for bus operations.
var (
	ErrInvalidSubscriptionID = &BusError{Message: "subscription ID is required"}
	ErrNilHandler            = &BusError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &BusError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &BusError{Message: "subscription not found"}
)

// BusError represents an error from bus operations.
type BusError struct {
	Message string
}

func (e *BusError) Error() string {
	return e.Message
}

package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	perrors "git.home.luguber.info/inful/pagepub/internal/errors"
)

// Bus is a small, typed, in-process event bus for publish orchestration.
//
// Design goals:
//   - Typed subscriptions (via generics)
//   - Per-subscriber FIFO delivery (Publish blocks until delivered or ctx canceled,
//     so events arrive in publish order and are never coalesced)
//   - Clean shutdown (Close closes all subscription channels)
//
// It is intentionally not durable; collaborator progress events stay inside
// the single pagepub process.
type Bus struct {
	mu        sync.RWMutex
	subs      map[reflect.Type]map[uint64]*subscriber
	nextID    atomic.Uint64
	isClosed  atomic.Bool
	closeOnce sync.Once
}

type subscriber struct {
	send  func(ctx context.Context, evt any) error
	close func()
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[reflect.Type]map[uint64]*subscriber),
	}
}

// Subscribe registers a subscription for events of type T.
//
// If T is an interface, published events whose concrete type implements T will be delivered.
// For concrete T, events are delivered only when the concrete type matches exactly.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	eventType := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	if b.isClosed.Load() {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID.Add(1)

	var closeOnce sync.Once
	closeChannel := func() {
		closeOnce.Do(func() {
			close(ch)
		})
	}

	var unsubOnce sync.Once
	unsubscribe := func() {
		unsubOnce.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if typeSubs, ok := b.subs[eventType]; ok {
				delete(typeSubs, id)
				if len(typeSubs) == 0 {
					delete(b.subs, eventType)
				}
			}

			closeChannel()
		})
	}

	sub := &subscriber{
		send: func(ctx context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return perrors.New(perrors.CategoryInternal, perrors.SeverityError, "event type mismatch").
					WithContext("expected", eventType.String()).
					WithContext("actual", reflect.TypeOf(evt).String())
			}

			select {
			case ch <- v:
				return nil
			case <-ctx.Done():
				return perrors.Wrap(ctx.Err(), perrors.CategoryRuntime, perrors.SeverityWarning, "event publish canceled").
					WithContext("event_type", eventType.String())
			}
		},
		close: func() {
			closeChannel()
		},
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed.Load() {
		closeChannel()
		return ch, func() {}
	}

	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[uint64]*subscriber)
	}
	b.subs[eventType][id] = sub

	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers for events of type T.
//
// This is primarily intended for tests and diagnostics.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}

	eventType := reflect.TypeFor[T]()

	b.mu.RLock()
	defer b.mu.RUnlock()

	if typeSubs, ok := b.subs[eventType]; ok {
		return len(typeSubs)
	}
	return 0
}

// Publish delivers an event to all matching subscribers.
//
// Backpressure: Publish blocks until each subscriber has accepted the event, or the
// provided context is canceled.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return perrors.New(perrors.CategoryValidation, perrors.SeverityError, "event cannot be nil")
	}
	if ctx == nil {
		return perrors.New(perrors.CategoryValidation, perrors.SeverityError, "context cannot be nil")
	}
	if b.isClosed.Load() {
		return perrors.New(perrors.CategoryRuntime, perrors.SeverityError, "event bus is closed")
	}

	concreteType := reflect.TypeOf(evt)

	b.mu.RLock()
	var targets []*subscriber
	for subType, typeSubs := range b.subs {
		if subType == concreteType || (subType.Kind() == reflect.Interface && concreteType.Implements(subType)) {
			for _, sub := range typeSubs {
				targets = append(targets, sub)
			}
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.send(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down the bus and closes all subscription channels.
// Publish after Close returns an error; Subscribe after Close returns a closed channel.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.isClosed.Store(true)

		b.mu.Lock()
		defer b.mu.Unlock()

		for _, typeSubs := range b.subs {
			for _, sub := range typeSubs {
				sub.close()
			}
		}
		b.subs = make(map[reflect.Type]map[uint64]*subscriber)
	})
}

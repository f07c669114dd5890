// Package eventbus delivers in-process domain events keyed by Go type.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// EventBus delivers events to subscribed handlers.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType reflect.Type, handler EventHandler) (unsubscribe func())
}

var (
	ErrNilEvent         = errors.New("eventbus: nil event")
	ErrInvalidEventType = errors.New("eventbus: invalid event type")
)

type subscription struct {
	id      uint64
	handler EventHandler
}

// InMemoryBus delivers events synchronously, in subscription order. Every
// handler runs even when an earlier one fails or panics.
type InMemoryBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[reflect.Type][]subscription
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[reflect.Type][]subscription)}
}

// Publish dispatches event to the handlers of its type. Pointer events are
// routed to the pointee type. Handler failures are joined.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	eventType := TypeOf(event)
	if eventType == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[eventType]...)
	b.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := deliver(ctx, sub.handler, event); err != nil {
			errs = append(errs, fmt.Errorf("eventbus: %s: %w", eventType, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler for eventType and returns a func removing it.
func (b *InMemoryBus) Subscribe(eventType reflect.Type, handler EventHandler) func() {
	if eventType == nil || handler == nil {
		return func() {}
	}
	for eventType.Kind() == reflect.Pointer {
		eventType = eventType.Elem()
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[eventType]
			for i, sub := range subs {
				if sub.id == id {
					b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

func deliver(ctx context.Context, handler EventHandler, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// TypeOf returns the routing type of an event, with pointers stripped. A
// nil event or a nil pointer yields nil.
func TypeOf(event any) reflect.Type {
	if event == nil {
		return nil
	}
	v := reflect.ValueOf(event)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Type()
}

// SubscribeTyped registers a handler that receives T by value. Pointer
// events of *T are dereferenced.
func SubscribeTyped[T any](bus EventBus, handler func(context.Context, T) error) func() {
	if bus == nil || handler == nil {
		return func() {}
	}
	return bus.Subscribe(reflect.TypeOf((*T)(nil)).Elem(), func(ctx context.Context, event any) error {
		switch v := event.(type) {
		case T:
			return handler(ctx, v)
		case *T:
			return handler(ctx, *v)
		}
		return ErrInvalidEventType
	})
}

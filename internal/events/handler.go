// internal/events/handler.go
package events

import (
	"context"
	"sync"
)

// Handler processes events of a specific type. Handle runs on the bus
// goroutine and must not block for long.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// On subscribes fn to events of type t whose concrete type is T. Events of
// another concrete type are skipped.
func On[T Event](b *Bus, t EventType, fn func(context.Context, T) error) Subscription {
	return b.Subscribe(t, HandlerFunc(func(ctx context.Context, ev Event) error {
		typed, ok := ev.(T)
		if !ok {
			return nil
		}
		return fn(ctx, typed)
	}))
}

type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id   string
	bus  *Bus
	typ  EventType
	once sync.Once
}

// Unsubscribe is idempotent.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.unsubscribe(s.id, s.typ) })
}

// Package events implements the typed publish/subscribe substrate of the
// engine. It offers two delivery modes: fan-out (listener failures are
// isolated and logged) and sequential (the first failure aborts delivery
// and propagates, used for the cancellable pre-navigation phase).
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/aretw0/sherpa/pkg/flow"
)

// Listener handles one published event. Errors returned from fan-out
// delivery are logged; errors from sequential delivery propagate.
type Listener func(ctx context.Context, ev flow.Event) error

type subscription struct {
	fn  Listener
	key uintptr
}

// Bus routes events to listeners keyed by event type. The set of valid
// types is fixed at construction; subscribing to anything else is a
// programming error surfaced immediately.
type Bus struct {
	mu        sync.RWMutex
	listeners map[flow.EventType][]*subscription
	logger    *slog.Logger
}

// NewBus creates a bus accepting the given event types. With no types it
// accepts the full engine event set.
func NewBus(logger *slog.Logger, types ...flow.EventType) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if len(types) == 0 {
		types = flow.EventTypes()
	}
	listeners := make(map[flow.EventType][]*subscription, len(types))
	for _, t := range types {
		listeners[t] = nil
	}
	return &Bus{
		listeners: listeners,
		logger:    logger,
	}
}

// listenerKey identifies a func value, not its code. Closures built from
// the same literal share code but carry distinct captured state, so each
// gets its own key; copying one func value around yields the same key.
func listenerKey(fn Listener) uintptr {
	return uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&fn)))
}

// Subscribe registers a listener and returns an idempotent unsubscribe
// function. Registering the same func value twice for one event type is
// coalesced to a single registration; distinct closures are distinct
// listeners even when they come from the same function literal.
func (b *Bus) Subscribe(t flow.EventType, fn Listener) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("nil listener for %q", t)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.listeners[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", flow.ErrUnknownEventType, t)
	}

	key := listenerKey(fn)
	var sub *subscription
	for _, s := range subs {
		if s.key == key {
			sub = s
			break
		}
	}
	if sub == nil {
		sub = &subscription{fn: fn, key: key}
		b.listeners[t] = append(subs, sub)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.unsubscribe(t, sub)
		})
	}, nil
}

func (b *Bus) unsubscribe(t flow.EventType, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.listeners[t]
	for i, s := range subs {
		if s == sub {
			b.listeners[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// HasListeners reports whether anything is subscribed to the event type.
func (b *Bus) HasListeners(t flow.EventType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[t]) > 0
}

func (b *Bus) snapshot(t flow.EventType) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.listeners[t]
	out := make([]*subscription, len(subs))
	copy(out, subs)
	return out
}

// Publish fans the event out to every listener. A failing listener is
// logged and never affects its siblings or the publisher.
func (b *Bus) Publish(ctx context.Context, t flow.EventType, payload any) {
	ev := flow.Event{Type: t, Timestamp: time.Now().UTC(), Payload: payload}
	for _, sub := range b.snapshot(t) {
		b.deliver(ctx, sub, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, ev flow.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "event listener panicked",
				"event", string(ev.Type), "panic", r)
		}
	}()
	if err := sub.fn(ctx, ev); err != nil {
		b.logger.WarnContext(ctx, "event listener failed",
			"event", string(ev.Type), "err", err)
	}
}

// PublishSequential delivers the event to listeners one at a time,
// awaiting each. The first failure aborts the remaining listeners and
// propagates to the caller.
func (b *Bus) PublishSequential(ctx context.Context, t flow.EventType, payload any) error {
	ev := flow.Event{Type: t, Timestamp: time.Now().UTC(), Payload: payload}
	for _, sub := range b.snapshot(t) {
		if err := sub.fn(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

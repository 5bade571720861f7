// Package events implements a named-event emitter.
//
// Delivery is synchronous: Emit calls listeners in their registration order
// on the emitting goroutine. Handlers may re-enter the emitter, including
// registering or removing listeners and emitting further events.
package events

import "sync"

// Handler receives an event payload.
type Handler func(payload interface{})

type subscription struct {
	handler Handler
	once    bool
	removed bool
}

// Emitter fans events out to listeners by name.
type Emitter struct {
	mu        sync.Mutex
	listeners map[string][]*subscription
}

// NewEmitter creates an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[string][]*subscription),
	}
}

// On registers a handler for the named event.
// The returned function removes the registration.
func (e *Emitter) On(name string, handler Handler) func() {
	return e.subscribe(name, handler, false)
}

// Once registers a handler that is removed after its first invocation.
func (e *Emitter) Once(name string, handler Handler) func() {
	return e.subscribe(name, handler, true)
}

func (e *Emitter) subscribe(name string, handler Handler, once bool) func() {
	sub := &subscription{handler: handler, once: once}
	e.mu.Lock()
	e.listeners[name] = append(e.listeners[name], sub)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		sub.removed = true
		e.compact(name)
	}
}

// Emit delivers the payload to every listener registered for the event,
// in registration order.
func (e *Emitter) Emit(name string, payload interface{}) {
	e.mu.Lock()
	subs := make([]*subscription, 0, len(e.listeners[name]))
	for _, sub := range e.listeners[name] {
		if sub.removed {
			continue
		}
		if sub.once {
			sub.removed = true
		}
		subs = append(subs, sub)
	}
	e.compact(name)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.handler(payload)
	}
}

// compact drops removed subscriptions; callers must hold mu.
func (e *Emitter) compact(name string) {
	subs := e.listeners[name]
	kept := subs[:0]
	for _, sub := range subs {
		if !sub.removed {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, name)
		return
	}
	e.listeners[name] = kept
}

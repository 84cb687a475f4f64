// Package event is a small typed pub/sub bus connecting the map-editing
// surface to the NPC lifecycle sync.
package event

import (
	"reflect"
	"sync"
)

// Bus dispatches events to typed subscribers synchronously, in
// subscription order. Safe for concurrent Emit and Subscribe.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]any)}
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// Emit delivers an event to every handler subscribed to its type.
func Emit[T any](b *Bus, ev T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.RLock()
	handlers := b.handlers[t]
	b.mu.RUnlock()
	for _, h := range handlers {
		h.(func(T))(ev)
	}
}

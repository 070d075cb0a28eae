// Package observe lets stores notify subscribers after each state change.
package observe

import (
	"slices"
	"sync"
)

// Hub fans a value out to registered subscribers. The zero value is ready to use.
type Hub[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
}

// Subscribe registers fn and returns a function that removes it again.
func (h *Hub[T]) Subscribe(fn func(T)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[uint64]func(T))
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers v to every subscriber in registration order. Subscribers run
// on the caller's goroutine, outside the hub lock, so they may unsubscribe.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	if len(h.subs) == 0 {
		h.mu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	fns := make(map[uint64]func(T), len(h.subs))
	for id, fn := range h.subs {
		fns[id] = fn
	}
	h.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		fns[id](v)
	}
}

// Len reports the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

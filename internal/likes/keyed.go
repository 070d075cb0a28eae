package likes

import (
	"context"
	"sync"
)

// keyedLock serializes operations per user id. Slots are dropped once no
// caller holds or waits for them.
type keyedLock struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func (k *keyedLock) acquire(ctx context.Context, key int64) (release func(), err error) {
	k.mu.Lock()
	if k.slots == nil {
		k.slots = make(map[int64]*slot)
	}
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.drop(key, s)
		})
	}, nil
}

func (k *keyedLock) drop(key int64, s *slot) {
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}

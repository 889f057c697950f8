package lock

import (
	"context"
	"sync"
)

type slot struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process Locker backed by one channel semaphore per key.
type Local struct {
	mu    sync.Mutex
	slots map[Key]*slot
}

// NewLocal constructs a Local locker.
func NewLocal() *Local {
	return &Local{slots: make(map[Key]*slot)}
}

// Acquire blocks until every key is held or ctx is done.
func (l *Local) Acquire(ctx context.Context, keys ...Key) (Release, error) {
	ordered := Ordered(keys)
	held := make([]Key, 0, len(ordered))
	for _, k := range ordered {
		s := l.ref(k)
		select {
		case s.ch <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			l.unref(k)
			l.release(held)
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.release(held) })
	}, nil
}

func (l *Local) ref(k Key) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[k]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[k] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[k]
	if !ok {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(l.slots, k)
	}
}

func (l *Local) release(keys []Key) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		s := l.slots[keys[i]]
		l.mu.Unlock()
		if s != nil {
			<-s.ch
		}
		l.unref(keys[i])
	}
}

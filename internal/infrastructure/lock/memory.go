package lock

import (
	"context"
	"sync"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
)

// MemoryLocker serializes work per key inside one process
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	slot chan struct{}
	refs int
}

// NewMemoryLocker creates an in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]*keyLock),
	}
}

// Lock implements port.Locker. It is reentrant for contexts it returned.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	if isHeld(ctx, key) {
		return ctx, noop, nil
	}

	kl := l.acquireRef(key)

	select {
	case kl.slot <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(key, kl)
		return nil, nil, ctx.Err()
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			<-kl.slot
			l.releaseRef(key, kl)
		})
	}

	return withHeld(ctx, key), unlock, nil
}

// Len returns the number of keys currently held or waited on
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *MemoryLocker) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{slot: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *MemoryLocker) releaseRef(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

var _ port.Locker = (*MemoryLocker)(nil)

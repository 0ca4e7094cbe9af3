package session

import (
	"context"
	"sync"
)

// Coordinator serializes work on one session and tells the store when a
// cached copy has gone stale.
type Coordinator interface {
	// Acquire blocks until the caller owns sessionID or ctx is done.
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
	// Generation is the current write generation of sessionID.
	Generation(ctx context.Context, sessionID string) (int64, error)
	// Advance bumps the generation after a committed write.
	Advance(ctx context.Context, sessionID string) (int64, error)
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// keyedLock is a per-key mutex whose entries are dropped when unused.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*lockEntry)}
}

func (k *keyedLock) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.unref(key, e)
		})
	}, nil
}

func (k *keyedLock) unref(key string, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// LocalCoordinator is enough for a single process: the cache is the only copy.
type LocalCoordinator struct {
	locks *keyedLock
}

func NewLocalCoordinator() *LocalCoordinator {
	return &LocalCoordinator{locks: newKeyedLock()}
}

func (c *LocalCoordinator) Acquire(ctx context.Context, sessionID string) (func(), error) {
	return c.locks.acquire(ctx, sessionID)
}

func (c *LocalCoordinator) Generation(context.Context, string) (int64, error) { return 0, nil }

func (c *LocalCoordinator) Advance(context.Context, string) (int64, error) { return 0, nil }

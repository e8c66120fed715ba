// Package lock serializes ingestion runs per data source.
package lock

import (
	"context"
	"sync"
)

// Locker hands out exclusive locks by key. The returned unlock function
// must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Key is the lock key of a data source.
func Key(workspaceID, dataSourceID string) string {
	return workspaceID + "/" + dataSourceID
}

// Local is an in-process keyed lock. The zero value is ready to use.
type Local struct {
	mu   sync.Mutex
	held map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty Local.
func NewLocal() *Local { return &Local{} }

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]*slot)
	}
	s, ok := l.held[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.held[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.held, key)
	}
}

// size reports the number of keys with holders or waiters.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

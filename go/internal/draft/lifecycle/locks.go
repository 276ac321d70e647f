package lifecycle

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// keyedLock serializes work per league inside one process. Entries are
// reference counted and removed once nobody holds or waits for them.
type keyedLock struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*leagueLock
}

type leagueLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[uuid.UUID]*leagueLock)}
}

// Lock blocks until the league's lock is held or ctx is done. The returned
// func releases it and must be called exactly once.
func (k *keyedLock) Lock(ctx context.Context, leagueID uuid.UUID) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[leagueID]
	if !ok {
		l = &leagueLock{ch: make(chan struct{}, 1)}
		k.locks[leagueID] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				k.release(leagueID, l)
			})
		}, nil
	case <-ctx.Done():
		k.release(leagueID, l)
		return nil, ctx.Err()
	}
}

func (k *keyedLock) release(leagueID uuid.UUID, l *leagueLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, leagueID)
	}
}

// size returns the number of leagues with a holder or waiter.
func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

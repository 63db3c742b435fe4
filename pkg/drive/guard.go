package drive

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// writeGuard allows one holder per item ID at a time, and queues the rest in arrival order.
type writeGuard struct {
	mu    sync.Mutex
	items map[ID]*guardEntry
}

type guardEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newWriteGuard() *writeGuard {
	return &writeGuard{
		items: make(map[ID]*guardEntry),
	}
}

// acquire waits for the slot of id. The returned function releases it, and must be called exactly once.
func (g *writeGuard) acquire(ctx context.Context, id ID) (func(), error) {
	g.mu.Lock()
	entry, ok := g.items[id]
	if !ok {
		entry = &guardEntry{sem: semaphore.NewWeighted(1)}
		g.items[id] = entry
	}
	entry.refs++
	g.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		g.drop(id, entry)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			g.drop(id, entry)
		})
	}, nil
}

func (g *writeGuard) drop(id ID, entry *guardEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(g.items, id)
	}
}

// pending returns the number of holders and waiters for id.
func (g *writeGuard) pending(id ID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, ok := g.items[id]; ok {
		return entry.refs
	}
	return 0
}

package inflight

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	token   uint64
	expires time.Time
}

// MemoryGuard is a Guard for a single API instance
type MemoryGuard struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	seq   uint64
	items map[string]memEntry
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryGuard{ttl: ttl, now: time.Now, items: map[string]memEntry{}}
}

func (g *MemoryGuard) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, ok := g.items[key]; ok && now.Before(e.expires) {
		return nil, ErrInFlight
	}
	g.seq++
	token := g.seq
	g.items[key] = memEntry{token: token, expires: now.Add(g.ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			// an expired holder must not drop a newer owner's flag
			if e, ok := g.items[key]; ok && e.token == token {
				delete(g.items, key)
			}
			g.mu.Unlock()
		})
	}, nil
}

package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"optpnl/internal/models"
)

// SnapshotStore persists normalised snapshots between runs.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, key string, snap models.Snapshot) error
	GetSnapshot(ctx context.Context, key string) (models.Snapshot, time.Time, error)
	DeleteSnapshot(ctx context.Context, key string) error
	ClearSnapshots(ctx context.Context) error
}

type cacheEntry struct {
	snap      models.Snapshot
	updatedAt time.Time
}

// Cache holds normalised snapshots keyed by security description. Every read
// and write copies the snapshot, so callers never share pointers with the
// cache or with each other.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	store   SnapshotStore
	maxAge  time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewCache creates a cache. store may be nil for a memory-only cache. Entries
// older than maxAge are ignored; zero keeps entries forever.
func NewCache(store SnapshotStore, maxAge time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		store:   store,
		maxAge:  maxAge,
		now:     time.Now,
		logger:  logger,
	}
}

func (c *Cache) fresh(at time.Time) bool {
	return c.maxAge <= 0 || c.now().Sub(at) <= c.maxAge
}

// Get returns a copy of the snapshot for key, falling back to the persistent
// store on a memory miss.
func (c *Cache) Get(key string) (models.Snapshot, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.fresh(e.updatedAt) {
		return e.snap.Clone(), true
	}

	if c.store == nil {
		return models.Snapshot{}, false
	}
	snap, at, err := c.store.GetSnapshot(context.Background(), key)
	if err != nil || !c.fresh(at) {
		return models.Snapshot{}, false
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{snap: snap.Clone(), updatedAt: at}
	c.mu.Unlock()
	return snap, true
}

// Put stores a copy of snap under key and writes it through to the store.
func (c *Cache) Put(ctx context.Context, key string, snap models.Snapshot) error {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = cacheEntry{snap: snap.Clone(), updatedAt: now}
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.SaveSnapshot(ctx, key, snap.Clone()); err != nil {
		c.logger.Warn().Err(err).Str("security", key).Msg("Failed to persist snapshot")
		return err
	}
	return nil
}

// Invalidate drops key from memory and the store.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	return c.store.DeleteSnapshot(ctx, key)
}

// Rekey invalidates the snapshot of prev when a leg edit (maturity, right,
// strike or root) points it at a different contract. It reports whether
// anything was invalidated.
func (c *Cache) Rekey(ctx context.Context, prev, next models.Leg) (bool, error) {
	if prev.Key() == next.Key() {
		return false, nil
	}
	return true, c.Invalidate(ctx, prev.Key())
}

// Clear empties the cache and the store.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	return c.store.ClearSnapshots(ctx)
}

// Keys returns the keys held in memory, sorted.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package cache

import (
	"sync"

	"worktally/internal/store"
)

// Cache holds the latest reconciled snapshot per project id. It is a
// read-many/write-one mirror of the store's push channel, never a source
// of truth.
type Cache struct {
	mu    sync.Mutex
	snaps map[string]store.Snapshot
}

func New() *Cache {
	return &Cache{snaps: make(map[string]store.Snapshot)}
}

// Apply reconciles an incoming snapshot and reports whether the cached
// value changed. The push channel may deliver duplicates or reorder
// deliveries; versions are issued by the single committing store, so the
// highest version seen is the authoritative latest. A snapshot at or below
// the cached version reports unchanged so callers skip recomputation.
func (c *Cache) Apply(snap store.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.snaps[snap.Project.ID]
	if ok && snap.Version <= cur.Version {
		return false
	}
	c.snaps[snap.Project.ID] = snap
	return true
}

// Get returns the cached snapshot for a project.
func (c *Cache) Get(projectID string) (store.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[projectID]
	return snap, ok
}

// Drop forgets a project, e.g. after administrative deletion.
func (c *Cache) Drop(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, projectID)
}

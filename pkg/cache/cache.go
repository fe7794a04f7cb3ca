// Package cache holds per-path, process-local cache entries: a cached
// stored-entry snapshot (or "absent"), a local write mutex, a local read
// semaphore, and a version counter that lets updates racing with
// invalidations lose safely.
//
// This cache has no eviction policy: it caches small lock-bearing
// metadata records, and every entry lives for as long as its path is
// active.
package cache

import (
	"sync"

	"github.com/marmos91/coordcore/pkg/store"
)

// Entry is the per-path cache record. The zero value is not usable; create
// one via Cache.GetEntry.
type Entry struct {
	// WriteMu serializes local mutation of this path: the local mutex is
	// always taken before the global lock.
	WriteMu sync.Mutex
	// ReadSem is a capacity-1 semaphore held for the lifetime of a local
	// read-lock acquisition; it is released only after the global read
	// lock is released for the calling session.
	ReadSem sync.Mutex

	mu       sync.Mutex
	snapshot *store.StoredEntry
	version  uint64
}

// Snapshot returns the currently cached entry, or nil if absent.
func (e *Entry) Snapshot() (*store.StoredEntry, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot, e.version
}

// Update replaces the cached snapshot with newEntry, but only if the
// cache hasn't already advanced past expectedVersion — a concurrent
// invalidation or newer update wins, so this call simply becomes a no-op
// rather than clobbering it.
func (e *Entry) Update(expectedVersion uint64, newEntry *store.StoredEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.version != expectedVersion {
		return
	}
	e.snapshot = newEntry
	e.version++
}

// Invalidate drops the cached snapshot. The local mutexes are unaffected.
func (e *Entry) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = nil
	e.version++
}

// Cache is the process-wide registry of per-path Entry records.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// GetEntry returns the Entry for path, creating it on first access.
func (c *Cache) GetEntry(path string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		e = &Entry{}
		c.entries[path] = e
	}
	return e
}

// Invalidate drops the cached snapshot for path, if a cache entry exists
// for it. Unlike GetEntry, this does not create one.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	e, ok := c.entries[path]
	c.mu.Unlock()
	if ok {
		e.Invalidate()
	}
}

// Forget removes path's Entry entirely, including its local mutexes. Only
// safe to call once no goroutine can still be holding WriteMu/ReadSem for
// that path (e.g. after the entry is deleted and its session accounting is
// settled).
func (c *Cache) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

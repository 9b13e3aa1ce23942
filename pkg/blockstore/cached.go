package blockstore

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
)

// Cached is a write-through block cache in front of a Store. Entries are keyed
// by the offset a block was read or written at, so callers must address blocks
// by their start offset. A write shorter than a cached block patches the cached
// prefix, which is how header-only updates stay coherent. Cached is safe for
// concurrent use; cached blocks are never modified once shared.
type Cached struct {
	store Store
	lru   *freelru.SyncedLRU[int64, []byte]

	hits   atomic.Uint64
	misses atomic.Uint64
	reads  atomic.Uint64
	writes atomic.Uint64
}

// CacheStats reports cache effectiveness and the I/O that reached the
// underlying store.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Reads  uint64
	Writes uint64
}

// NewCached wraps store with a cache holding up to capacity blocks.
func NewCached(store Store, capacity uint32) (*Cached, error) {
	lru, err := freelru.NewSynced[int64, []byte](capacity, hashOffset)
	if err != nil {
		return nil, err
	}
	return &Cached{store: store, lru: lru}, nil
}

func hashOffset(off int64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(off))
	return uint32(xxhash.Sum64(b[:]))
}

func (c *Cached) ReadAt(p []byte, off int64) (int, error) {
	if block, ok := c.lru.Get(off); ok && len(block) >= len(p) {
		c.hits.Add(1)
		return copy(p, block), nil
	}
	c.misses.Add(1)
	c.reads.Add(1)

	n, err := c.store.ReadAt(p, off)
	if err != nil {
		return n, err
	}
	c.lru.Add(off, append([]byte(nil), p...))
	return n, nil
}

func (c *Cached) WriteAt(p []byte, off int64) (int, error) {
	c.writes.Add(1)
	n, err := c.store.WriteAt(p, off)
	if err != nil {
		c.lru.Remove(off)
		return n, err
	}
	if block, ok := c.lru.Peek(off); ok && len(block) >= len(p) {
		patched := append([]byte(nil), block...)
		copy(patched, p)
		c.lru.Add(off, patched)
		return n, nil
	}
	c.lru.Add(off, append([]byte(nil), p...))
	return n, nil
}

// Purge drops every cached block.
func (c *Cached) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached blocks.
func (c *Cached) Len() int {
	return c.lru.Len()
}

// Stats returns cache statistics.
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Reads:  c.reads.Load(),
		Writes: c.writes.Load(),
	}
}

func (c *Cached) Sync() error {
	return c.store.Sync()
}

func (c *Cached) Close() error {
	c.lru.Purge()
	return c.store.Close()
}

// Package cache provides the in-memory TTL cache shared by the flight,
// route and elevation services. Entries are JSON values in an in-memory
// buntdb keyspace, so per-key TTLs, lazy expiry on read and background
// vacuuming come from the store itself; the wrapper adds the hit/miss
// accounting reported by the stats endpoint. A stored JSON null is a
// present negative entry, distinct from an absent key.
package cache

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/tidwall/buntdb"
)

// Stats is a point-in-time snapshot of cache activity since startup.
// Counters survive Clear.
type Stats struct {
	Keys    int     `json:"keys"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	HitRate float64 `json:"hitRate"`
}

// Cache is an unbounded TTL key-value store safe for concurrent use.
type Cache struct {
	db      *buntdb.DB
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// New opens a fresh in-memory cache.
func New() (*Cache, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Get returns the stored JSON for key. ok reports whether the key was
// present and unexpired; an expired or absent key counts as a miss. A
// negative entry returns the literal JSON null with ok=true.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	var raw string
	err := c.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return json.RawMessage(raw), true
}

// Set marshals value and stores it under key for ttl. A nil value stores
// a negative entry. ttl <= 0 stores without expiry.
func (c *Cache) Set(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var opts *buntdb.SetOptions
	if ttl > 0 {
		opts = &buntdb.SetOptions{Expires: true, TTL: ttl}
	}
	err = c.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(data), opts)
		return err
	})
	if err != nil {
		return err
	}
	c.sets.Add(1)
	return nil
}

// Delete removes key, reporting whether it was present.
func (c *Cache) Delete(key string) bool {
	err := c.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
	if err != nil {
		return false
	}
	c.deletes.Add(1)
	return true
}

// Has reports whether key is present and unexpired without touching the
// hit/miss counters.
func (c *Cache) Has(key string) bool {
	err := c.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(key)
		return err
	})
	return err == nil
}

// Clear drops every entry. Counters are cumulative and not reset.
func (c *Cache) Clear() {
	_ = c.db.Update(func(tx *buntdb.Tx) error {
		return tx.DeleteAll()
	})
}

// Stats returns current counters. HitRate is hits/(hits+misses), zero
// before the first lookup.
func (c *Cache) Stats() Stats {
	var keys int
	_ = c.db.View(func(tx *buntdb.Tx) error {
		n, err := tx.Len()
		if err != nil {
			return err
		}
		keys = n
		return nil
	})

	hits := c.hits.Load()
	misses := c.misses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	return Stats{
		Keys:    keys,
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		HitRate: rate,
	}
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// IsNull reports whether raw is a stored negative entry.
func IsNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

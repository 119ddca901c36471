// Package directory maintains the tenant's member directory and resolves
// free-text person names against it.
package directory

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bdobrica/Sagasu/internal/sagasu/sonar"
)

// DefaultTTL is how long a fetched directory snapshot stays fresh.
const DefaultTTL = 10 * time.Minute

// Fetcher is the slice of the inventory client the cache needs.
type Fetcher interface {
	Paginate(ctx context.Context, path string, params url.Values, maxPages int, fn func(rec gjson.Result) error) error
}

// cacheKey identifies one directory variant.  Different fetch parameters are
// different snapshots: an active-only listing must never be served to a
// caller asking for everyone.
type cacheKey struct {
	maxPages   int
	activeOnly bool
}

// entry holds one populated (or in-flight) snapshot.  The per-entry mutex is
// the population guard: concurrent requests for the same key block on it
// instead of issuing duplicate fetch storms.
type entry struct {
	mu        sync.Mutex
	members   []sonar.Member
	fetchedAt time.Time
}

// Cache memoizes member directory fetches per (maxPages, activeOnly) key with
// a TTL.  It is safe for concurrent use; reads of a populated entry are
// serialized only by the cheap outer map lookup.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration

	mu      sync.Mutex
	entries map[cacheKey]*entry
}

// NewCache builds a Cache around the given fetcher.  ttl <= 0 selects
// DefaultTTL.
func NewCache(fetcher Fetcher, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		entries: make(map[cacheKey]*entry),
	}
}

// Members returns the directory snapshot for the given variant, fetching it
// from the remote API when the cached copy is absent or stale.
func (c *Cache) Members(ctx context.Context, maxPages int, activeOnly bool) ([]sonar.Member, error) {
	key := cacheKey{maxPages: maxPages, activeOnly: activeOnly}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.fetchedAt.IsZero() && time.Since(e.fetchedAt) < c.ttl {
		return e.members, nil
	}

	members, err := c.fetch(ctx, maxPages, activeOnly)
	if err != nil {
		return nil, err
	}
	e.members = members
	e.fetchedAt = time.Now()
	return members, nil
}

// Invalidate drops every cached snapshot.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*entry)
}

// Stats describes the cache for the status endpoint.
type Stats struct {
	Snapshots int `json:"snapshots"`
	Members   int `json:"members"`
}

// CacheStats reports the number of cached snapshots and the total member
// count across them.
func (c *Cache) CacheStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Snapshots: len(c.entries)}
	for _, e := range c.entries {
		// Best-effort: skip entries currently being populated.
		if e.mu.TryLock() {
			s.Members += len(e.members)
			e.mu.Unlock()
		}
	}
	return s
}

func (c *Cache) fetch(ctx context.Context, maxPages int, activeOnly bool) ([]sonar.Member, error) {
	params := url.Values{}
	if activeOnly {
		params.Set("status", "active")
	}

	var members []sonar.Member
	err := c.fetcher.Paginate(ctx, "/members", params, maxPages, func(rec gjson.Result) error {
		members = append(members, sonar.MemberFromJSON(rec))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

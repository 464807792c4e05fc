package search

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"streamhub/work/types"

	"github.com/maypok86/otter/v2"
	"golang.org/x/crypto/blake2b"
)

// Cache holds recent non-streaming search results for a short TTL.
type Cache struct {
	store *otter.Cache[string, Result]
}

// NewCache returns nil when ttl is zero, which disables caching.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		return nil
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	return &Cache{
		store: otter.Must(&otter.Options[string, Result]{
			MaximumSize:      maxEntries,
			ExpiryCalculator: otter.ExpiryWriting[string, Result](ttl),
		}),
	}
}

// CacheKey digests everything that changes the merged result: the normalized query,
// the exact source set in order, and the request flags.
func CacheKey(q Query, sources []types.CatalogSource) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Text)))
	b.WriteByte(0)
	b.WriteString(strconv.FormatBool(q.IncludeAdult))
	b.WriteString(strconv.FormatBool(q.DisableFilter))
	for _, s := range sources {
		b.WriteByte(0)
		b.WriteString(s.Key)
		b.WriteByte('|')
		b.WriteString(s.API)
	}

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached result. Safe on a nil Cache.
func (c *Cache) Get(key string) (Result, bool) {
	if c == nil {
		return Result{}, false
	}
	return c.store.GetIfPresent(key)
}

// Set stores r under key. Safe on a nil Cache.
func (c *Cache) Set(key string, r Result) {
	if c == nil {
		return
	}
	c.store.Set(key, r)
}

// Clear drops every cached result, used after source configuration changes.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.store.InvalidateAll()
}

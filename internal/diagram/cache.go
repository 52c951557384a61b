package diagram

import (
	"math"
	"sort"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheCapacity is the number of diagrams kept before the least
// recently used one is evicted.
const DefaultCacheCapacity = 64

// Cache stores successfully loaded diagrams keyed by id.
// It is not safe for concurrent use; callers must confine access to a single
// goroutine (the reloader's event loop or the Bubble Tea update loop).
//
// Every mutation bumps Generation so observers holding an older snapshot can
// tell the contents changed without comparing entries.
type Cache struct {
	entries    *simplelru.LRU[string, Diagram]
	capacity   int
	generation uint64
	evictions  int
}

// NewCache creates an empty cache holding at most capacity diagrams.
// A capacity of zero or less means unbounded.
func NewCache(capacity int) *Cache {
	c := &Cache{capacity: capacity}
	c.entries = c.newLRU()
	return c
}

func (c *Cache) newLRU() *simplelru.LRU[string, Diagram] {
	size := c.capacity
	if size <= 0 {
		size = math.MaxInt
	}
	l, err := simplelru.NewLRU[string, Diagram](size, func(string, Diagram) {
		c.evictions++
	})
	if err != nil {
		// NewLRU only fails for non-positive sizes, excluded above.
		panic(err)
	}
	return l
}

// Has reports whether id is cached without touching its recency.
func (c *Cache) Has(id string) bool {
	return c.entries.Contains(id)
}

// Get returns the cached diagram for id and marks it recently used.
func (c *Cache) Get(id string) (Diagram, bool) {
	return c.entries.Get(id)
}

// Set stores d under id, replacing any existing entry.
func (c *Cache) Set(id string, d Diagram) {
	c.entries.Add(id, d)
	c.generation++
}

// Clear removes every entry.
func (c *Cache) Clear() {
	// Purge would fire the eviction callback for every entry.
	c.entries = c.newLRU()
	c.generation++
}

// Len returns the number of cached diagrams.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// IDs returns the cached ids in sorted order.
func (c *Cache) IDs() []string {
	ids := c.entries.Keys()
	sort.Strings(ids)
	return ids
}

// Capacity returns the configured bound, or zero when unbounded.
func (c *Cache) Capacity() int {
	if c.capacity <= 0 {
		return 0
	}
	return c.capacity
}

// Generation returns a counter that increases on every Set and Clear.
func (c *Cache) Generation() uint64 {
	return c.generation
}

// Evictions returns how many entries were dropped to honor the capacity.
func (c *Cache) Evictions() int {
	return c.evictions
}

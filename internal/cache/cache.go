// Package cache memoizes answers per session and question.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"multimodal-rag/internal/domain"
)

// DefaultCapacity is the maximum number of cached answers.
const DefaultCapacity = 100

// Key derives the cache key for a session and question. Questions that
// differ only in case or surrounding whitespace share a key.
func Key(session domain.SessionID, question string) string {
	sum := md5.Sum([]byte(session.String() + ":" + strings.ToLower(strings.TrimSpace(question))))
	return hex.EncodeToString(sum[:])
}

// QueryCache is a bounded map evicting the oldest inserted entry first.
// Lookups do not refresh an entry's position.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	entries  *orderedmap.OrderedMap[string, string]
}

// New creates a cache. A non-positive capacity selects DefaultCapacity.
func New(capacity int) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &QueryCache{
		capacity: capacity,
		entries:  orderedmap.New[string, string](),
	}
}

// Get returns the cached answer for session and question.
func (c *QueryCache) Get(session domain.SessionID, question string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(Key(session, question))
}

// Put stores answer. Adding a new key to a full cache first evicts the
// oldest entry; overwriting an existing key keeps its position.
func (c *QueryCache) Put(session domain.SessionID, question, answer string) {
	key := Key(session, question)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries.Get(key); !ok && c.entries.Len() >= c.capacity {
		if oldest := c.entries.Oldest(); oldest != nil {
			c.entries.Delete(oldest.Key)
		}
	}
	c.entries.Set(key, answer)
}

// Len returns the number of cached answers.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Cap returns the configured capacity.
func (c *QueryCache) Cap() int { return c.capacity }

// Clear drops every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.New[string, string]()
}

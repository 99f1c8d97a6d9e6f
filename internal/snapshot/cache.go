// Package snapshot holds the last broadcast payload of every poll task.
package snapshot

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"

	"github.com/btouchard/craftlist/internal/notify"
)

// Cache maps a task's event tag to the raw collection it last broadcast.
// Keys are assigned at task registration; each key is written by one task only.
type Cache struct {
	mu      sync.Mutex
	entries map[notify.Event]json.RawMessage
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[notify.Event]json.RawMessage)}
}

// Set stores a copy of raw under key, replacing any previous value.
func (c *Cache) Set(key notify.Event, raw json.RawMessage) {
	v := bytes.Clone(raw)

	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
}

// Get returns a copy of the value stored under key.
func (c *Cache) Get(key notify.Event) (json.RawMessage, bool) {
	c.mu.Lock()
	v, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Has reports whether key has been seeded.
func (c *Cache) Has(key notify.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Keys returns the seeded keys in lexical order.
func (c *Cache) Keys() []notify.Event {
	c.mu.Lock()
	keys := make([]notify.Event, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of seeded keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

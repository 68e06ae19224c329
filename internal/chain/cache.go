package chain

import (
	"net/url"
	"sync"
)

// timestampCache keeps block timestamps for the newest window blocks seen. The feed polls
// forward, so entries far below the highest block are not asked for again.
type timestampCache struct {
	mu      sync.RWMutex
	window  uint64
	highest uint64
	entries map[uint64]uint64
}

func newTimestampCache(window uint64) *timestampCache {
	if window == 0 {
		window = defaultTimestampWindow
	}
	return &timestampCache{window: window, entries: make(map[uint64]uint64)}
}

func (c *timestampCache) get(block uint64) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.entries[block]
	return ts, ok
}

func (c *timestampCache) put(block, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[block] = ts
	if block <= c.highest {
		return
	}
	c.highest = block
	if uint64(len(c.entries)) <= c.window || c.highest < c.window {
		return
	}
	floor := c.highest - c.window
	for b := range c.entries {
		if b <= floor {
			delete(c.entries, b)
		}
	}
}

func (c *timestampCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// redactURL keeps scheme and host; provider keys often sit in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "rpc endpoint"
	}
	return u.Scheme + "://" + u.Host
}

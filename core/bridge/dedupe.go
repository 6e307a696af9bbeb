package bridge

import (
	bloomFilter "github.com/bits-and-blooms/bloom/v3"
)

// responseCache remembers the encoded responses of the last capacity
// request ids so that broker redeliveries can be answered without running
// the handler again. A bloom filter screens the common case of a fresh id;
// a hit is confirmed against the exact set.
type responseCache struct {
	capacity  int
	filter    *bloomFilter.BloomFilter
	responses map[string][]byte
	order     []string
	evicted   int
}

func newResponseCache(capacity int) *responseCache {
	if capacity <= 0 {
		return nil
	}
	return &responseCache{
		capacity:  capacity,
		filter:    bloomFilter.NewWithEstimates(uint(capacity*4), 0.01),
		responses: make(map[string][]byte, capacity),
	}
}

// lookup returns the cached response for id. A nil cache never hits.
func (c *responseCache) lookup(id string) ([]byte, bool) {
	if c == nil || !c.filter.TestString(id) {
		return nil, false
	}
	b, ok := c.responses[id]
	return b, ok
}

func (c *responseCache) store(id string, payload []byte) {
	if c == nil {
		return
	}
	if _, ok := c.responses[id]; ok {
		c.responses[id] = payload
		return
	}
	if len(c.order) == c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.responses, oldest)
		c.evicted++
	}
	c.order = append(c.order, id)
	c.responses[id] = payload
	c.filter.AddString(id)
	// Evicted ids stay set in the filter; rebuild it once they would
	// noticeably raise the false positive rate.
	if c.evicted >= c.capacity {
		c.filter.ClearAll()
		for _, k := range c.order {
			c.filter.AddString(k)
		}
		c.evicted = 0
	}
}

func (c *responseCache) size() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

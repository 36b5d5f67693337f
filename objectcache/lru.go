package objectcache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/pdbcache/resource"
)

type entryKey struct {
	group string
	key   string
}

type entry struct {
	key       entryKey
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// lruShard is one shard of the MemoryStore.
type lruShard struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[entryKey]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

func newLRUShard(capacity int64, rc *resource.Controller) *lruShard {
	return &lruShard{
		capacity:  capacity,
		items:     make(map[entryKey]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

func (c *lruShard) get(key entryKey, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		if ent.expired(now) {
			c.removeElement(el)
			c.misses.Add(1)
			return nil, false
		}
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		return ent.value, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *lruShard) set(key entryKey, value []byte, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		oldSize := int64(len(ent.value))
		newSize := int64(len(value))
		if newSize > oldSize && !c.rc.TryAcquireMemory(newSize-oldSize) {
			// The shared budget refuses the growth; the stale value must
			// not survive the write.
			c.removeElement(el)
			return
		}
		if newSize < oldSize {
			c.rc.ReleaseMemory(oldSize - newSize)
		}
		c.size += newSize - oldSize
		ent.value = value
		ent.expiresAt = expiresAt
		c.evictList.MoveToFront(el)
		c.evict()
		return
	}

	itemSize := int64(len(value))
	if itemSize > c.capacity {
		return
	}

	for c.size+itemSize > c.capacity {
		el := c.evictList.Back()
		if el == nil {
			break
		}
		c.removeElement(el)
	}

	if !c.rc.TryAcquireMemory(itemSize) {
		return
	}

	el := c.evictList.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
	c.size += itemSize
}

func (c *lruShard) delete(key entryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

func (c *lruShard) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

func (c *lruShard) evict() {
	for c.size > c.capacity && c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

func (c *lruShard) removeElement(el *list.Element) {
	c.evictList.Remove(el)
	ent := el.Value.(*entry)
	delete(c.items, ent.key)
	itemSize := int64(len(ent.value))
	c.size -= itemSize
	c.rc.ReleaseMemory(itemSize)
}

func (c *lruShard) stats() (hits, misses, size int64, entries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits.Load(), c.misses.Load(), c.size, len(c.items)
}

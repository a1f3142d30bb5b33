// internal/codes/cache.go
//
// One-time upload codes.
//
/*
Context
-------
Unauthenticated uploaders prove ownership of a drawing title through a side
channel: they ask for a numeric code, post a public comment of the form
"<code>: <title>", and the upload handler matches the two.  This cache
holds the outstanding codes.

Shape: a bounded TTL cache keyed by caller identity.  One live code per
caller; re-issuing within the TTL returns the same code so a retried
request cannot orphan the comment the user already posted.  Capacity 64 and
a 300-second TTL by default, both set by config.  An LRU spine handles
capacity pressure; a periodic sweep clears expired entries so the map never
holds dead codes between lookups.
*/
package codes

import (
	"container/list"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/inkdeck/gallery/internal/metrics"
)

// Cache is a bounded TTL cache of one-time codes.  Safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	ll   *list.List // MRU at front
	dict map[string]*list.Element

	now func() time.Time // injection point for tests
}

type entry struct {
	key  string
	code uint32
	exp  time.Time
}

// New returns a Cache with the given capacity and per-entry TTL.  Panics on
// capacity < 1.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		panic("codes: capacity must be >= 1")
	}
	return &Cache{
		cap:  capacity,
		ttl:  ttl,
		ll:   list.New(),
		dict: make(map[string]*list.Element, capacity),
		now:  time.Now,
	}
}

// Issue returns the live code for key, minting a fresh one when none
// exists.  Minting may evict the least-recently-used entry under capacity
// pressure.
func (c *Cache) Issue(key string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if ele, hit := c.dict[key]; hit {
		ent := ele.Value.(*entry)
		if now.Before(ent.exp) {
			c.ll.MoveToFront(ele)
			return ent.code, nil
		}
		c.remove(ele)
	}

	code, err := randomCode()
	if err != nil {
		return 0, err
	}
	ele := c.ll.PushFront(&entry{key: key, code: code, exp: now.Add(c.ttl)})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		c.remove(c.ll.Back())
		metrics.CodesEvictedTotal.Inc()
	}
	metrics.CodesIssuedTotal.Inc()
	return code, nil
}

// Lookup returns the live code for key without minting or refreshing.
func (c *Cache) Lookup(key string) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, hit := c.dict[key]
	if !hit {
		return 0, false
	}
	ent := ele.Value.(*entry)
	if !c.now().Before(ent.exp) {
		c.remove(ele)
		metrics.CodesEvictedTotal.Inc()
		return 0, false
	}
	return ent.code, true
}

// Sweep drops every expired entry and reports how many were removed.
// Called periodically from main; Lookup also drops lazily, so the sweep is
// housekeeping rather than correctness.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var dropped int
	for ele := c.ll.Back(); ele != nil; {
		prev := ele.Prev()
		if !now.Before(ele.Value.(*entry).exp) {
			c.remove(ele)
			metrics.CodesEvictedTotal.Inc()
			dropped++
		}
		ele = prev
	}
	return dropped
}

// Len reports current size.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) remove(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.dict, ele.Value.(*entry).key)
}

func randomCode() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

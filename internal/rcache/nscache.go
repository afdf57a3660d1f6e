package rcache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/driftdns/driftdns/internal/dnswire"
)

// NSRecord is one nameserver known for a zone, with an optional cached glue
// address (§4.6).
type NSRecord struct {
	Name      string
	IP        string // empty if glue is not cached
	InsertedAt time.Time
	TTL       time.Duration
}

func (n NSRecord) expired(now time.Time) bool {
	return !now.Before(n.InsertedAt.Add(n.TTL))
}

type nsEntry struct {
	records []NSRecord
	elem    *list.Element
}

// NSCache maps a zone name to the nameservers known for it, looked up by
// longest matching suffix of a target query name (§4.6).
type NSCache struct {
	mu         sync.Mutex
	maxEntries int
	lru        *list.List
	data       map[string]*nsEntry
}

// NewNSCache builds an NSCache bounded at maxEntries (DefaultMaxEntries if
// maxEntries <= 0).
func NewNSCache(maxEntries int) *NSCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &NSCache{
		maxEntries: maxEntries,
		lru:        list.New(),
		data:       map[string]*nsEntry{},
	}
}

// Set replaces the nameserver set known for zoneName.
func (c *NSCache) Set(zoneName string, records []NSRecord) {
	zoneName = dnswire.NormalizeName(zoneName)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing := c.data[zoneName]; existing != nil {
		existing.records = records
		c.lru.MoveToBack(existing.elem)
		return
	}
	e := &nsEntry{records: records}
	e.elem = c.lru.PushBack(zoneName)
	c.data[zoneName] = e
	c.evictOldestLocked()
}

// Lookup finds the longest zone suffix of target present in the cache and
// returns its unexpired nameserver set.
func (c *NSCache) Lookup(target string) (zoneName string, records []NSRecord, ok bool) {
	target = dnswire.NormalizeName(target)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	best := ""
	var bestEntry *nsEntry
	for zn, e := range c.data {
		if !suffixMatch(target, zn) {
			continue
		}
		if len(zn) > len(best) {
			best, bestEntry = zn, e
		}
	}
	if bestEntry == nil {
		return "", nil, false
	}

	live := bestEntry.records[:0:0]
	for _, r := range bestEntry.records {
		if !r.expired(now) {
			live = append(live, r)
		}
	}
	if len(live) == 0 {
		c.lru.Remove(bestEntry.elem)
		delete(c.data, best)
		return "", nil, false
	}
	c.lru.MoveToBack(bestEntry.elem)
	return best, live, true
}

func suffixMatch(target, zone string) bool {
	if target == zone {
		return true
	}
	return strings.HasSuffix(target, "."+zone)
}

func (c *NSCache) evictOldestLocked() {
	for len(c.data) > c.maxEntries {
		front := c.lru.Front()
		if front == nil {
			return
		}
		k := front.Value.(string)
		c.lru.Remove(front)
		delete(c.data, k)
	}
}

// Len reports the current zone count.
func (c *NSCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

package recursive

import (
	"sync"
	"time"

	"github.com/driftdns/driftdns/internal/dnswire"
)

// negativeCache remembers NXDOMAIN results for (qname, qtype), separately
// from rcache.RecordCache: a RecordCache entry means "here is the rrset,"
// which can't represent "this name definitively does not exist" without
// conflating it with a zero-length positive answer. Grounded on the
// teacher's extractSOAMinimum/analyzeCacheDecision RFC 2308 TTL rule, scoped
// to the one RCODE this resolver needs to remember.
type negativeCache struct {
	mu   sync.Mutex
	data map[negKey]time.Time // expiry
}

type negKey struct {
	name string
	typ  uint16
}

func newNegativeCache() *negativeCache {
	return &negativeCache{data: map[negKey]time.Time{}}
}

func (c *negativeCache) get(name string, typ uint16) bool {
	key := negKey{name: dnswire.NormalizeName(name), typ: typ}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	expiry, ok := c.data[key]
	if !ok {
		return false
	}
	if now.After(expiry) {
		delete(c.data, key)
		return false
	}
	return true
}

func (c *negativeCache) set(name string, typ uint16, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if ttl > maxNegativeTTL {
		ttl = maxNegativeTTL
	}
	key := negKey{name: dnswire.NormalizeName(name), typ: typ}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = time.Now().Add(ttl)
}

// extractSOAMinimum returns the MINIMUM field of the first SOA record found
// in authorities, per RFC 2308's use of that field as a negative-caching
// TTL, the same source the teacher's extractSOAMinimum reads from.
func extractSOAMinimum(authorities []dnswire.Record) (time.Duration, bool) {
	for _, rr := range authorities {
		if rr.Type != uint16(dnswire.TypeSOA) {
			continue
		}
		if soa, ok := rr.Data.(dnswire.SOAData); ok {
			return time.Duration(soa.Minimum) * time.Second, true
		}
	}
	return 0, false
}

package recursive

import "time"

// RootHint is one seed nameserver for the root zone. Root hints are
// operator-supplied configuration rather than compiled into the binary
// (spec §9 Open Question, resolved here in favor of configurability).
type RootHint struct {
	Name string
	IP   string
}

// Config controls the iterative-descent engine's per-query and
// whole-resolution budgets (§4.7, §5).
type Config struct {
	RootHints []RootHint

	// QueryTimeout bounds a single attempt against one server.
	QueryTimeout time.Duration
	// TotalTimeout bounds an entire resolution, sideways lookups included.
	TotalTimeout time.Duration
	// MaxAttempts bounds the number of queries (main path plus sideways
	// NS-address lookups) issued during one resolution.
	MaxAttempts int
}

const (
	defaultQueryTimeout = 3 * time.Second
	defaultTotalTimeout = 20 * time.Second
	defaultMaxAttempts  = 16

	// maxCNAMEChain bounds alias-following; exceeding it is a ServFail (§4.7).
	maxCNAMEChain = 8
	// maxDepth bounds total recursion depth, referrals and sideways lookups
	// both counted (§4.7).
	maxDepth = 32
	// maxNegativeTTL caps how long a negative (NXDOMAIN) answer is cached,
	// regardless of the authority's SOA minimum (§4.7).
	maxNegativeTTL = time.Hour
)

func (c Config) withDefaults() Config {
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = defaultQueryTimeout
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = defaultTotalTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// Package zone implements the master-file parser and the validated,
// tree-indexed authoritative zone store (RFC 1035 §5, RFC 1034 §4.3).
//
// A Zone holds exactly one origin's worth of data — this spec scopes
// multi-zone hosting in a single instance out (see SPEC_FULL.md) — indexed
// as a tree keyed by label, descending from the origin. Lookup classifies a
// query into one of Answer, CNAME, NoData, Delegation, or NXDomain per the
// zone-store algorithm.
package zone

import "errors"

// ErrInvalidZone is the sentinel for zone validation failures: missing or
// duplicate SOA, missing origin NS, owner names outside the origin, missing
// mandatory glue, an unsupported RR type at load time, or data found under
// a delegation point that isn't glue. Zone loading is fatal on this error.
var ErrInvalidZone = errors.New("invalid zone")

// ErrParse is the sentinel for master-file syntax errors: bad directives,
// malformed TTLs, missing fields, SOA not first.
var ErrParse = errors.New("zone parse error")

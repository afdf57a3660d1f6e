// Package recursive implements the iterative-descent recursive resolver
// (§4.7): starting from root hints, it follows NS referrals toward the
// authoritative zone for a name, chases CNAMEs, and caches what it learns
// along the way in an internal/rcache.RecordCache and NSCache.
package recursive

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/driftdns/driftdns/internal/dnswire"
	"github.com/driftdns/driftdns/internal/rcache"
	"github.com/google/uuid"
)

// Result is the outcome of one resolution (§4.7).
type Result struct {
	RCode   dnswire.RCode
	Answers []dnswire.Record
	Trace   []TraceEvent
}

type serverCandidate struct {
	name string
	ip   string // empty when the address is not yet known
}

// Resolver drives iterative descent for recursion-desired queries.
type Resolver struct {
	cfg     Config
	records *rcache.RecordCache
	nsCache *rcache.NSCache
	negs    *negativeCache
	inflt   *rcache.Group[string, Result]
	logger  *slog.Logger

	rootServers []serverCandidate

	latencyMu sync.Mutex
	latency   map[string]time.Duration
}

// New builds a Resolver. records and nsCache are the resolver's two shared
// caches (§4.6); the caller constructs and owns them so that a periodic
// sweeper and admin-API stats handler can also reach them.
func New(cfg Config, records *rcache.RecordCache, nsCache *rcache.NSCache, logger *slog.Logger) *Resolver {
	cfg = cfg.withDefaults()
	roots := make([]serverCandidate, 0, len(cfg.RootHints))
	for _, h := range cfg.RootHints {
		roots = append(roots, serverCandidate{name: dnswire.NormalizeName(h.Name), ip: h.IP})
	}
	return &Resolver{
		cfg:         cfg,
		records:     records,
		nsCache:     nsCache,
		negs:        newNegativeCache(),
		inflt:       rcache.NewGroup[string, Result](),
		logger:      logger,
		rootServers: roots,
		latency:     map[string]time.Duration{},
	}
}

// Resolve answers (qname, qtype), collapsing concurrent identical requests
// through a single-flight group (§5).
func (r *Resolver) Resolve(ctx context.Context, qname string, qtype uint16, tracing bool) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.TotalTimeout)
	defer cancel()

	traceID := uuid.NewString()
	key := fmt.Sprintf("%s|%d", dnswire.NormalizeName(qname), qtype)
	res, err, shared := r.inflt.Do(key, func() (Result, error) {
		return r.resolveChain(ctx, qname, qtype, newResolutionState(tracing))
	})
	if shared {
		r.logger.Debug("recursive resolve joined in-flight query", "trace_id", traceID, "qname", qname, "qtype", qtype)
	}
	return res, err
}

// resolveChain handles CNAME following on top of descend: each hop may
// land the query at a different best-known zone, so the NS-descent state
// (attempts, depth, trace) is threaded through but the zone lookup restarts
// fresh per hop.
func (r *Resolver) resolveChain(ctx context.Context, qname string, qtype uint16, st *resolutionState) (Result, error) {
	current := dnswire.NormalizeName(qname)
	var chain []dnswire.Record

	for hop := 0; ; hop++ {
		if hop > maxCNAMEChain {
			st.logf("cname chain exceeded %d hops", maxCNAMEChain)
			return Result{RCode: dnswire.RCodeServFail, Trace: st.trace}, nil
		}

		if rrset, ok := r.records.Get(current, qtype); ok {
			st.logf("cache hit %s/%d", current, qtype)
			return Result{RCode: dnswire.RCodeNoError, Answers: append(append([]dnswire.Record{}, chain...), rrset.RData...), Trace: st.trace}, nil
		}
		if r.negs.get(current, qtype) {
			st.logf("negative cache hit %s/%d", current, qtype)
			return Result{RCode: dnswire.RCodeNXDomain, Trace: st.trace}, nil
		}
		if qtype != uint16(dnswire.TypeCNAME) {
			if crrset, ok := r.records.Get(current, uint16(dnswire.TypeCNAME)); ok && len(crrset.RData) > 0 {
				chain = append(chain, crrset.RData...)
				target, ok := crrset.RData[0].Data.(string)
				if !ok {
					return Result{RCode: dnswire.RCodeServFail, Trace: st.trace}, nil
				}
				current = dnswire.NormalizeName(target)
				continue
			}
		}

		answers, rcode, err := r.descend(ctx, current, qtype, st)
		if err != nil {
			return Result{RCode: dnswire.RCodeServFail, Trace: st.trace}, err
		}
		switch rcode {
		case dnswire.RCodeNXDomain, dnswire.RCodeServFail:
			return Result{RCode: rcode, Trace: st.trace}, nil
		}

		if len(answers) > 0 && dnswire.RecordType(answers[0].Type) == dnswire.TypeCNAME && qtype != uint16(dnswire.TypeCNAME) {
			chain = append(chain, answers...)
			target, ok := answers[0].Data.(string)
			if !ok {
				return Result{RCode: dnswire.RCodeServFail, Trace: st.trace}, nil
			}
			current = dnswire.NormalizeName(target)
			continue
		}
		return Result{RCode: dnswire.RCodeNoError, Answers: append(chain, answers...), Trace: st.trace}, nil
	}
}

// descend performs the NS-referral iterative descent for one (qname, qtype)
// pair: pick the best known zone, query a server for it, and either return a
// terminal result or follow a referral to a more specific zone (§4.7 steps
// 2-6).
func (r *Resolver) descend(ctx context.Context, qname string, qtype uint16, st *resolutionState) ([]dnswire.Record, dnswire.RCode, error) {
outer:
	for {
		if st.depth >= maxDepth {
			st.logf("depth guard exceeded (%d)", maxDepth)
			return nil, dnswire.RCodeServFail, nil
		}
		st.depth++

		zoneName, servers := r.bestZone(qname)
		candidates := r.orderServers(servers)

		var lastErr error
		for _, cand := range candidates {
			if ctx.Err() != nil {
				return nil, dnswire.RCodeServFail, ctx.Err()
			}
			if st.attempts >= r.cfg.MaxAttempts {
				st.logf("attempt budget exhausted (%d)", r.cfg.MaxAttempts)
				return nil, dnswire.RCodeServFail, nil
			}

			ip := cand.ip
			if ip == "" {
				var sidewaysErr error
				ip, sidewaysErr = r.resolveSidewaysA(ctx, cand.name, st)
				if sidewaysErr != nil || ip == "" {
					continue
				}
			}

			st.attempts++
			start := time.Now()
			resp, err := sendQuery(ctx, ip, qname, qtype, r.cfg.QueryTimeout)
			if err != nil {
				lastErr = err
				st.logf("query %s for %s/%d failed: %v", ip, qname, qtype, err)
				continue
			}
			r.recordLatency(ip, time.Since(start))
			st.logf("query %s for %s/%d -> rcode=%d answers=%d authorities=%d", ip, qname, qtype, dnswire.RCodeFromFlags(resp.Header.Flags), len(resp.Answers), len(resp.Authorities))

			rcode := dnswire.RCodeFromFlags(resp.Header.Flags)
			switch rcode {
			case dnswire.RCodeServFail:
				continue
			case dnswire.RCodeNXDomain:
				if minTTL, ok := extractSOAMinimum(resp.Authorities); ok {
					r.negs.set(qname, qtype, minTTL)
				}
				return nil, dnswire.RCodeNXDomain, nil
			case dnswire.RCodeNoError:
				// fall through below
			default:
				continue
			}

			if len(resp.Answers) > 0 {
				r.cacheAnswer(qname, resp.Answers)
				return resp.Answers, dnswire.RCodeNoError, nil
			}
			if isReferral(resp) {
				newZone := r.promoteReferral(resp.Authorities, resp.Additionals)
				if newZone == "" || newZone == zoneName {
					// no progress; try the next candidate instead of looping forever
					continue
				}
				st.logf("referred to zone %q", newZone)
				continue outer
			}
			// NOERROR, empty answer, no NS referral: authoritative NODATA.
			return nil, dnswire.RCodeNoError, nil
		}
		if lastErr != nil {
			st.logf("no server for zone %q responded: %v", zoneName, lastErr)
		}
		return nil, dnswire.RCodeServFail, nil
	}
}

// resolveSidewaysA resolves the A record for an NS name whose address is
// not yet known, sharing the caller's attempt/depth budget (§4.7 step 3).
func (r *Resolver) resolveSidewaysA(ctx context.Context, name string, st *resolutionState) (string, error) {
	if rrset, ok := r.records.Get(name, uint16(dnswire.TypeA)); ok {
		for _, rr := range rrset.RData {
			if ip, ok := rr.IPv4(); ok {
				return ip, nil
			}
		}
	}
	answers, rcode, err := r.descend(ctx, name, uint16(dnswire.TypeA), st)
	if err != nil || rcode != dnswire.RCodeNoError {
		return "", err
	}
	for _, rr := range answers {
		if ip, ok := rr.IPv4(); ok {
			return ip, nil
		}
	}
	return "", nil
}

// bestZone returns the longest known suffix zone for qname and its servers,
// falling back to the configured root hints (§4.7 step 2).
func (r *Resolver) bestZone(qname string) (string, []serverCandidate) {
	if zoneName, nsRecords, ok := r.nsCache.Lookup(qname); ok {
		out := make([]serverCandidate, 0, len(nsRecords))
		for _, ns := range nsRecords {
			ip := ns.IP
			if ip == "" {
				if rrset, ok := r.records.Get(ns.Name, uint16(dnswire.TypeA)); ok {
					for _, rr := range rrset.RData {
						if addr, ok := rr.IPv4(); ok {
							ip = addr
							break
						}
					}
				}
			}
			out = append(out, serverCandidate{name: ns.Name, ip: ip})
		}
		if len(out) > 0 {
			return zoneName, out
		}
	}
	return "", r.rootServers
}

// orderServers prefers candidates with a known, recently-fast address
// (§4.7 step 3: "order attempts by shortest known latency if observed,
// otherwise randomized").
func (r *Resolver) orderServers(in []serverCandidate) []serverCandidate {
	out := append([]serverCandidate{}, in...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	r.latencyMu.Lock()
	defer r.latencyMu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		li, oki := r.latency[out[i].ip]
		lj, okj := r.latency[out[j].ip]
		if oki != okj {
			return oki
		}
		return li < lj
	})
	return out
}

func (r *Resolver) recordLatency(ip string, d time.Duration) {
	r.latencyMu.Lock()
	defer r.latencyMu.Unlock()
	r.latency[ip] = d
}

// isReferral reports whether resp is a non-authoritative referral: an empty
// answer section with an authority section made up entirely of NS records,
// the same delegation signature the classmarkets resolver's isDelegation
// checks for.
func isReferral(resp dnswire.Packet) bool {
	if len(resp.Answers) > 0 || len(resp.Authorities) == 0 {
		return false
	}
	for _, rr := range resp.Authorities {
		if rr.Type != uint16(dnswire.TypeNS) {
			return false
		}
	}
	return true
}

// promoteReferral records the referred-to zone's NS set in the NS cache and
// promotes matching glue A records from additionals into the record cache
// (§4.7 step 5). It returns the new zone name, or "" if the authority
// section carried no NS records.
func (r *Resolver) promoteReferral(authorities, additionals []dnswire.Record) string {
	now := time.Now()
	glue := map[string]string{}
	for _, rr := range additionals {
		if ip, ok := rr.IPv4(); ok {
			glue[dnswire.NormalizeName(rr.Name)] = ip
			r.records.Set(rr.Name, uint16(dnswire.TypeA), rcache.CachedRRSet{
				RData: []dnswire.Record{rr}, Class: rr.Class, InsertedAt: now, TTL: time.Duration(rr.TTL) * time.Second,
			})
		}
	}

	var zoneName string
	var nsRecords []rcache.NSRecord
	for _, rr := range authorities {
		if rr.Type != uint16(dnswire.TypeNS) {
			continue
		}
		zoneName = dnswire.NormalizeName(rr.Name)
		target, ok := rr.Data.(string)
		if !ok {
			continue
		}
		nsRecords = append(nsRecords, rcache.NSRecord{
			Name: target, IP: glue[dnswire.NormalizeName(target)], InsertedAt: now, TTL: time.Duration(rr.TTL) * time.Second,
		})
	}
	if zoneName != "" && len(nsRecords) > 0 {
		r.nsCache.Set(zoneName, nsRecords)
	}
	return zoneName
}

// cacheAnswer stores a terminal answer rrset, using the minimum TTL across
// its records (grounded on the teacher's findMinimumTTL).
func (r *Resolver) cacheAnswer(qname string, answers []dnswire.Record) {
	if len(answers) == 0 {
		return
	}
	minTTL := answers[0].TTL
	for _, rr := range answers[1:] {
		if rr.TTL < minTTL {
			minTTL = rr.TTL
		}
	}
	r.records.Set(qname, answers[0].Type, rcache.CachedRRSet{
		RData: answers, Class: answers[0].Class, InsertedAt: time.Now(), TTL: time.Duration(minTTL) * time.Second,
	})
}

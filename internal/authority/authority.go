// Package authority implements the authoritative responder (§4.5): it
// takes a decoded query and a hosted zone set and composes a wire-ready
// response by running the zone store's lookup algorithm (§4.4) and
// assembling Answer/Authority/Additional sections.
package authority

import (
	"log/slog"

	"github.com/driftdns/driftdns/internal/dnswire"
	"github.com/driftdns/driftdns/internal/zone"
)

// maxCNAMEHops bounds CNAME chasing within a single zone (§4.5): beyond
// this many hops, composition stops silently and returns what has been
// accumulated rather than erroring.
const maxCNAMEHops = 8

// Responder answers queries from a fixed set of hosted zones.
type Responder struct {
	zones  []*zone.Zone
	logger *slog.Logger
}

// NewResponder builds a Responder over zones, sorted by origin length
// descending so the most specific hosted zone matches first.
func NewResponder(zones []*zone.Zone, logger *slog.Logger) *Responder {
	sorted := make([]*zone.Zone, len(zones))
	copy(sorted, zones)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j].Origin) > len(sorted[j-1].Origin); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{zones: sorted, logger: logger}
}

// Hosts reports whether qname falls under any zone this Responder serves.
func (r *Responder) Hosts(qname string) bool {
	return r.findZone(qname) != nil
}

func (r *Responder) findZone(qname string) *zone.Zone {
	for _, z := range r.zones {
		if z.ContainsName(qname) {
			return z
		}
	}
	return nil
}

// Respond composes a full response packet for req. It first applies its own
// §4.5 step-1 check (opcode QUERY, exactly one question, class IN) and
// answers NotImp or FormErr when that fails. If qname is not hosted here, the
// caller should not have routed the query to this Responder in the first
// place; Respond returns a Refused response as a defensive fallback.
func (r *Responder) Respond(req dnswire.Packet) dnswire.Packet {
	if rcode, bad := validate(req); bad {
		return errorResponse(req, rcode)
	}

	q := req.Questions[0]
	z := r.findZone(q.Name)
	if z == nil {
		return refused(req, q)
	}

	answers, aa, delegation := r.chase(z, q)
	authorities, additionals := authorityAndAdditional(z, delegation, answers)

	flags := dnswire.QRFlag | (req.Header.Flags & dnswire.RDFlag)
	if aa {
		flags |= dnswire.AAFlag
	}
	rcode := dnswire.RCodeNoError
	if len(answers) == 0 && !hasLocalData(z, q.Name) {
		rcode = dnswire.RCodeNXDomain
	}
	flags |= uint16(rcode) & dnswire.RCodeMask

	return dnswire.Packet{
		Header:      dnswire.Header{ID: req.Header.ID, Flags: flags, QDCount: 1},
		Questions:   []dnswire.Question{q},
		Answers:     answers,
		Authorities: authorities,
		Additionals: additionals,
	}
}

// chase runs the §4.4 lookup and follows CNAME chains within z, up to
// maxCNAMEHops. aa reports whether the final result reflects local zone
// data (true for Answer/CNAME/NoData/NXDomain) as opposed to a delegation.
// delegation is non-nil whenever chase stopped at a delegation — either a
// direct delegation query, or a CNAME chain that crossed into one — and is
// the LookupResult at the name where that delegation was actually found,
// not the original question name.
func (r *Responder) chase(z *zone.Zone, q dnswire.Question) (answers []dnswire.Record, aa bool, delegation *zone.LookupResult) {
	name := q.Name
	seen := map[string]bool{}

	for hop := 0; hop <= maxCNAMEHops; hop++ {
		res := z.Lookup(name, q.Type)
		switch res.Kind {
		case zone.KindAnswer:
			return append(answers, res.Records...), true, nil
		case zone.KindNoData, zone.KindNXDomain:
			return answers, true, nil
		case zone.KindDelegation:
			// A delegation crossed mid-chase (the CNAME target lies outside
			// this zone's authority) if answers is non-empty; either way,
			// res is the delegation actually encountered, at name, not q.Name.
			if len(answers) > 0 {
				return answers, false, &res
			}
			return nil, false, &res
		case zone.KindCNAME:
			cname := res.Records[0]
			answers = append(answers, cname)
			target, ok := cname.Data.(string)
			if !ok || seen[target] {
				return answers, true, nil
			}
			seen[target] = true
			name = target
			continue
		}
	}
	return answers, true, nil
}

// authorityAndAdditional builds the Authority and Additional sections per
// §4.5: the zone NS set (or SOA for NoData/NXDomain) in Authority, and
// in-zone A records for any Authority names in Additional. When chase
// stopped at a delegation, delegation carries that delegation's own NS/glue
// directly, rather than re-deriving Authority data from the query name
// (which, for a CNAME chased into a delegated subtree, would still just
// resolve back to the CNAME, not the delegation).
func authorityAndAdditional(z *zone.Zone, delegation *zone.LookupResult, answers []dnswire.Record) (authorities, additionals []dnswire.Record) {
	if delegation != nil {
		return delegation.Records, delegation.Glue
	}

	if len(answers) > 0 {
		authorities = z.NS()
	} else if soa, ok := z.SOA(); ok {
		authorities = []dnswire.Record{soa}
	}

	for _, ns := range authorities {
		target, ok := ns.Data.(string)
		if !ok {
			continue
		}
		glueRes := z.Lookup(target, uint16(dnswire.TypeA))
		if glueRes.Kind == zone.KindAnswer {
			additionals = append(additionals, glueRes.Records...)
		}
	}
	return authorities, additionals
}

func hasLocalData(z *zone.Zone, qname string) bool {
	// A name "exists" (for NOERROR/NODATA vs. NXDOMAIN purposes) if it is
	// anywhere in the zone's namespace, regardless of the queried type.
	for _, t := range []uint16{
		uint16(dnswire.TypeA), uint16(dnswire.TypeNS), uint16(dnswire.TypeCNAME),
		uint16(dnswire.TypeSOA), uint16(dnswire.TypePTR), uint16(dnswire.TypeMX),
		uint16(dnswire.TypeTXT), uint16(dnswire.TypeHINFO),
	} {
		switch z.Lookup(qname, t).Kind {
		case zone.KindAnswer, zone.KindCNAME, zone.KindNoData, zone.KindDelegation:
			return true
		}
	}
	return false
}

func refused(req dnswire.Packet, q dnswire.Question) dnswire.Packet {
	return errorResponseWithQuestion(req, dnswire.RCodeRefused, []dnswire.Question{q})
}

// validate applies §4.5 step 1: OPCODE must be QUERY, exactly one question,
// class IN. bad is true when the request should be rejected outright.
func validate(req dnswire.Packet) (rcode dnswire.RCode, bad bool) {
	if dnswire.OpcodeFromFlags(req.Header.Flags) != dnswire.OpcodeQuery {
		return dnswire.RCodeNotImp, true
	}
	if len(req.Questions) != 1 {
		return dnswire.RCodeFormErr, true
	}
	if req.Questions[0].Class != uint16(dnswire.ClassIN) {
		return dnswire.RCodeFormErr, true
	}
	return dnswire.RCodeNoError, false
}

func errorResponse(req dnswire.Packet, rcode dnswire.RCode) dnswire.Packet {
	return errorResponseWithQuestion(req, rcode, req.Questions)
}

func errorResponseWithQuestion(req dnswire.Packet, rcode dnswire.RCode, questions []dnswire.Question) dnswire.Packet {
	flags := dnswire.QRFlag | (req.Header.Flags & dnswire.RDFlag)
	flags |= uint16(rcode) & dnswire.RCodeMask
	return dnswire.Packet{
		Header:    dnswire.Header{ID: req.Header.ID, Flags: flags, QDCount: uint16(len(questions))},
		Questions: questions,
	}
}

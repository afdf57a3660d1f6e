package zone

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/driftdns/driftdns/internal/dnswire"
)

// LookupKind classifies the outcome of a zone lookup (§4.4).
type LookupKind int

const (
	KindAnswer LookupKind = iota
	KindCNAME
	KindNoData
	KindDelegation
	KindNXDomain
)

func (k LookupKind) String() string {
	switch k {
	case KindAnswer:
		return "Answer"
	case KindCNAME:
		return "CNAME"
	case KindNoData:
		return "NoData"
	case KindDelegation:
		return "Delegation"
	case KindNXDomain:
		return "NXDomain"
	default:
		return "Unknown"
	}
}

// LookupResult is the classified outcome of Zone.Lookup.
type LookupResult struct {
	Kind    LookupKind
	Records []dnswire.Record // Answer rrset, the single CNAME, or a Delegation's NS set
	Glue    []dnswire.Record // Delegation glue A records
}

// zoneNode is one tree node, keyed by the label that reaches it from its
// parent. rrsets is keyed by RR type.
type zoneNode struct {
	children     map[string]*zoneNode
	rrsets       map[uint16][]dnswire.Record
	isDelegation bool
}

func newZoneNode() *zoneNode {
	return &zoneNode{children: make(map[string]*zoneNode), rrsets: make(map[uint16][]dnswire.Record)}
}

// Zone is a validated, indexed, single-origin authoritative zone (§3, §4.4).
type Zone struct {
	Origin string
	root   *zoneNode
}

// LoadFile loads and validates a zone from a master file, following
// $INCLUDE directives relative to the file's own directory. Warnings (e.g.
// missing optional glue) are returned alongside a nil error; any violation
// of the §3 invariants is a non-nil error wrapping ErrInvalidZone, fatal to
// startup.
func LoadFile(path string) (*Zone, []string, error) {
	recs, origin, warnings, err := loadRecords(path)
	if err != nil {
		return nil, nil, err
	}
	z, zwarn, err := build(origin, recs)
	if err != nil {
		return nil, nil, err
	}
	return z, append(warnings, zwarn...), nil
}

// ParseText parses zone master-file text directly, for tests and
// programmatic zone construction. Since there is no zone file, $INCLUDE
// paths resolve against the current working directory.
func ParseText(text, origin string) (*Zone, []string, error) {
	ctx := &zoneCtx{}
	var recs []dnswire.Record
	st := &parseState{dir: ".", origin: dnswire.NormalizeName(origin), ctx: ctx}
	if err := parseZoneText(text, st, &recs); err != nil {
		return nil, nil, err
	}
	z, warnings, err := build(st.origin, recs)
	if err != nil {
		return nil, nil, err
	}
	return z, append(ctx.warnings, warnings...), nil
}

func loadRecords(path string) ([]dnswire.Record, string, []string, error) {
	ctx := &zoneCtx{}
	var recs []dnswire.Record
	if err := parseZoneFile(path, "", ctx, &recs); err != nil {
		return nil, "", nil, err
	}
	// The effective origin is whatever $ORIGIN was in force for the first
	// record (the SOA), which parseZoneFile tracked internally; recover it
	// from the SOA record's own owner name.
	if len(recs) == 0 {
		return nil, "", nil, fmt.Errorf("empty zone file: %w", ErrInvalidZone)
	}
	return recs, recs[0].Name, ctx.warnings, nil
}

// build indexes recs into a tree rooted at origin and validates the §3
// invariants.
func build(origin string, recs []dnswire.Record) (*Zone, []string, error) {
	origin = dnswire.NormalizeName(origin)
	if origin == "" {
		return nil, nil, fmt.Errorf("zone has no origin: %w", ErrInvalidZone)
	}
	z := &Zone{Origin: origin, root: newZoneNode()}

	for _, rec := range recs {
		node, err := z.insert(rec)
		if err != nil {
			return nil, nil, err
		}
		if rec.Type == uint16(dnswire.TypeNS) && rec.Name != origin {
			node.isDelegation = true
		}
	}

	warnings, err := z.validate()
	if err != nil {
		return nil, nil, err
	}
	return z, warnings, nil
}

// relativeLabels returns the labels of name below origin, ordered from the
// name's leftmost (most specific) label to its rightmost (closest to
// origin). Returns ok=false if name is not origin and not a descendant of
// it.
func relativeLabels(name, origin string) (labels []string, ok bool) {
	name = dnswire.NormalizeName(name)
	if name == origin {
		return nil, true
	}
	if !strings.HasSuffix(name, "."+origin) {
		return nil, false
	}
	prefix := strings.TrimSuffix(name, "."+origin)
	return strings.Split(prefix, "."), true
}

func (z *Zone) insert(rec dnswire.Record) (*zoneNode, error) {
	labels, ok := relativeLabels(rec.Name, z.Origin)
	if !ok {
		return nil, fmt.Errorf("owner name %q is not under origin %q: %w", rec.Name, z.Origin, ErrInvalidZone)
	}
	node := z.root
	for i := len(labels) - 1; i >= 0; i-- {
		lbl := labels[i]
		child, ok := node.children[lbl]
		if !ok {
			child = newZoneNode()
			node.children[lbl] = child
		}
		node = child
	}
	node.rrsets[rec.Type] = append(node.rrsets[rec.Type], rec)
	return node, nil
}

// findNode looks up the tree node for name, with no delegation shortcut —
// used internally by validation and glue resolution, which need to see
// inside delegated subtrees that Lookup treats as opaque.
func (z *Zone) findNode(name string) (*zoneNode, bool) {
	labels, ok := relativeLabels(name, z.Origin)
	if !ok {
		return nil, false
	}
	node := z.root
	for i := len(labels) - 1; i >= 0; i-- {
		child, ok := node.children[labels[i]]
		if !ok {
			return nil, false
		}
		node = child
	}
	return node, true
}

// Lookup classifies a query for (qname, qtype) against this zone (§4.4).
func (z *Zone) Lookup(qname string, qtype uint16) LookupResult {
	labels, ok := relativeLabels(qname, z.Origin)
	if !ok {
		return LookupResult{Kind: KindNXDomain}
	}

	node := z.root
	idx := len(labels) - 1
	var delegation *zoneNode
	matched := true
	for idx >= 0 {
		child, ok := node.children[labels[idx]]
		if !ok {
			matched = false
			break
		}
		node = child
		idx--
		if node.isDelegation {
			delegation = node
			break
		}
	}

	if delegation != nil {
		return z.delegationResult(delegation)
	}
	if !matched {
		return LookupResult{Kind: KindNXDomain}
	}
	return classify(node, qtype)
}

func classify(node *zoneNode, qtype uint16) LookupResult {
	if rrs := node.rrsets[qtype]; len(rrs) > 0 {
		return LookupResult{Kind: KindAnswer, Records: rrs}
	}
	if qtype != uint16(dnswire.TypeCNAME) {
		if rrs := node.rrsets[uint16(dnswire.TypeCNAME)]; len(rrs) > 0 {
			return LookupResult{Kind: KindCNAME, Records: rrs[:1]}
		}
	}
	return LookupResult{Kind: KindNoData}
}

func (z *Zone) delegationResult(node *zoneNode) LookupResult {
	ns := node.rrsets[uint16(dnswire.TypeNS)]
	return LookupResult{Kind: KindDelegation, Records: ns, Glue: z.glueFor(ns)}
}

// glueFor returns in-zone A records for the NS targets in ns.
func (z *Zone) glueFor(ns []dnswire.Record) []dnswire.Record {
	var glue []dnswire.Record
	for _, rec := range ns {
		target, ok := rec.Data.(string)
		if !ok {
			continue
		}
		node, ok := z.findNode(target)
		if !ok {
			continue
		}
		glue = append(glue, node.rrsets[uint16(dnswire.TypeA)]...)
	}
	return glue
}

// SOA returns the zone's SOA record.
func (z *Zone) SOA() (dnswire.Record, bool) {
	rrs := z.root.rrsets[uint16(dnswire.TypeSOA)]
	if len(rrs) == 0 {
		return dnswire.Record{}, false
	}
	return rrs[0], true
}

// NS returns the zone's origin NS set.
func (z *Zone) NS() []dnswire.Record {
	return z.root.rrsets[uint16(dnswire.TypeNS)]
}

// ContainsName reports whether qname is the origin or a descendant of it.
func (z *Zone) ContainsName(qname string) bool {
	_, ok := relativeLabels(qname, z.Origin)
	return ok
}

// AllRecords walks the whole zone tree and returns every record it holds,
// for diagnostic dumping (cmd/zonecheck). Order is unspecified; callers
// that want a stable order should sort the result themselves.
func (z *Zone) AllRecords() []dnswire.Record {
	var out []dnswire.Record
	var walk func(n *zoneNode)
	walk = func(n *zoneNode) {
		for _, rrset := range n.rrsets {
			out = append(out, rrset...)
		}
		for _, child := range n.children {
			walk(child)
		}
	}
	walk(z.root)
	return out
}

// validate checks the §3 invariants over the built tree and returns
// warnings for non-fatal issues (missing optional glue).
func (z *Zone) validate() ([]string, error) {
	soaRRs := z.root.rrsets[uint16(dnswire.TypeSOA)]
	if len(soaRRs) != 1 {
		return nil, fmt.Errorf("zone must have exactly one SOA at the origin, found %d: %w", len(soaRRs), ErrInvalidZone)
	}
	if len(z.root.rrsets[uint16(dnswire.TypeNS)]) < 1 {
		return nil, fmt.Errorf("zone must have at least one NS at the origin: %w", ErrInvalidZone)
	}

	var warnings []string
	if err := z.validateDelegation(z.root, z.Origin, &warnings); err != nil {
		return nil, err
	}
	return warnings, nil
}

// validateDelegation recursively walks the tree. For each delegation node
// it checks that only NS (+ optional glue A) live at that node, that only A
// (glue) records live anywhere beneath it, and that mandatory glue
// (in-bailiwick NS targets) is present.
func (z *Zone) validateDelegation(node *zoneNode, nodeName string, warnings *[]string) error {
	if node.isDelegation {
		for t := range node.rrsets {
			if t != uint16(dnswire.TypeNS) && t != uint16(dnswire.TypeA) {
				return fmt.Errorf("delegation point %q carries non-NS/A record type %d: %w", nodeName, t, ErrInvalidZone)
			}
		}
		if err := z.checkGlue(node, nodeName, warnings); err != nil {
			return err
		}
		for label, child := range node.children {
			if err := z.validateUnderDelegation(child, label+"."+nodeName); err != nil {
				return err
			}
		}
		return nil
	}
	for label, child := range node.children {
		if err := z.validateDelegation(child, label+"."+nodeName, warnings); err != nil {
			return err
		}
	}
	return nil
}

// validateUnderDelegation ensures every node beneath a delegation point
// carries only glue A records, never other zone data.
func (z *Zone) validateUnderDelegation(node *zoneNode, nodeName string) error {
	for t := range node.rrsets {
		if t != uint16(dnswire.TypeA) {
			return fmt.Errorf("node %q beneath delegation point carries non-glue record type %d: %w", nodeName, t, ErrInvalidZone)
		}
	}
	for label, child := range node.children {
		if err := z.validateUnderDelegation(child, label+"."+nodeName); err != nil {
			return err
		}
	}
	return nil
}

func (z *Zone) checkGlue(delegationNode *zoneNode, delegationName string, warnings *[]string) error {
	for _, rec := range delegationNode.rrsets[uint16(dnswire.TypeNS)] {
		target, ok := rec.Data.(string)
		if !ok {
			continue
		}
		inBailiwick := target == delegationName || strings.HasSuffix(target, "."+delegationName)
		node, found := z.findNode(target)
		hasGlue := found && len(node.rrsets[uint16(dnswire.TypeA)]) > 0
		if inBailiwick && !hasGlue {
			return fmt.Errorf("missing mandatory glue for in-bailiwick NS target %q at delegation %q: %w", target, delegationName, ErrInvalidZone)
		}
		if !inBailiwick && !hasGlue {
			*warnings = append(*warnings, fmt.Sprintf("no glue for out-of-bailiwick NS target %q at delegation %q", target, delegationName))
		}
	}
	return nil
}

// DiscoverZoneFiles returns the sorted list of files in dir, for the
// nameserver config's zones: []string entries that name a directory.
func DiscoverZoneFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

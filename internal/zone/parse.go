package zone

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/driftdns/driftdns/internal/dnswire"
)

// zoneCtx is shared across a zone file and any files it $INCLUDEs: state
// that is global to the zone being built, as opposed to per-file parse
// state (TTL inheritance resets per included file; see parseState).
type zoneCtx struct {
	soaMinimum *uint32
	soaSeen    bool
	warnings   []string
}

// parseState is the per-file parsing context: the current $ORIGIN, the
// directory $INCLUDE paths resolve against, and the TTL-inheritance
// tracking for this file only (RFC 1035 §5.1's owner/TTL-carry-down rule,
// resolved per SPEC_FULL.md: reset on each $INCLUDE'd file).
type parseState struct {
	dir             string
	origin          string
	lastOwner       string
	lastExplicitTTL *uint32
	ctx             *zoneCtx
}

// parseZoneFile reads path and parses it into recs, appending to the
// records accumulated so far. origin is the $ORIGIN in effect when this
// file was reached (via a top-level load or an $INCLUDE override).
func parseZoneFile(path, origin string, ctx *zoneCtx, recs *[]dnswire.Record) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	st := &parseState{dir: filepath.Dir(path), origin: origin, ctx: ctx}
	return parseZoneText(string(b), st, recs)
}

func parseZoneText(text string, st *parseState, recs *[]dnswire.Record) error {
	for _, line := range logicalLines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "$ORIGIN"):
			fields := strings.Fields(line)
			if len(fields) != 2 {
				return fmt.Errorf("malformed $ORIGIN directive: %w", ErrParse)
			}
			st.origin = dnswire.NormalizeName(fields[1])
			continue
		case strings.HasPrefix(upper, "$INCLUDE"):
			fields := strings.Fields(line)
			if len(fields) < 2 || len(fields) > 3 {
				return fmt.Errorf("malformed $INCLUDE directive: %w", ErrParse)
			}
			includeOrigin := st.origin
			if len(fields) == 3 {
				includeOrigin = dnswire.NormalizeName(fields[2])
			}
			includePath := filepath.Join(st.dir, fields[1])
			if err := parseZoneFile(includePath, includeOrigin, st.ctx, recs); err != nil {
				return fmt.Errorf("$INCLUDE %s: %w", fields[1], err)
			}
			continue
		}

		if st.origin == "" {
			return fmt.Errorf("zone data before $ORIGIN is known: %w", ErrParse)
		}

		tokens := strings.Fields(line)
		owner, rest, err := parseOwner(tokens, st.origin, st.lastOwner)
		if err != nil {
			return err
		}
		st.lastOwner = owner

		explicitTTL, haveTTL, class, typ, rdataText, err := parseRRFields(rest)
		if err != nil {
			return err
		}
		typeCode, ok := rrTypeToCode(typ)
		if !ok {
			return fmt.Errorf("unsupported record type %q: %w", typ, ErrInvalidZone)
		}
		if !st.ctx.soaSeen && typeCode != uint16(dnswire.TypeSOA) {
			return fmt.Errorf("first record of a zone must be SOA: %w", ErrParse)
		}

		data, err := transformRData(dnswire.RecordType(typeCode), rdataText, st.origin)
		if err != nil {
			return err
		}

		ttl, err := resolveTTL(explicitTTL, haveTTL, typeCode, data, st)
		if err != nil {
			return err
		}
		if haveTTL {
			v := explicitTTL
			st.lastExplicitTTL = &v
		}
		if typeCode == uint16(dnswire.TypeSOA) {
			soa := data.(dnswire.SOAData)
			st.ctx.soaMinimum = &soa.Minimum
			st.ctx.soaSeen = true
		}

		*recs = append(*recs, dnswire.Record{
			Name:  owner,
			Type:  typeCode,
			Class: class,
			TTL:   ttl,
			Data:  data,
		})
	}
	return nil
}

// resolveTTL applies the inheritance rule: explicit value if given, else the
// most recent explicit TTL seen earlier in this file, else the zone's SOA
// minimum (the SOA record itself falls back to its own minimum).
func resolveTTL(explicit uint32, haveTTL bool, typeCode uint16, data any, st *parseState) (uint32, error) {
	if haveTTL {
		return explicit, nil
	}
	if st.lastExplicitTTL != nil {
		return *st.lastExplicitTTL, nil
	}
	if typeCode == uint16(dnswire.TypeSOA) {
		return data.(dnswire.SOAData).Minimum, nil
	}
	if st.ctx.soaMinimum != nil {
		return *st.ctx.soaMinimum, nil
	}
	return 0, fmt.Errorf("cannot determine TTL: no prior explicit TTL and no SOA minimum known yet: %w", ErrParse)
}

// logicalLines joins parenthesized multi-line records into single logical
// lines and strips ';'-to-end-of-line comments, per the master-file grammar
// (RFC 1035 §5.1).
func logicalLines(text string) []string {
	var (
		buf     []string
		depth   int
		out     []string
		scanner = bufio.NewScanner(strings.NewReader(text))
	)
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		line = strings.TrimRight(line, " \t\r\n")
		if strings.TrimSpace(line) == "" && depth == 0 {
			continue
		}
		depth += strings.Count(line, "(")
		depth -= strings.Count(line, ")")
		buf = append(buf, line)
		if depth <= 0 {
			joined := strings.Join(compactFields(buf), " ")
			buf = buf[:0]
			depth = 0
			joined = strings.NewReplacer("(", " ", ")", " ").Replace(joined)
			joined = strings.TrimSpace(joined)
			if joined != "" {
				out = append(out, joined)
			}
		}
	}
	return out
}

func compactFields(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, s := range lines {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return line[:i]
	}
	return line
}

var ttlRE = regexp.MustCompile(`^(?:\d+[wdhmsWDHMS]?)+$`)

func looksLikeTTL(tok string) bool { return ttlRE.MatchString(strings.TrimSpace(tok)) }

func parseTTL(tok string) (uint32, error) {
	tok = strings.TrimSpace(tok)
	if !ttlRE.MatchString(tok) {
		return 0, fmt.Errorf("invalid TTL %q: %w", tok, ErrParse)
	}
	var total uint64
	num := ""
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c >= '0' && c <= '9' {
			num += string(c)
			continue
		}
		n, err := strconv.ParseUint(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid TTL %q: %w", tok, ErrParse)
		}
		num = ""
		mul, err := ttlUnitMultiplier(c)
		if err != nil {
			return 0, err
		}
		total += n * mul
	}
	if num != "" {
		n, err := strconv.ParseUint(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid TTL %q: %w", tok, ErrParse)
		}
		total += n
	}
	if total > uint64(^uint32(0)) {
		return 0, fmt.Errorf("TTL %q too large: %w", tok, ErrParse)
	}
	return uint32(total), nil
}

func ttlUnitMultiplier(c byte) (uint64, error) {
	switch c | 0x20 { // lowercase
	case 's':
		return 1, nil
	case 'm':
		return 60, nil
	case 'h':
		return 3600, nil
	case 'd':
		return 86400, nil
	case 'w':
		return 604800, nil
	default:
		return 0, fmt.Errorf("unknown TTL unit %q: %w", string(c), ErrParse)
	}
}

func looksLikeClass(tok string) bool { return strings.EqualFold(tok, "IN") }

func looksLikeType(tok string) bool {
	_, ok := rrTypeToCode(strings.ToUpper(tok))
	return ok
}

// parseOwner extracts the owner name, defaulting to lastOwner when the
// first token is itself a TTL/class/type (i.e. the owner was omitted and
// inherited from the previous record line).
func parseOwner(tokens []string, origin, lastOwner string) (string, []string, error) {
	if len(tokens) == 0 {
		return "", nil, fmt.Errorf("empty record line: %w", ErrParse)
	}
	first := tokens[0]
	if looksLikeTTL(first) || looksLikeClass(first) || looksLikeType(first) {
		if lastOwner == "" {
			return "", nil, fmt.Errorf("owner name omitted on first record: %w", ErrParse)
		}
		return lastOwner, tokens, nil
	}
	return qualifyName(first, origin), tokens[1:], nil
}

// qualifyName resolves "@" to origin, and a relative (non-absolute) name to
// name.origin; an absolute (trailing-dot) name is used as-is.
func qualifyName(name, origin string) string {
	name = strings.TrimSpace(name)
	if name == "@" {
		return origin
	}
	if strings.HasSuffix(name, ".") {
		return dnswire.NormalizeName(name)
	}
	if name == "" {
		return origin
	}
	return dnswire.NormalizeName(name + "." + origin)
}

func parseRRFields(rest []string) (ttl uint32, haveTTL bool, class uint16, typ string, rdata string, err error) {
	class = uint16(dnswire.ClassIN)
	idx := 0
	haveClass := false
	for idx < len(rest) {
		tok := rest[idx]
		if !haveTTL && looksLikeTTL(tok) {
			n, e := parseTTL(tok)
			if e != nil {
				return 0, false, 0, "", "", e
			}
			ttl = n
			haveTTL = true
			idx++
			continue
		}
		if !haveClass && looksLikeClass(tok) {
			class = uint16(dnswire.ClassIN)
			haveClass = true
			idx++
			continue
		}
		break
	}
	if idx >= len(rest) {
		return 0, false, 0, "", "", fmt.Errorf("missing record type: %w", ErrParse)
	}
	typ = strings.ToUpper(rest[idx])
	idx++
	if idx >= len(rest) {
		return 0, false, 0, "", "", fmt.Errorf("missing rdata for %s: %w", typ, ErrParse)
	}
	rdata = strings.Join(rest[idx:], " ")
	return ttl, haveTTL, class, typ, rdata, nil
}

func rrTypeToCode(typ string) (uint16, bool) {
	switch strings.ToUpper(typ) {
	case "A":
		return uint16(dnswire.TypeA), true
	case "NS":
		return uint16(dnswire.TypeNS), true
	case "CNAME":
		return uint16(dnswire.TypeCNAME), true
	case "SOA":
		return uint16(dnswire.TypeSOA), true
	case "PTR":
		return uint16(dnswire.TypePTR), true
	case "HINFO":
		return uint16(dnswire.TypeHINFO), true
	case "MX":
		return uint16(dnswire.TypeMX), true
	case "TXT":
		return uint16(dnswire.TypeTXT), true
	default:
		return 0, false
	}
}

func transformRData(typ dnswire.RecordType, rdata, origin string) (any, error) {
	switch typ {
	case dnswire.TypeA:
		fields := strings.Fields(rdata)
		if len(fields) != 1 {
			return nil, fmt.Errorf("A rdata must be a single IPv4 address: %w", ErrParse)
		}
		return parseIPv4(fields[0])
	case dnswire.TypeNS, dnswire.TypeCNAME, dnswire.TypePTR:
		fields := strings.Fields(rdata)
		if len(fields) != 1 {
			return nil, fmt.Errorf("%s rdata must be a single name: %w", typ, ErrParse)
		}
		return qualifyName(fields[0], origin), nil
	case dnswire.TypeMX:
		fields := strings.Fields(rdata)
		if len(fields) != 2 {
			return nil, fmt.Errorf("MX rdata must be '<preference> <exchange>': %w", ErrParse)
		}
		pref, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid MX preference %q: %w", fields[0], ErrParse)
		}
		return dnswire.MXData{Preference: uint16(pref), Exchange: qualifyName(fields[1], origin)}, nil
	case dnswire.TypeSOA:
		return parseSOARData(rdata, origin)
	case dnswire.TypeHINFO:
		cpu, osName, err := parseTwoCharStrings(rdata)
		if err != nil {
			return nil, err
		}
		return dnswire.HINFOData{CPU: cpu, OS: osName}, nil
	case dnswire.TypeTXT:
		return parseTXTStrings(rdata), nil
	default:
		return nil, fmt.Errorf("unsupported record type %d: %w", uint16(typ), ErrInvalidZone)
	}
}

func parseIPv4(s string) ([]byte, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid IPv4 address %q: %w", s, ErrParse)
	}
	out := make([]byte, 4)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid IPv4 address %q: %w", s, ErrParse)
		}
		out[i] = byte(n)
	}
	return out, nil
}

func parseSOARData(rdata, origin string) (dnswire.SOAData, error) {
	fields := strings.Fields(rdata)
	if len(fields) != 7 {
		return dnswire.SOAData{}, fmt.Errorf("SOA rdata must be 'MNAME RNAME SERIAL REFRESH RETRY EXPIRE MINIMUM': %w", ErrParse)
	}
	serial, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return dnswire.SOAData{}, fmt.Errorf("invalid SOA serial %q: %w", fields[2], ErrParse)
	}
	refresh, err := parseTTL(fields[3])
	if err != nil {
		return dnswire.SOAData{}, err
	}
	retry, err := parseTTL(fields[4])
	if err != nil {
		return dnswire.SOAData{}, err
	}
	expire, err := parseTTL(fields[5])
	if err != nil {
		return dnswire.SOAData{}, err
	}
	minimum, err := parseTTL(fields[6])
	if err != nil {
		return dnswire.SOAData{}, err
	}
	return dnswire.SOAData{
		MName:   qualifyName(fields[0], origin),
		RName:   qualifyName(fields[1], origin),
		Serial:  uint32(serial),
		Refresh: refresh,
		Retry:   retry,
		Expire:  expire,
		Minimum: minimum,
	}, nil
}

func parseTwoCharStrings(rdata string) (string, string, error) {
	fields := splitQuotedFields(rdata)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("HINFO rdata must be '<cpu> <os>': %w", ErrParse)
	}
	return fields[0], fields[1], nil
}

func parseTXTStrings(rdata string) []string {
	fields := splitQuotedFields(rdata)
	if len(fields) == 0 {
		return []string{""}
	}
	return fields
}

// splitQuotedFields splits master-file character-string fields, honoring
// double-quoted strings (which may contain spaces) alongside bare tokens.
func splitQuotedFields(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	hasCur := false
	flush := func() {
		if hasCur {
			out = append(out, cur.String())
			cur.Reset()
			hasCur = false
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			hasCur = true
		case c == ' ' || c == '\t':
			if inQuote {
				cur.WriteByte(c)
			} else {
				flush()
			}
		default:
			cur.WriteByte(c)
			hasCur = true
		}
	}
	flush()
	return out
}

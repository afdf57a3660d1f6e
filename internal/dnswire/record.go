package dnswire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Record is a single resource record. Data is type-specific:
//
//   - A: []byte, always 4 bytes
//   - NS/CNAME/PTR: string (a domain name)
//   - SOA: SOAData
//   - MX: MXData
//   - TXT: string, []string, or []byte (raw character-strings)
//   - HINFO: HINFOData
//   - anything else: []byte, the raw RDATA, passed through opaquely
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  any
}

// MXData is the RDATA of an MX record (RFC 1035 §3.3.9).
type MXData struct {
	Preference uint16
	Exchange   string
}

// SOAData is the RDATA of an SOA record (RFC 1035 §3.3.13).
type SOAData struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// HINFOData is the RDATA of a HINFO record (RFC 1035 §3.3.2).
type HINFOData struct {
	CPU string
	OS  string
}

// ParseRecord parses a resource record from msg at *off, advancing *off
// past it. rdlength is validated exactly against the bytes consumed for
// types whose RDATA contains a domain name, since those may themselves use
// compression and so don't have a fixed byte width.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Record{}, err
	}
	if *off+10 > len(msg) {
		return Record{}, fmt.Errorf("truncated record header: %w", ErrFormat)
	}
	rrType := binary.BigEndian.Uint16(msg[*off : *off+2])
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := binary.BigEndian.Uint16(msg[*off+8 : *off+10])
	if rrClass != uint16(ClassIN) {
		return Record{}, fmt.Errorf("unsupported record class %d: %w", rrClass, ErrFormat)
	}
	*off += 10
	start := *off
	if start+int(rdlen) > len(msg) {
		return Record{}, fmt.Errorf("truncated rdata: %w", ErrFormat)
	}
	end := start + int(rdlen)

	var data any
	switch RecordType(rrType) {
	case TypeA:
		if rdlen != 4 {
			return Record{}, fmt.Errorf("A rdata must be 4 bytes, got %d: %w", rdlen, ErrFormat)
		}
		b := make([]byte, 4)
		copy(b, msg[start:end])
		*off = end
		data = b
	case TypeNS, TypeCNAME, TypePTR:
		n, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off != end {
			return Record{}, fmt.Errorf("rdlength mismatch for %s record: %w", RecordType(rrType), ErrFormat)
		}
		data = NormalizeName(n)
	case TypeSOA:
		mname, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		rname, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off+20 > len(msg) {
			return Record{}, fmt.Errorf("truncated SOA rdata: %w", ErrFormat)
		}
		soa := SOAData{
			MName:   NormalizeName(mname),
			RName:   NormalizeName(rname),
			Serial:  binary.BigEndian.Uint32(msg[*off : *off+4]),
			Refresh: binary.BigEndian.Uint32(msg[*off+4 : *off+8]),
			Retry:   binary.BigEndian.Uint32(msg[*off+8 : *off+12]),
			Expire:  binary.BigEndian.Uint32(msg[*off+12 : *off+16]),
			Minimum: binary.BigEndian.Uint32(msg[*off+16 : *off+20]),
		}
		*off += 20
		if *off != end {
			return Record{}, fmt.Errorf("rdlength mismatch for SOA record: %w", ErrFormat)
		}
		data = soa
	case TypeMX:
		if *off+2 > len(msg) {
			return Record{}, fmt.Errorf("truncated MX preference: %w", ErrFormat)
		}
		pref := binary.BigEndian.Uint16(msg[*off : *off+2])
		*off += 2
		ex, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off != end {
			return Record{}, fmt.Errorf("rdlength mismatch for MX record: %w", ErrFormat)
		}
		data = MXData{Preference: pref, Exchange: NormalizeName(ex)}
	case TypeHINFO:
		cpu, n, err := readCharString(msg, *off, end)
		if err != nil {
			return Record{}, err
		}
		*off += n
		osName, n, err := readCharString(msg, *off, end)
		if err != nil {
			return Record{}, err
		}
		*off += n
		if *off != end {
			return Record{}, fmt.Errorf("rdlength mismatch for HINFO record: %w", ErrFormat)
		}
		data = HINFOData{CPU: cpu, OS: osName}
	case TypeTXT:
		var strs []string
		for *off < end {
			s, n, err := readCharString(msg, *off, end)
			if err != nil {
				return Record{}, err
			}
			strs = append(strs, s)
			*off += n
		}
		data = strs
	default:
		b := make([]byte, rdlen)
		copy(b, msg[start:end])
		*off = end
		data = b
	}

	return Record{Name: NormalizeName(name), Type: rrType, Class: rrClass, TTL: ttl, Data: data}, nil
}

func readCharString(msg []byte, off, end int) (string, int, error) {
	if off >= end {
		return "", 0, fmt.Errorf("truncated character-string: %w", ErrFormat)
	}
	l := int(msg[off])
	if off+1+l > end {
		return "", 0, fmt.Errorf("truncated character-string: %w", ErrFormat)
	}
	return string(msg[off+1 : off+1+l]), 1 + l, nil
}

// Marshal serializes rr without name compression.
func (rr Record) Marshal() ([]byte, error) {
	nameWire, err := EncodeName(rr.Name)
	if err != nil {
		return nil, err
	}
	rdata, err := rr.marshalRData()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.Class)
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	return append(out, rdata...), nil
}

// marshalCompressed appends rr to buf, compressing the owner name (and, for
// record types whose RDATA may be compressed, the RDATA name) against
// offsets already recorded for this message.
func (rr Record) marshalCompressed(buf []byte, offsets nameOffsets) ([]byte, error) {
	buf, err := EncodeNameCompressed(buf, rr.Name, offsets)
	if err != nil {
		return nil, err
	}
	fixedAt := len(buf)
	buf = append(buf, make([]byte, 10)...)
	binary.BigEndian.PutUint16(buf[fixedAt:fixedAt+2], rr.Type)
	binary.BigEndian.PutUint16(buf[fixedAt+2:fixedAt+4], rr.Class)
	binary.BigEndian.PutUint32(buf[fixedAt+4:fixedAt+8], rr.TTL)

	rdataStart := len(buf)
	buf, err = rr.marshalRDataCompressed(buf, offsets)
	if err != nil {
		return nil, err
	}
	rdlen := len(buf) - rdataStart
	binary.BigEndian.PutUint16(buf[fixedAt+8:fixedAt+10], uint16(rdlen))
	return buf, nil
}

func (rr Record) marshalRDataCompressed(buf []byte, offsets nameOffsets) ([]byte, error) {
	if !RecordType(rr.Type).Compressible() {
		rdata, err := rr.marshalRData()
		if err != nil {
			return nil, err
		}
		return append(buf, rdata...), nil
	}
	switch RecordType(rr.Type) {
	case TypeNS, TypeCNAME, TypePTR:
		s, ok := rr.Data.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%s rdata must be a non-empty string: %w", RecordType(rr.Type), ErrFormat)
		}
		return EncodeNameCompressed(buf, s, offsets)
	case TypeMX:
		mx, ok := rr.Data.(MXData)
		if !ok {
			return nil, fmt.Errorf("MX rdata must be MXData: %w", ErrFormat)
		}
		pref := make([]byte, 2)
		binary.BigEndian.PutUint16(pref, mx.Preference)
		buf = append(buf, pref...)
		return EncodeNameCompressed(buf, mx.Exchange, offsets)
	case TypeSOA:
		soa, ok := rr.Data.(SOAData)
		if !ok {
			return nil, fmt.Errorf("SOA rdata must be SOAData: %w", ErrFormat)
		}
		var err error
		buf, err = EncodeNameCompressed(buf, soa.MName, offsets)
		if err != nil {
			return nil, err
		}
		buf, err = EncodeNameCompressed(buf, soa.RName, offsets)
		if err != nil {
			return nil, err
		}
		tail := make([]byte, 20)
		binary.BigEndian.PutUint32(tail[0:4], soa.Serial)
		binary.BigEndian.PutUint32(tail[4:8], soa.Refresh)
		binary.BigEndian.PutUint32(tail[8:12], soa.Retry)
		binary.BigEndian.PutUint32(tail[12:16], soa.Expire)
		binary.BigEndian.PutUint32(tail[16:20], soa.Minimum)
		return append(buf, tail...), nil
	default:
		return nil, fmt.Errorf("unreachable: marked compressible but unhandled: %w", ErrFormat)
	}
}

func (rr Record) marshalRData() ([]byte, error) {
	switch RecordType(rr.Type) {
	case TypeA:
		b, ok := rr.Data.([]byte)
		if !ok || len(b) != 4 {
			return nil, fmt.Errorf("A rdata must be 4 bytes: %w", ErrFormat)
		}
		return b, nil
	case TypeNS, TypeCNAME, TypePTR:
		s, ok := rr.Data.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%s rdata must be a non-empty string: %w", RecordType(rr.Type), ErrFormat)
		}
		return EncodeName(s)
	case TypeSOA:
		soa, ok := rr.Data.(SOAData)
		if !ok {
			return nil, fmt.Errorf("SOA rdata must be SOAData: %w", ErrFormat)
		}
		mname, err := EncodeName(soa.MName)
		if err != nil {
			return nil, err
		}
		rname, err := EncodeName(soa.RName)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(mname)+len(rname)+20)
		out = append(out, mname...)
		out = append(out, rname...)
		tail := make([]byte, 20)
		binary.BigEndian.PutUint32(tail[0:4], soa.Serial)
		binary.BigEndian.PutUint32(tail[4:8], soa.Refresh)
		binary.BigEndian.PutUint32(tail[8:12], soa.Retry)
		binary.BigEndian.PutUint32(tail[12:16], soa.Expire)
		binary.BigEndian.PutUint32(tail[16:20], soa.Minimum)
		return append(out, tail...), nil
	case TypeMX:
		mx, ok := rr.Data.(MXData)
		if !ok {
			return nil, fmt.Errorf("MX rdata must be MXData: %w", ErrFormat)
		}
		ex, err := EncodeName(mx.Exchange)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 2+len(ex))
		binary.BigEndian.PutUint16(out[0:2], mx.Preference)
		copy(out[2:], ex)
		return out, nil
	case TypeHINFO:
		hi, ok := rr.Data.(HINFOData)
		if !ok {
			return nil, fmt.Errorf("HINFO rdata must be HINFOData: %w", ErrFormat)
		}
		cpu, err := marshalCharString(hi.CPU)
		if err != nil {
			return nil, err
		}
		osb, err := marshalCharString(hi.OS)
		if err != nil {
			return nil, err
		}
		return append(cpu, osb...), nil
	case TypeTXT:
		return marshalTXT(rr.Data)
	default:
		if b, ok := rr.Data.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("unsupported RR type for serialization: %d: %w", rr.Type, ErrFormat)
	}
}

func marshalCharString(s string) ([]byte, error) {
	b := []byte(s)
	if len(b) > 255 {
		return nil, fmt.Errorf("character-string exceeds 255 bytes: %w", ErrFormat)
	}
	out := make([]byte, 1+len(b))
	out[0] = byte(len(b))
	copy(out[1:], b)
	return out, nil
}

func marshalTXT(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return marshalTXTString(t), nil
	case []string:
		total := 0
		for _, s := range t {
			total += 1 + len(s)
		}
		out := make([]byte, 0, total)
		for _, s := range t {
			b := []byte(s)
			if len(b) > 255 {
				return nil, fmt.Errorf("TXT character-string exceeds 255 bytes: %w", ErrFormat)
			}
			out = append(out, byte(len(b)))
			out = append(out, b...)
		}
		return out, nil
	case []byte:
		return t, nil
	default:
		return nil, fmt.Errorf("TXT rdata must be string, []string, or []byte: %w", ErrFormat)
	}
}

func marshalTXTString(s string) []byte {
	b := []byte(s)
	if len(b) <= 255 {
		out := make([]byte, 1+len(b))
		out[0] = byte(len(b))
		copy(out[1:], b)
		return out
	}
	numChunks := (len(b) + 254) / 255
	out := make([]byte, 0, len(b)+numChunks)
	for i := 0; i < len(b); i += 255 {
		chunk := b[i:]
		if len(chunk) > 255 {
			chunk = chunk[:255]
		}
		out = append(out, byte(len(chunk)))
		out = append(out, chunk...)
	}
	return out
}

// IPv4 returns the dotted-decimal address for an A record.
func (rr Record) IPv4() (string, bool) {
	if RecordType(rr.Type) != TypeA {
		return "", false
	}
	b, ok := rr.Data.([]byte)
	if !ok || len(b) != 4 {
		return "", false
	}
	return net.IPv4(b[0], b[1], b[2], b[3]).String(), true
}

// String names a RecordType for error messages.
func (t RecordType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypeSOA:
		return "SOA"
	case TypePTR:
		return "PTR"
	case TypeHINFO:
		return "HINFO"
	case TypeMX:
		return "MX"
	case TypeTXT:
		return "TXT"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

package dnswire

// DNS header flags and masks (RFC 1035 Section 4.1.1).
//
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|QR|   Opcode  |AA|TC|RD|RA| Z|        RCODE     |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 15 14 13 12 11 10  9  8  7  6  5  4  3  2  1  0
const (
	QRFlag     uint16 = 0x8000 // Query (0) / Response (1)
	OpcodeMask uint16 = 0x7800 // bits 14-11, >>11 for the opcode value
	AAFlag     uint16 = 0x0400 // Authoritative Answer
	TCFlag     uint16 = 0x0200 // Truncation
	RDFlag     uint16 = 0x0100 // Recursion Desired
	RAFlag     uint16 = 0x0080 // Recursion Available
	ZFlag      uint16 = 0x0040 // Reserved, must be zero
	RCodeMask  uint16 = 0x000F // bits 3-0
)

// OpcodeQuery is the only opcode this implementation accepts (RFC 1035 §4.1.1).
const OpcodeQuery uint16 = 0

// RecordType is the closed catalog of resource record types this
// implementation understands (spec §3, §4.2). Types encountered on the wire
// outside this set are preserved opaquely rather than rejected, except
// during authoritative zone load where an unknown type is a fatal error.
type RecordType uint16

const (
	TypeA     RecordType = 1  // IPv4 address
	TypeNS    RecordType = 2  // Authoritative nameserver
	TypeCNAME RecordType = 5  // Canonical name (alias)
	TypeSOA   RecordType = 6  // Start of authority
	TypePTR   RecordType = 12 // Domain name pointer
	TypeHINFO RecordType = 13 // Host information
	TypeMX    RecordType = 15 // Mail exchange
	TypeTXT   RecordType = 16 // Text strings
)

// Compressible reports whether RDATA of this type may itself be compressed
// when encoding (spec §4.1): names embedded in NS/CNAME/PTR/SOA/MX RDATA may
// point into earlier name occurrences; everything else (A, TXT, HINFO) may
// not.
func (t RecordType) Compressible() bool {
	switch t {
	case TypeNS, TypeCNAME, TypePTR, TypeSOA, TypeMX:
		return true
	default:
		return false
	}
}

// RecordClass is the RR class. Only IN is accepted; anything else is a
// FormatError at parse time (spec §3).
type RecordClass uint16

const (
	ClassIN RecordClass = 1
)

// RCode is a DNS response code (RFC 1035 §4.1.1).
type RCode uint16

const (
	RCodeNoError  RCode = 0
	RCodeFormErr  RCode = 1
	RCodeServFail RCode = 2
	RCodeNXDomain RCode = 3
	RCodeNotImp   RCode = 4
	RCodeRefused  RCode = 5
)

// RCodeFromFlags extracts the response code (low 4 bits) from header flags.
func RCodeFromFlags(flags uint16) RCode {
	return RCode(flags & RCodeMask)
}

// OpcodeFromFlags extracts the opcode (bits 14-11) from header flags.
func OpcodeFromFlags(flags uint16) uint16 {
	return (flags & OpcodeMask) >> 11
}

// IsResponse reports whether the QR bit is set.
func IsResponse(flags uint16) bool {
	return flags&QRFlag != 0
}

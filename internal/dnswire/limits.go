package dnswire

import "fmt"

// Limits on incoming messages, to turn resource-exhaustion attempts into
// clean FormatErrors instead of unbounded allocation.
const (
	MaxIncomingUDPMessageSize = 512        // RFC 1035 §2.3.4, no EDNS (spec Non-goal)
	MaxIncomingTCPMessageSize = 65535       // 16-bit length prefix, RFC 1035 §4.2.2
	MaxQuestions              = 4
	MaxRRPerSection           = 100
	MaxTotalRR                = 200
)

// DefaultUDPPayloadSize is the response size above which a UDP reply must be
// truncated (TC=1) rather than sent whole (RFC 1035 §4.2.1, no EDNS).
const DefaultUDPPayloadSize = 512

// ParseRequestBounded parses an incoming query with the bounds a server
// applies to untrusted input: a hard size cap, QR must be clear (it must be
// a query, not a response fed back in), opcode must be QUERY, and section
// counts must stay within the limits above.
func ParseRequestBounded(msg []byte, maxSize int) (Packet, error) {
	if len(msg) > maxSize {
		return Packet{}, fmt.Errorf("message exceeds %d bytes: %w", maxSize, ErrFormat)
	}
	p, err := ParsePacket(msg)
	if err != nil {
		return Packet{}, err
	}
	if IsResponse(p.Header.Flags) {
		return Packet{}, fmt.Errorf("QR flag set on incoming query: %w", ErrFormat)
	}
	if op := OpcodeFromFlags(p.Header.Flags); op != OpcodeQuery {
		return Packet{}, fmt.Errorf("unsupported opcode %d: %w", op, ErrFormat)
	}
	if err := validateSectionCounts(p.Header); err != nil {
		return Packet{}, err
	}
	return p, nil
}

func validateSectionCounts(h Header) error {
	qd, an, ns, ar := int(h.QDCount), int(h.ANCount), int(h.NSCount), int(h.ARCount)
	if qd > MaxQuestions {
		return fmt.Errorf("too many questions (%d): %w", qd, ErrFormat)
	}
	if qd != 1 {
		return fmt.Errorf("unsupported question count (%d): %w", qd, ErrFormat)
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return fmt.Errorf("too many records in a section: %w", ErrFormat)
	}
	if an+ns+ar > MaxTotalRR {
		return fmt.Errorf("too many total records (%d): %w", an+ns+ar, ErrFormat)
	}
	return nil
}

// BuildErrorResponse builds a minimal response packet carrying only the
// original question (no answer/authority/additional records) and the given
// RCODE, preserving the transaction ID and the RD flag from the request.
func BuildErrorResponse(req Packet, rcode RCode) Packet {
	flags := QRFlag | (req.Header.Flags & RDFlag)
	flags = (flags &^ RCodeMask) | (uint16(rcode) & RCodeMask)
	return Packet{
		Header: Header{
			ID:      req.Header.ID,
			Flags:   flags,
			QDCount: uint16(len(req.Questions)),
		},
		Questions: req.Questions,
	}
}

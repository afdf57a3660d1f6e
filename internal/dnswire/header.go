package dnswire

import (
	"encoding/binary"
	"fmt"
)

// Header is the fixed 12-byte DNS message header (RFC 1035 Section 4.1.1).
type Header struct {
	ID      uint16 // Transaction ID
	Flags   uint16 // QR, Opcode, AA, TC, RD, RA, Z, RCODE — see enums.go
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// HeaderSize is the fixed wire size of a DNS header in bytes.
const HeaderSize = 12

// Marshal serializes the header to its 12-byte big-endian wire form.
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(b[0:2], h.ID)
	binary.BigEndian.PutUint16(b[2:4], h.Flags)
	binary.BigEndian.PutUint16(b[4:6], h.QDCount)
	binary.BigEndian.PutUint16(b[6:8], h.ANCount)
	binary.BigEndian.PutUint16(b[8:10], h.NSCount)
	binary.BigEndian.PutUint16(b[10:12], h.ARCount)
	return b
}

// ParseHeader parses a DNS header from msg at *off, advancing *off by
// HeaderSize on success.
func ParseHeader(msg []byte, off *int) (Header, error) {
	if *off+HeaderSize > len(msg) {
		return Header{}, fmt.Errorf("truncated header: %w", ErrFormat)
	}
	h := Header{
		ID:      binary.BigEndian.Uint16(msg[*off : *off+2]),
		Flags:   binary.BigEndian.Uint16(msg[*off+2 : *off+4]),
		QDCount: binary.BigEndian.Uint16(msg[*off+4 : *off+6]),
		ANCount: binary.BigEndian.Uint16(msg[*off+6 : *off+8]),
		NSCount: binary.BigEndian.Uint16(msg[*off+8 : *off+10]),
		ARCount: binary.BigEndian.Uint16(msg[*off+10 : *off+12]),
	}
	*off += HeaderSize
	return h, nil
}

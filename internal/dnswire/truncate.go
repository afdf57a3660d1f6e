package dnswire

import "encoding/binary"

// TruncateUDP truncates an already-marshaled response to fit within
// maxSize, setting the TC flag. Per RFC 1035 §4.1.1/§4.2.1, the header and
// question section are always preserved, followed by as many complete
// resource records as fit from the Answer section, then Authority, then
// Additional — stopping at the first record that would overflow maxSize
// rather than dropping every record outright. Section counts in the
// returned header reflect only the records actually included. If
// respBytes already fits, it is returned unchanged.
func TruncateUDP(respBytes []byte, maxSize int) []byte {
	if maxSize <= 0 {
		maxSize = DefaultUDPPayloadSize
	}
	if len(respBytes) <= maxSize || len(respBytes) < HeaderSize {
		return respBytes
	}

	qdcount := binary.BigEndian.Uint16(respBytes[4:6])
	if qdcount == 0 {
		return truncatedHeader(respBytes, 0, 0, 0, 0)
	}

	qEnd := questionSectionEnd(respBytes, int(qdcount))
	if qEnd <= HeaderSize || qEnd > maxSize {
		return truncatedHeader(respBytes, 0, 0, 0, 0)
	}

	counts := [3]uint16{
		binary.BigEndian.Uint16(respBytes[6:8]),   // ANCOUNT
		binary.BigEndian.Uint16(respBytes[8:10]),  // NSCOUNT
		binary.BigEndian.Uint16(respBytes[10:12]), // ARCOUNT
	}

	cur := qEnd
	var included [3]uint16
	done := false
	for s := 0; s < 3 && !done; s++ {
		for i := uint16(0); i < counts[s]; i++ {
			end, ok := rrEnd(respBytes, cur)
			if !ok || end > maxSize {
				done = true
				break
			}
			cur = end
			included[s]++
		}
	}

	header := truncatedHeader(respBytes, qdcount, included[0], included[1], included[2])
	out := make([]byte, 0, HeaderSize+(cur-HeaderSize))
	out = append(out, header...)
	out = append(out, respBytes[HeaderSize:cur]...)
	return out
}

func truncatedHeader(respBytes []byte, qdcount, ancount, nscount, arcount uint16) []byte {
	flags := binary.BigEndian.Uint16(respBytes[2:4]) | TCFlag
	h := make([]byte, HeaderSize)
	copy(h[0:2], respBytes[0:2])
	binary.BigEndian.PutUint16(h[2:4], flags)
	binary.BigEndian.PutUint16(h[4:6], qdcount)
	binary.BigEndian.PutUint16(h[6:8], ancount)
	binary.BigEndian.PutUint16(h[8:10], nscount)
	binary.BigEndian.PutUint16(h[10:12], arcount)
	return h
}

func questionSectionEnd(msg []byte, qdcount int) int {
	pos := HeaderSize
	for i := 0; i < qdcount; i++ {
		pos = skipName(msg, pos)
		if pos+4 > len(msg) {
			return len(msg)
		}
		pos += 4
	}
	return pos
}

// rrEnd returns the end offset of one resource record (name, type, class,
// ttl, rdlength, rdata) starting at pos, or ok=false if its length fields
// run past the end of msg.
func rrEnd(msg []byte, pos int) (end int, ok bool) {
	end = skipName(msg, pos)
	if end+10 > len(msg) {
		return len(msg), false
	}
	rdlen := int(binary.BigEndian.Uint16(msg[end+8 : end+10]))
	end += 10 + rdlen
	if end > len(msg) {
		return len(msg), false
	}
	return end, true
}

// skipName advances past a wire-encoded name without fully decoding it,
// stopping at the first label or pointer terminator.
func skipName(msg []byte, pos int) int {
	for pos < len(msg) {
		l := msg[pos]
		if l == 0 {
			return pos + 1
		}
		if l&0xC0 == 0xC0 {
			if pos+2 > len(msg) {
				return len(msg)
			}
			return pos + 2
		}
		pos++
		if pos+int(l) > len(msg) {
			return len(msg)
		}
		pos += int(l)
	}
	return pos
}

package dnswire

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// maxCompressionHops bounds the number of pointer indirections DecodeName
// will follow before giving up. Set well above any legitimate message depth;
// its only job is to turn a malicious or corrupt pointer chain into a
// FormatError instead of unbounded work.
const maxCompressionHops = 128

// maxNameLength is the maximum encoded length of a domain name, including
// length octets and the terminating root label (RFC 1035 §3.1).
const maxNameLength = 255

// maxLabelLength is the maximum length of a single label (RFC 1035 §3.1).
const maxLabelLength = 63

// NormalizeName lowercases a name and strips a trailing dot, for
// case-insensitive comparison and lookup (RFC 4343, RFC 1035 §3.1).
func NormalizeName(name string) string {
	return strings.ToLower(trimDot(name))
}

// EncodeName encodes a domain name to uncompressed DNS wire format: a
// sequence of length-prefixed labels terminated by a zero-length label.
// Each label is capped at 63 bytes and the total encoded name at 255 bytes
// (RFC 1035 §3.1). ASCII only.
func EncodeName(domain string) ([]byte, error) {
	domain = trimDot(domain)
	if domain == "" {
		return []byte{0}, nil
	}

	out := make([]byte, 0, len(domain)+2)
	labelStart := 0
	for i := 0; i <= len(domain); i++ {
		if i == len(domain) || domain[i] == '.' {
			if i == labelStart {
				return nil, fmt.Errorf("empty label in %q: %w", domain, ErrFormat)
			}
			label := domain[labelStart:i]
			for j := 0; j < len(label); j++ {
				if label[j] > 0x7F {
					return nil, fmt.Errorf("non-ASCII label in %q: %w", domain, ErrFormat)
				}
			}
			if len(label) > maxLabelLength {
				return nil, fmt.Errorf("label %q exceeds %d bytes: %w", label, maxLabelLength, ErrFormat)
			}
			out = append(out, byte(len(label)))
			out = append(out, label...)
			labelStart = i + 1
		}
	}
	out = append(out, 0)

	if len(out) > maxNameLength {
		return nil, fmt.Errorf("encoded name exceeds %d bytes: %w", maxNameLength, ErrFormat)
	}
	return out, nil
}

// nameOffsets records, per message, the wire offset at which a normalized
// name was first written, so later occurrences can be compressed into a
// pointer instead of repeated (RFC 1035 §4.1.4).
type nameOffsets map[string]int

// EncodeNameCompressed appends domain to buf, reusing a compression pointer
// into buf for any suffix already written at a recorded offset, and records
// new suffix offsets for reuse by later names in the same message. Only
// offsets within the 14-bit pointer range (0-16383) are usable as pointer
// targets; names first occurring beyond that are written out in full and
// not recorded.
func EncodeNameCompressed(buf []byte, domain string, offsets nameOffsets) ([]byte, error) {
	domain = trimDot(domain)
	var labels []string
	if domain != "" {
		labels = strings.Split(domain, ".")
	}

	for i := 0; i < len(labels); i++ {
		suffix := strings.ToLower(strings.Join(labels[i:], "."))
		if off, ok := offsets[suffix]; ok {
			ptr := uint16(0xC000 | off)
			buf = append(buf, byte(ptr>>8), byte(ptr))
			return buf, nil
		}
		label := labels[i]
		for j := 0; j < len(label); j++ {
			if label[j] > 0x7F {
				return nil, fmt.Errorf("non-ASCII label in %q: %w", domain, ErrFormat)
			}
		}
		if len(label) > maxLabelLength {
			return nil, fmt.Errorf("label %q exceeds %d bytes: %w", label, maxLabelLength, ErrFormat)
		}
		if len(buf) <= 0x3FFF {
			offsets[suffix] = len(buf)
		}
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0)
	return buf, nil
}

// DecodeName decodes a possibly-compressed domain name from msg starting at
// *off, advancing *off past the name (including any compression pointer
// bytes, which are always exactly 2 bytes regardless of how much data they
// point back into).
func DecodeName(msg []byte, off *int) (string, error) {
	return decodeName(msg, off, 0, map[int]struct{}{})
}

func decodeName(msg []byte, off *int, hops int, visited map[int]struct{}) (string, error) {
	if hops > maxCompressionHops {
		return "", fmt.Errorf("too many compression pointer indirections: %w", ErrFormat)
	}
	if *off < 0 || *off >= len(msg) {
		return "", fmt.Errorf("unexpected EOF decoding name: %w", ErrFormat)
	}

	labels := make([]string, 0, 6)
	totalLen := 0
	for {
		if *off >= len(msg) {
			return "", fmt.Errorf("unexpected EOF decoding name: %w", ErrFormat)
		}
		labelLen := msg[*off]
		*off++

		if labelLen == 0 {
			break
		}

		if isCompressionPointer(labelLen) {
			rest, err := followCompressionPointer(msg, off, labelLen, hops, visited)
			if err != nil {
				return "", err
			}
			if rest != "" {
				labels = append(labels, rest)
			}
			break
		}

		if hasReservedBits(labelLen) {
			return "", fmt.Errorf("reserved label length bits set: %w", ErrFormat)
		}

		label, err := readLabel(msg, off, int(labelLen))
		if err != nil {
			return "", err
		}
		totalLen += len(label) + 1
		if totalLen > maxNameLength {
			return "", fmt.Errorf("decoded name exceeds %d bytes: %w", maxNameLength, ErrFormat)
		}
		labels = append(labels, label)
	}

	return joinLabels(labels), nil
}

func isCompressionPointer(b byte) bool {
	return b&0xC0 == 0xC0
}

func hasReservedBits(b byte) bool {
	return b&0xC0 != 0
}

// followCompressionPointer resolves a 2-byte pointer (14-bit offset) and
// decodes the name found there. A pointer must target an offset strictly
// before the pointer's own position and must not repeat an offset already
// visited in this decode, which together rule out both forward references
// and pointer loops.
func followCompressionPointer(msg []byte, off *int, firstByte byte, hops int, visited map[int]struct{}) (string, error) {
	if *off >= len(msg) {
		return "", fmt.Errorf("unexpected EOF decoding compression pointer: %w", ErrFormat)
	}
	ptr := int(binary.BigEndian.Uint16([]byte{firstByte & 0x3F, msg[*off]}))
	pointerPos := *off - 1
	*off++

	if ptr >= len(msg) {
		return "", fmt.Errorf("compression pointer out of bounds: %w", ErrFormat)
	}
	if ptr >= pointerPos {
		return "", fmt.Errorf("compression pointer does not point backward: %w", ErrFormat)
	}
	if _, ok := visited[ptr]; ok {
		return "", fmt.Errorf("compression pointer loop detected: %w", ErrFormat)
	}
	visited[ptr] = struct{}{}

	ptrOff := ptr
	return decodeName(msg, &ptrOff, hops+1, visited)
}

func readLabel(msg []byte, off *int, length int) (string, error) {
	if *off+length > len(msg) {
		return "", fmt.Errorf("unexpected EOF reading label: %w", ErrFormat)
	}
	label := msg[*off : *off+length]
	*off += length
	for _, b := range label {
		if b > 0x7F {
			return "", fmt.Errorf("non-ASCII byte in decoded name: %w", ErrFormat)
		}
	}
	return string(label), nil
}

func trimDot(s string) string {
	return strings.TrimSuffix(s, ".")
}

func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	if len(labels) == 1 {
		return labels[0]
	}
	total := len(labels) - 1
	for _, l := range labels {
		total += len(l)
	}
	var b strings.Builder
	b.Grow(total)
	b.WriteString(labels[0])
	for i := 1; i < len(labels); i++ {
		b.WriteByte('.')
		b.WriteString(labels[i])
	}
	return b.String()
}

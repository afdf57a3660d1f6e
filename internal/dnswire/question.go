package dnswire

import (
	"encoding/binary"
	"fmt"
)

// Question is a single DNS question-section entry (RFC 1035 §4.1.2).
type Question struct {
	Name  string // normalized (lowercase, no trailing dot)
	Type  uint16
	Class uint16
}

// Marshal encodes the question without name compression.
func (q Question) Marshal() ([]byte, error) {
	name, err := EncodeName(q.Name)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, len(name)+4)
	b = append(b, name...)
	tail := make([]byte, 4)
	binary.BigEndian.PutUint16(tail[0:2], q.Type)
	binary.BigEndian.PutUint16(tail[2:4], q.Class)
	return append(b, tail...), nil
}

// marshalCompressed appends the question to buf, compressing its name
// against offsets already recorded for this message.
func (q Question) marshalCompressed(buf []byte, offsets nameOffsets) ([]byte, error) {
	buf, err := EncodeNameCompressed(buf, q.Name, offsets)
	if err != nil {
		return nil, err
	}
	tail := make([]byte, 4)
	binary.BigEndian.PutUint16(tail[0:2], q.Type)
	binary.BigEndian.PutUint16(tail[2:4], q.Class)
	return append(buf, tail...), nil
}

// ParseQuestion parses a question from msg at *off, advancing *off past it.
// The name is normalized to lowercase with no trailing dot.
func ParseQuestion(msg []byte, off *int) (Question, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Question{}, err
	}
	if *off+4 > len(msg) {
		return Question{}, fmt.Errorf("truncated question: %w", ErrFormat)
	}
	q := Question{
		Name:  NormalizeName(name),
		Type:  binary.BigEndian.Uint16(msg[*off : *off+2]),
		Class: binary.BigEndian.Uint16(msg[*off+2 : *off+4]),
	}
	if q.Class != uint16(ClassIN) {
		return Question{}, fmt.Errorf("unsupported question class %d: %w", q.Class, ErrFormat)
	}
	*off += 4
	return q, nil
}

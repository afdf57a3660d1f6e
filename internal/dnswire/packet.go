package dnswire

// Packet is a complete DNS message (RFC 1035 §4): a header and four
// sections — Questions, Answers, Authorities (NS records and SOA),
// Additionals (glue and other supporting records).
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Marshal serializes the packet without name compression. Section counts in
// the header are recomputed from the slice lengths.
func (p Packet) Marshal() ([]byte, error) {
	h := p.Header
	h.QDCount = uint16(len(p.Questions))
	h.ANCount = uint16(len(p.Answers))
	h.NSCount = uint16(len(p.Authorities))
	h.ARCount = uint16(len(p.Additionals))

	estimated := HeaderSize + len(p.Questions)*32 + (len(p.Answers)+len(p.Authorities)+len(p.Additionals))*64
	out := make([]byte, 0, estimated)
	out = append(out, h.Marshal()...)

	for _, q := range p.Questions {
		qb, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, qb...)
	}
	for _, rr := range append(append(append([]Record{}, p.Answers...), p.Authorities...), p.Additionals...) {
		b, err := rr.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// MarshalCompressed serializes the packet with name compression (RFC 1035
// §4.1.4): any name (owner name, or RDATA name in a compressible record
// type) that repeats a suffix already written earlier in the message is
// replaced with a 2-byte pointer into that earlier occurrence.
func (p Packet) MarshalCompressed() ([]byte, error) {
	h := p.Header
	h.QDCount = uint16(len(p.Questions))
	h.ANCount = uint16(len(p.Answers))
	h.NSCount = uint16(len(p.Authorities))
	h.ARCount = uint16(len(p.Additionals))

	out := make([]byte, 0, HeaderSize+len(p.Questions)*32+(len(p.Answers)+len(p.Authorities)+len(p.Additionals))*64)
	out = append(out, h.Marshal()...)

	offsets := make(nameOffsets)
	var err error
	for _, q := range p.Questions {
		out, err = q.marshalCompressed(out, offsets)
		if err != nil {
			return nil, err
		}
	}
	for _, rr := range p.Answers {
		out, err = rr.marshalCompressed(out, offsets)
		if err != nil {
			return nil, err
		}
	}
	for _, rr := range p.Authorities {
		out, err = rr.marshalCompressed(out, offsets)
		if err != nil {
			return nil, err
		}
	}
	for _, rr := range p.Additionals {
		out, err = rr.marshalCompressed(out, offsets)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ParsePacket decodes a full DNS message. Section-count fields in the header
// are trusted only up to the section limits (MaxQuestions, MaxRRPerSection)
// for the purpose of pre-allocation; a count beyond what the message
// actually contains fails with a truncation error from the section parse
// loop itself.
func ParsePacket(msg []byte) (Packet, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h}

	p.Questions = make([]Question, 0, limitCount(h.QDCount, MaxQuestions))
	for i := uint16(0); i < h.QDCount; i++ {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}
	p.Answers, err = parseRRSection(msg, &off, h.ANCount)
	if err != nil {
		return Packet{}, err
	}
	p.Authorities, err = parseRRSection(msg, &off, h.NSCount)
	if err != nil {
		return Packet{}, err
	}
	p.Additionals, err = parseRRSection(msg, &off, h.ARCount)
	if err != nil {
		return Packet{}, err
	}
	return p, nil
}

func parseRRSection(msg []byte, off *int, count uint16) ([]Record, error) {
	out := make([]Record, 0, limitCount(count, MaxRRPerSection))
	for i := uint16(0); i < count; i++ {
		rr, err := ParseRecord(msg, off)
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, nil
}

func limitCount(count uint16, limit int) int {
	if int(count) > limit {
		return limit
	}
	return int(count)
}

package dnswire

import "testing"

func buildTestPacket() Packet {
	return Packet{
		Header: Header{ID: 42, Flags: QRFlag | AAFlag},
		Questions: []Question{
			{Name: "example.com", Type: uint16(TypeA), Class: uint16(ClassIN)},
		},
		Answers: []Record{
			{Name: "example.com", Type: uint16(TypeA), Class: uint16(ClassIN), TTL: 300, Data: []byte{192, 0, 2, 1}},
		},
	}
}

func TestPacketMarshalParseRoundTrip(t *testing.T) {
	p := buildTestPacket()
	b, err := p.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParsePacket(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Header.QDCount != 1 || parsed.Header.ANCount != 1 {
		t.Fatalf("got %+v", parsed.Header)
	}
	if parsed.Questions[0].Name != "example.com" {
		t.Fatalf("got %+v", parsed.Questions[0])
	}
	ip, ok := parsed.Answers[0].IPv4()
	if !ok || ip != "192.0.2.1" {
		t.Fatalf("got %q %v", ip, ok)
	}
}

func TestPacketMarshalCompressedShrinksRepeatedNames(t *testing.T) {
	p := Packet{
		Header: Header{ID: 1, Flags: QRFlag | AAFlag},
		Questions: []Question{
			{Name: "example.com", Type: uint16(TypeNS), Class: uint16(ClassIN)},
		},
		Answers: []Record{
			{Name: "example.com", Type: uint16(TypeNS), Class: uint16(ClassIN), TTL: 3600, Data: "ns1.example.com"},
			{Name: "example.com", Type: uint16(TypeNS), Class: uint16(ClassIN), TTL: 3600, Data: "ns2.example.com"},
		},
	}
	uncompressed, err := p.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	compressed, err := p.MarshalCompressed()
	if err != nil {
		t.Fatalf("marshal compressed: %v", err)
	}
	if len(compressed) >= len(uncompressed) {
		t.Fatalf("expected compressed (%d) < uncompressed (%d)", len(compressed), len(uncompressed))
	}

	parsed, err := ParsePacket(compressed)
	if err != nil {
		t.Fatalf("parse compressed: %v", err)
	}
	if parsed.Answers[0].Data.(string) != "ns1.example.com" {
		t.Fatalf("got %#v", parsed.Answers[0].Data)
	}
	if parsed.Answers[1].Data.(string) != "ns2.example.com" {
		t.Fatalf("got %#v", parsed.Answers[1].Data)
	}
}

func TestParsePacketTruncatedHeader(t *testing.T) {
	_, err := ParsePacket([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error")
	}
}

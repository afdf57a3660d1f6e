package dnswire

import "testing"

func TestRecordMarshalA(t *testing.T) {
	rr := Record{Name: "example.com", Type: uint16(TypeA), Class: 1, TTL: 300, Data: []byte{192, 0, 2, 1}}
	b, err := rr.Marshal()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(b) < 17 {
		t.Fatalf("unexpected length %d", len(b))
	}
}

func TestRecordMarshalInvalidAData(t *testing.T) {
	rr := Record{Name: "example.com", Type: uint16(TypeA), Class: 1, TTL: 300, Data: "not bytes"}
	if _, err := rr.Marshal(); err == nil {
		t.Fatal("expected error for invalid A record data")
	}
}

func TestRecordIPv4(t *testing.T) {
	rr := Record{Name: "example.com", Type: uint16(TypeA), Class: 1, TTL: 300, Data: []byte{192, 0, 2, 1}}
	ip, ok := rr.IPv4()
	if !ok || ip != "192.0.2.1" {
		t.Fatalf("got %q, %v", ip, ok)
	}
}

func TestParseRecordA(t *testing.T) {
	msg := []byte{
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
		3, 'c', 'o', 'm',
		0,
		0, 1, // Type A
		0, 1, // Class IN
		0, 0, 1, 44, // TTL 300
		0, 4, // RDLEN
		192, 0, 2, 1,
	}
	off := 0
	rr, err := ParseRecord(msg, &off)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if rr.Name != "example.com" || rr.Type != uint16(TypeA) || rr.TTL != 300 {
		t.Fatalf("got %+v", rr)
	}
	data, ok := rr.Data.([]byte)
	if !ok || len(data) != 4 {
		t.Fatalf("bad data %#v", rr.Data)
	}
}

func TestParseRecordATruncated(t *testing.T) {
	msg := []byte{
		7, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
		3, 'c', 'o', 'm',
		0,
		0, 1,
		0, 1,
		0, 0, 1, 44,
		0, 4, // RDLEN says 4 but no RDATA follows
	}
	off := 0
	if _, err := ParseRecord(msg, &off); err == nil {
		t.Fatal("expected error for truncated record")
	}
}

func TestRecordCNAMERoundTrip(t *testing.T) {
	rr := Record{Name: "www.example.com", Type: uint16(TypeCNAME), Class: 1, TTL: 3600, Data: "target.example.com"}
	b, err := rr.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	off := 0
	parsed, err := ParseRecord(b, &off)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	target, ok := parsed.Data.(string)
	if !ok || target != "target.example.com" {
		t.Fatalf("got %#v", parsed.Data)
	}
}

func TestRecordMXRoundTrip(t *testing.T) {
	rr := Record{Name: "example.com", Type: uint16(TypeMX), Class: 1, TTL: 3600, Data: MXData{Preference: 10, Exchange: "mail.example.com"}}
	b, err := rr.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	off := 0
	parsed, err := ParseRecord(b, &off)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mx, ok := parsed.Data.(MXData)
	if !ok || mx.Preference != 10 || mx.Exchange != "mail.example.com" {
		t.Fatalf("got %#v", parsed.Data)
	}
}

func TestRecordSOARoundTrip(t *testing.T) {
	soa := SOAData{
		MName: "ns1.example.com", RName: "hostmaster.example.com",
		Serial: 2024010100, Refresh: 3600, Retry: 600, Expire: 604800, Minimum: 300,
	}
	rr := Record{Name: "example.com", Type: uint16(TypeSOA), Class: 1, TTL: 3600, Data: soa}
	b, err := rr.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	off := 0
	parsed, err := ParseRecord(b, &off)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, ok := parsed.Data.(SOAData)
	if !ok || got != soa {
		t.Fatalf("got %#v want %#v", got, soa)
	}
}

func TestRecordHINFORoundTrip(t *testing.T) {
	rr := Record{Name: "example.com", Type: uint16(TypeHINFO), Class: 1, TTL: 3600, Data: HINFOData{CPU: "AMD64", OS: "LINUX"}}
	b, err := rr.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	off := 0
	parsed, err := ParseRecord(b, &off)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	hi, ok := parsed.Data.(HINFOData)
	if !ok || hi.CPU != "AMD64" || hi.OS != "LINUX" {
		t.Fatalf("got %#v", parsed.Data)
	}
}

func TestRecordTXTRoundTrip(t *testing.T) {
	rr := Record{Name: "example.com", Type: uint16(TypeTXT), Class: 1, TTL: 300, Data: []string{"v=spf1", "include:_spf.example.com"}}
	b, err := rr.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	off := 0
	parsed, err := ParseRecord(b, &off)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	strs, ok := parsed.Data.([]string)
	if !ok || len(strs) != 2 || strs[0] != "v=spf1" {
		t.Fatalf("got %#v", parsed.Data)
	}
}

func TestRecordUnknownTypePassthrough(t *testing.T) {
	rr := Record{Name: "example.com", Type: 99, Class: 1, TTL: 60, Data: []byte{0xDE, 0xAD}}
	b, err := rr.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	off := 0
	parsed, err := ParseRecord(b, &off)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	data, ok := parsed.Data.([]byte)
	if !ok || string(data) != string([]byte{0xDE, 0xAD}) {
		t.Fatalf("got %#v", parsed.Data)
	}
}

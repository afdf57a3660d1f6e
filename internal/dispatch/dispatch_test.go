package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/driftdns/driftdns/internal/authority"
	"github.com/driftdns/driftdns/internal/dnswire"
	"github.com/driftdns/driftdns/internal/rcache"
	"github.com/driftdns/driftdns/internal/recursive"
	"github.com/driftdns/driftdns/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureZone = `
example.com. 3600 IN SOA ns1.example.com. hostmaster.example.com. 1 3600 600 86400 300
example.com. 3600 IN NS ns1.example.com.
ns1.example.com. 3600 IN A 192.0.2.1
www.example.com. 300 IN A 192.0.2.50
`

func mustResponder(t *testing.T) *authority.Responder {
	t.Helper()
	z, warnings, err := zone.ParseText(fixtureZone, "example.com")
	require.NoError(t, err)
	require.Empty(t, warnings)
	return authority.NewResponder([]*zone.Zone{z}, discardLogger())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encodeQuery(t *testing.T, name string, qtype uint16, rd bool) []byte {
	t.Helper()
	var flags uint16
	if rd {
		flags |= dnswire.RDFlag
	}
	p := dnswire.Packet{
		Header:    dnswire.Header{ID: 0xBEEF, Flags: flags},
		Questions: []dnswire.Question{{Name: name, Type: qtype, Class: uint16(dnswire.ClassIN)}},
	}
	b, err := p.Marshal()
	require.NoError(t, err)
	return b
}

func decodeResponse(t *testing.T, b []byte) dnswire.Packet {
	t.Helper()
	require.NotNil(t, b)
	p, err := dnswire.ParsePacket(b)
	require.NoError(t, err)
	return p
}

func TestHandleRoutesToAuthority(t *testing.T) {
	d := &Dispatcher{Authority: mustResponder(t), Logger: discardLogger()}
	req := encodeQuery(t, "www.example.com", uint16(dnswire.TypeA), false)

	res := d.Handle(context.Background(), "udp", "10.0.0.1:1234", req)
	assert.Equal(t, "authority", res.Source)

	resp := decodeResponse(t, res.ResponseBytes)
	assert.True(t, dnswire.IsResponse(resp.Header.Flags))
	assert.True(t, resp.Header.Flags&dnswire.AAFlag != 0)
	require.Len(t, resp.Answers, 1)
}

func TestHandleRefusesOutsideZoneWithoutRecursion(t *testing.T) {
	d := &Dispatcher{Authority: mustResponder(t), Logger: discardLogger()}
	req := encodeQuery(t, "other.com", uint16(dnswire.TypeA), true)

	res := d.Handle(context.Background(), "udp", "10.0.0.1:1234", req)
	assert.Equal(t, "refused", res.Source)

	resp := decodeResponse(t, res.ResponseBytes)
	assert.Equal(t, dnswire.RCodeRefused, dnswire.RCodeFromFlags(resp.Header.Flags))
}

func TestHandleRoutesToRecursionWhenRDSetAndOutsideHostedZone(t *testing.T) {
	records := rcache.NewRecordCache(10)
	records.Set("other.com", uint16(dnswire.TypeA), rcache.CachedRRSet{
		RData: []dnswire.Record{{Name: "other.com", Type: uint16(dnswire.TypeA), Class: uint16(dnswire.ClassIN), TTL: 300, Data: []byte{192, 0, 2, 9}}},
		TTL:   time.Hour, InsertedAt: time.Now(),
	})
	resolver := recursive.New(recursive.Config{}, records, rcache.NewNSCache(10), discardLogger())

	d := &Dispatcher{Authority: mustResponder(t), Resolver: resolver, Logger: discardLogger()}
	req := encodeQuery(t, "other.com", uint16(dnswire.TypeA), true)

	res := d.Handle(context.Background(), "udp", "10.0.0.1:1234", req)
	assert.Equal(t, "recursive", res.Source)

	resp := decodeResponse(t, res.ResponseBytes)
	assert.True(t, resp.Header.Flags&dnswire.RAFlag != 0, "recursion available should be set when a resolver is configured")
	require.Len(t, resp.Answers, 1)
}

func TestHandleRefusesWhenRecursionNotDesired(t *testing.T) {
	resolver := recursive.New(recursive.Config{}, rcache.NewRecordCache(10), rcache.NewNSCache(10), discardLogger())
	d := &Dispatcher{Authority: mustResponder(t), Resolver: resolver, Logger: discardLogger()}
	req := encodeQuery(t, "other.com", uint16(dnswire.TypeA), false)

	res := d.Handle(context.Background(), "udp", "10.0.0.1:1234", req)
	assert.Equal(t, "refused", res.Source)
}

func TestHandleMarksRecursionAvailableOnAuthoritativeAnswer(t *testing.T) {
	resolver := recursive.New(recursive.Config{}, rcache.NewRecordCache(10), rcache.NewNSCache(10), discardLogger())
	d := &Dispatcher{Authority: mustResponder(t), Resolver: resolver, Logger: discardLogger()}
	req := encodeQuery(t, "www.example.com", uint16(dnswire.TypeA), false)

	res := d.Handle(context.Background(), "udp", "10.0.0.1:1234", req)
	resp := decodeResponse(t, res.ResponseBytes)
	assert.True(t, resp.Header.Flags&dnswire.RAFlag != 0)
}

func TestHandleFormatErrorOnGarbage(t *testing.T) {
	d := &Dispatcher{Logger: discardLogger()}
	res := d.Handle(context.Background(), "udp", "10.0.0.1:1234", []byte{0x01, 0x02})
	assert.Equal(t, "parse-error", res.Source)
	assert.False(t, res.ParsedOK)
	assert.Nil(t, res.ResponseBytes)
}

func TestHandleFormatErrorPreservesIDAndQuestion(t *testing.T) {
	d := &Dispatcher{Logger: discardLogger()}
	// A well-formed header and question, but an unsupported opcode (STATUS = 2),
	// which ParseRequestBounded rejects.
	raw := encodeQuery(t, "www.example.com", uint16(dnswire.TypeA), false)
	raw[2] = (raw[2] &^ 0x78) | (2 << 3) // patch the opcode bits

	res := d.Handle(context.Background(), "udp", "10.0.0.1:1234", raw)
	assert.Equal(t, "formerr", res.Source)
	resp := decodeResponse(t, res.ResponseBytes)
	assert.Equal(t, uint16(0xBEEF), resp.Header.ID)
	assert.Equal(t, dnswire.RCodeFormErr, dnswire.RCodeFromFlags(resp.Header.Flags))
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, "www.example.com", resp.Questions[0].Name)
}

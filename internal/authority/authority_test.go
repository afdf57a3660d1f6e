package authority

import (
	"testing"

	"github.com/driftdns/driftdns/internal/dnswire"
	"github.com/driftdns/driftdns/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustZone(t *testing.T, text, origin string) *zone.Zone {
	t.Helper()
	z, _, err := zone.ParseText(text, origin)
	require.NoError(t, err)
	return z
}

const fixtureZone = `
$ORIGIN example.com.
@     3600 IN SOA ns1.example.com. hostmaster.example.com. 1 3600 900 604800 86400
@     IN NS ns1.example.com.
@     IN NS ns2.example.com.
ns1   IN A 192.0.2.1
ns2   IN A 192.0.2.2
www   IN A 192.0.2.20
alias IN CNAME www.example.com.
sub   IN NS ns1.sub.example.com.
ns1.sub IN A 192.0.2.50
intosub IN CNAME host.sub.example.com.
`

func query(name string, qtype uint16) dnswire.Packet {
	return dnswire.Packet{
		Header:    dnswire.Header{ID: 42, Flags: dnswire.RDFlag, QDCount: 1},
		Questions: []dnswire.Question{{Name: name, Type: qtype, Class: uint16(dnswire.ClassIN)}},
	}
}

func TestRespondAnswer(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	resp := r.Respond(query("www.example.com", uint16(dnswire.TypeA)))
	assert.NotZero(t, resp.Header.Flags&dnswire.QRFlag)
	assert.NotZero(t, resp.Header.Flags&dnswire.AAFlag)
	assert.NotZero(t, resp.Header.Flags&dnswire.RDFlag, "RD should be echoed")
	require.Len(t, resp.Answers, 1)
	require.Len(t, resp.Authorities, 2, "expect zone NS set in authority")
}

func TestRespondCNAMEChase(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	resp := r.Respond(query("alias.example.com", uint16(dnswire.TypeA)))
	require.Len(t, resp.Answers, 2, "expect CNAME hop followed by the A record")
	assert.Equal(t, uint16(dnswire.TypeCNAME), resp.Answers[0].Type)
	assert.Equal(t, uint16(dnswire.TypeA), resp.Answers[1].Type)
}

func TestRespondNXDomainHasSOA(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	resp := r.Respond(query("nope.example.com", uint16(dnswire.TypeA)))
	assert.Empty(t, resp.Answers)
	require.Len(t, resp.Authorities, 1)
	assert.Equal(t, uint16(dnswire.TypeSOA), resp.Authorities[0].Type)
	assert.Equal(t, uint16(dnswire.RCodeNXDomain), resp.Header.Flags&dnswire.RCodeMask)
}

func TestRespondNoDataHasSOA(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	resp := r.Respond(query("www.example.com", uint16(dnswire.TypeMX)))
	assert.Empty(t, resp.Answers)
	require.Len(t, resp.Authorities, 1)
	assert.Equal(t, uint16(dnswire.TypeSOA), resp.Authorities[0].Type)
	assert.Equal(t, uint16(dnswire.RCodeNoError), resp.Header.Flags&dnswire.RCodeMask)
}

func TestRespondDelegationNotAuthoritative(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	resp := r.Respond(query("host.sub.example.com", uint16(dnswire.TypeA)))
	assert.Empty(t, resp.Answers)
	assert.Zero(t, resp.Header.Flags&dnswire.AAFlag, "delegation responses must not set AA")
	require.Len(t, resp.Authorities, 1)
	assert.Equal(t, uint16(dnswire.TypeNS), resp.Authorities[0].Type)
	require.Len(t, resp.Additionals, 1, "expect glue A record")
}

func TestRespondCNAMEChaseIntoDelegation(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	resp := r.Respond(query("intosub.example.com", uint16(dnswire.TypeA)))
	require.Len(t, resp.Answers, 1, "expect the CNAME hop, then a stop at the delegation boundary")
	assert.Equal(t, uint16(dnswire.TypeCNAME), resp.Answers[0].Type)
	assert.Zero(t, resp.Header.Flags&dnswire.AAFlag, "CNAME chased into a delegation must not set AA")

	require.Len(t, resp.Authorities, 1, "expect the crossed delegation's own NS set, not the zone apex NS set")
	assert.Equal(t, uint16(dnswire.TypeNS), resp.Authorities[0].Type)
	assert.Equal(t, "sub.example.com.", resp.Authorities[0].Name)
	require.Len(t, resp.Additionals, 1, "expect the delegation's own glue")
	assert.Equal(t, "ns1.sub.example.com.", resp.Additionals[0].Name)
}

func TestRespondOutsideHostedZoneIsRefused(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	resp := r.Respond(query("other.org", uint16(dnswire.TypeA)))
	assert.Equal(t, uint16(dnswire.RCodeRefused), resp.Header.Flags&dnswire.RCodeMask)
}

func TestRespondRejectsNonQueryOpcode(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	req := query("www.example.com", uint16(dnswire.TypeA))
	req.Header.Flags |= 1 << 11 // non-zero opcode

	resp := r.Respond(req)
	assert.Equal(t, uint16(dnswire.RCodeNotImp), resp.Header.Flags&dnswire.RCodeMask)
}

func TestRespondRejectsMultipleQuestions(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	req := query("www.example.com", uint16(dnswire.TypeA))
	req.Questions = append(req.Questions, req.Questions[0])

	resp := r.Respond(req)
	assert.Equal(t, uint16(dnswire.RCodeFormErr), resp.Header.Flags&dnswire.RCodeMask)
}

func TestHosts(t *testing.T) {
	z := mustZone(t, fixtureZone, "example.com.")
	r := NewResponder([]*zone.Zone{z}, nil)

	assert.True(t, r.Hosts("www.example.com"))
	assert.False(t, r.Hosts("other.org"))
}

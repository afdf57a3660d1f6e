package recursive

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/driftdns/driftdns/internal/dnswire"
	"github.com/driftdns/driftdns/internal/rcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newResolver(cfg Config) *Resolver {
	return New(cfg, rcache.NewRecordCache(100), rcache.NewNSCache(100), discardLogger())
}

// fakeServer is a tiny UDP DNS server driven by a handler func, used to
// exercise descend()/sendQuery() without reaching the network.
type fakeServer struct {
	conn *net.UDPConn
	addr string
}

func startFakeServer(t *testing.T, handler func(dnswire.Packet) dnswire.Packet) *fakeServer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)

	fs := &fakeServer{conn: conn, addr: conn.LocalAddr().(*net.UDPAddr).IP.String()}
	go func() {
		buf := make([]byte, 4096)
		for {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := dnswire.ParsePacket(buf[:n])
			if err != nil {
				continue
			}
			resp := handler(req)
			out, err := resp.MarshalCompressed()
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(out, raddr)
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return fs
}

func (fs *fakeServer) port() int {
	return fs.conn.LocalAddr().(*net.UDPAddr).Port
}

func aRecord(name, ip string) dnswire.Record {
	b := net.ParseIP(ip).To4()
	return dnswire.Record{Name: name, Type: uint16(dnswire.TypeA), Class: uint16(dnswire.ClassIN), TTL: 300, Data: []byte(b)}
}

func nsRecord(zone, target string) dnswire.Record {
	return dnswire.Record{Name: zone, Type: uint16(dnswire.TypeNS), Class: uint16(dnswire.ClassIN), TTL: 3600, Data: target}
}

func soaRecord(zone string, minimum uint32) dnswire.Record {
	return dnswire.Record{Name: zone, Type: uint16(dnswire.TypeSOA), Class: uint16(dnswire.ClassIN), TTL: 3600, Data: dnswire.SOAData{
		MName: "ns1." + zone, RName: "hostmaster." + zone, Serial: 1, Refresh: 3600, Retry: 600, Expire: 86400, Minimum: minimum,
	}}
}

func TestIsReferral(t *testing.T) {
	resp := dnswire.Packet{
		Authorities: []dnswire.Record{nsRecord("example.com", "ns1.example.com")},
	}
	assert.True(t, isReferral(resp))

	resp.Answers = []dnswire.Record{aRecord("www.example.com", "192.0.2.1")}
	assert.False(t, isReferral(resp), "a non-empty answer section is never a referral")

	nodata := dnswire.Packet{Authorities: []dnswire.Record{soaRecord("example.com", 300)}}
	assert.False(t, isReferral(nodata), "an SOA-only authority section is NODATA, not a referral")
}

func TestPromoteReferralUpdatesNSCacheAndGlue(t *testing.T) {
	r := newResolver(Config{})
	authorities := []dnswire.Record{nsRecord("example.com", "ns1.example.com")}
	additionals := []dnswire.Record{aRecord("ns1.example.com", "192.0.2.1")}

	zone := r.promoteReferral(authorities, additionals)
	assert.Equal(t, "example.com", zone)

	_, recs, ok := r.nsCache.Lookup("www.example.com")
	require.True(t, ok)
	require.Len(t, recs, 1)
	assert.Equal(t, "192.0.2.1", recs[0].IP)

	cached, ok := r.records.Get("ns1.example.com", uint16(dnswire.TypeA))
	require.True(t, ok)
	assert.Equal(t, "192.0.2.1", mustIPv4(cached.RData[0]))
}

func mustIPv4(rr dnswire.Record) string {
	ip, _ := rr.IPv4()
	return ip
}

func TestCacheAnswerUsesMinimumTTL(t *testing.T) {
	r := newResolver(Config{})
	a1 := aRecord("www.example.com", "192.0.2.1")
	a1.TTL = 600
	a2 := aRecord("www.example.com", "192.0.2.2")
	a2.TTL = 60

	r.cacheAnswer("www.example.com", []dnswire.Record{a1, a2})

	cached, ok := r.records.Get("www.example.com", uint16(dnswire.TypeA))
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, cached.TTL)
}

func TestNegativeCacheRoundTrip(t *testing.T) {
	n := newNegativeCache()
	assert.False(t, n.get("nope.example.com", uint16(dnswire.TypeA)))

	n.set("nope.example.com", uint16(dnswire.TypeA), 50*time.Millisecond)
	assert.True(t, n.get("nope.example.com", uint16(dnswire.TypeA)))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, n.get("nope.example.com", uint16(dnswire.TypeA)), "expired negative entries should not be returned")
}

func TestNegativeCacheCapsAtMaxTTL(t *testing.T) {
	n := newNegativeCache()
	n.set("nope.example.com", uint16(dnswire.TypeA), 48*time.Hour)
	key := negKey{name: "nope.example.com", typ: uint16(dnswire.TypeA)}
	assert.WithinDuration(t, time.Now().Add(maxNegativeTTL), n.data[key], time.Second)
}

func TestResolveAnswersFromRecordCacheWithoutNetwork(t *testing.T) {
	r := newResolver(Config{})
	r.records.Set("www.example.com", uint16(dnswire.TypeA), rcache.CachedRRSet{
		RData: []dnswire.Record{aRecord("www.example.com", "192.0.2.1")}, TTL: time.Hour, InsertedAt: time.Now(),
	})

	res, err := r.Resolve(context.Background(), "www.example.com", uint16(dnswire.TypeA), false)
	require.NoError(t, err)
	assert.Equal(t, dnswire.RCodeNoError, res.RCode)
	require.Len(t, res.Answers, 1)
}

func TestResolveFollowsCachedCNAME(t *testing.T) {
	r := newResolver(Config{})
	r.records.Set("alias.example.com", uint16(dnswire.TypeCNAME), rcache.CachedRRSet{
		RData: []dnswire.Record{{Name: "alias.example.com", Type: uint16(dnswire.TypeCNAME), TTL: 300, Data: "target.example.com"}},
		TTL:   time.Hour, InsertedAt: time.Now(),
	})
	r.records.Set("target.example.com", uint16(dnswire.TypeA), rcache.CachedRRSet{
		RData: []dnswire.Record{aRecord("target.example.com", "192.0.2.9")}, TTL: time.Hour, InsertedAt: time.Now(),
	})

	res, err := r.Resolve(context.Background(), "alias.example.com", uint16(dnswire.TypeA), false)
	require.NoError(t, err)
	assert.Equal(t, dnswire.RCodeNoError, res.RCode)
	require.Len(t, res.Answers, 2, "expect the CNAME plus the resolved A record")
}

func TestResolveReturnsCachedNegative(t *testing.T) {
	r := newResolver(Config{})
	r.negs.set("gone.example.com", uint16(dnswire.TypeA), time.Hour)

	res, err := r.Resolve(context.Background(), "gone.example.com", uint16(dnswire.TypeA), false)
	require.NoError(t, err)
	assert.Equal(t, dnswire.RCodeNXDomain, res.RCode)
}

func TestOrderServersPrefersLowerObservedLatency(t *testing.T) {
	r := newResolver(Config{})
	r.recordLatency("192.0.2.1", 200*time.Millisecond)
	r.recordLatency("192.0.2.2", 10*time.Millisecond)

	out := r.orderServers([]serverCandidate{{name: "slow", ip: "192.0.2.1"}, {name: "fast", ip: "192.0.2.2"}})
	require.Len(t, out, 2)
	assert.Equal(t, "192.0.2.2", out[0].ip)
}

func TestDescendFollowsReferralThenAnswers(t *testing.T) {
	rootSrv := startFakeServer(t, func(req dnswire.Packet) dnswire.Packet {
		return dnswire.Packet{
			Header:      dnswire.Header{ID: req.Header.ID, Flags: dnswire.QRFlag},
			Questions:   req.Questions,
			Authorities: []dnswire.Record{nsRecord("example.com", "ns1.example.com")},
			Additionals: []dnswire.Record{aRecord("ns1.example.com", "127.0.0.2")},
		}
	})
	port := rootSrv.port()

	authConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.2"), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { authConn.Close() })
	go func() {
		buf := make([]byte, 4096)
		for {
			n, raddr, err := authConn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := dnswire.ParsePacket(buf[:n])
			if err != nil {
				continue
			}
			resp := dnswire.Packet{
				Header:    dnswire.Header{ID: req.Header.ID, Flags: dnswire.QRFlag | dnswire.AAFlag},
				Questions: req.Questions,
				Answers:   []dnswire.Record{aRecord("www.example.com", "192.0.2.50")},
			}
			out, err := resp.MarshalCompressed()
			if err != nil {
				continue
			}
			_, _ = authConn.WriteToUDP(out, raddr)
		}
	}()

	old := dnsPort
	dnsPort = strconv.Itoa(port)
	t.Cleanup(func() { dnsPort = old })

	r := newResolver(Config{RootHints: []RootHint{{Name: "root.example", IP: rootSrv.addr}}, QueryTimeout: 2 * time.Second, TotalTimeout: 5 * time.Second})
	res, err := r.Resolve(context.Background(), "www.example.com", uint16(dnswire.TypeA), true)
	require.NoError(t, err)
	require.Equal(t, dnswire.RCodeNoError, res.RCode)
	require.Len(t, res.Answers, 1)
	ip, _ := res.Answers[0].IPv4()
	assert.Equal(t, "192.0.2.50", ip)
	assert.NotEmpty(t, res.Trace, "tracing was requested")

	zone, recs, ok := r.nsCache.Lookup("www.example.com")
	require.True(t, ok)
	assert.Equal(t, "example.com", zone)
	require.Len(t, recs, 1)
	assert.Equal(t, "127.0.0.2", recs[0].IP)
}

func TestBestZoneFallsBackToRootHints(t *testing.T) {
	r := newResolver(Config{RootHints: []RootHint{{Name: "a.root-servers.net", IP: "198.41.0.4"}}})
	zone, servers := r.bestZone("www.example.com")
	assert.Equal(t, "", zone)
	require.Len(t, servers, 1)
	assert.Equal(t, "198.41.0.4", servers[0].ip)
}

package recursive

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"

	"github.com/driftdns/driftdns/internal/dnswire"
)

const udpRecvCap = 4096

// dnsPort is a var, not a const, so tests can point it at a loopback fake
// server instead of the real port 53.
var dnsPort = "53"

func newQueryID() uint16 {
	return uint16(rand.Intn(1 << 16))
}

// sendQuery issues one query for (qname, qtype) to addr over UDP, falling
// back to TCP when the UDP reply comes back truncated — the same pattern as
// the teacher's forwarding resolver, minus upstream pooling: a recursive
// resolver fans out across far more distinct servers than a forwarder's
// handful of configured upstreams, so a persistent per-destination pool
// would grow unbounded instead of staying small and reusable.
func sendQuery(ctx context.Context, addr string, qname string, qtype uint16, timeout time.Duration) (dnswire.Packet, error) {
	id := newQueryID()
	query := dnswire.Packet{
		Header:    dnswire.Header{ID: id, QDCount: 1},
		Questions: []dnswire.Question{{Name: qname, Type: qtype, Class: uint16(dnswire.ClassIN)}},
	}
	raw, err := query.MarshalCompressed()
	if err != nil {
		return dnswire.Packet{}, err
	}

	respBytes, err := queryUDP(ctx, addr, raw, timeout)
	if err != nil {
		return dnswire.Packet{}, err
	}
	resp, err := dnswire.ParsePacket(respBytes)
	if err != nil {
		return dnswire.Packet{}, fmt.Errorf("parsing response from %s: %w", addr, err)
	}

	if resp.Header.Flags&dnswire.TCFlag != 0 {
		respBytes, err = queryTCP(ctx, addr, raw, timeout)
		if err != nil {
			return dnswire.Packet{}, err
		}
		resp, err = dnswire.ParsePacket(respBytes)
		if err != nil {
			return dnswire.Packet{}, fmt.Errorf("parsing TCP response from %s: %w", addr, err)
		}
	}
	if resp.Header.ID != id {
		return dnswire.Packet{}, fmt.Errorf("response ID mismatch from %s", addr)
	}
	return resp, nil
}

func queryUDP(ctx context.Context, addr string, req []byte, timeout time.Duration) ([]byte, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(addr, dnsPort))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(req); err != nil {
		return nil, err
	}
	buf := make([]byte, udpRecvCap)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n:n], nil
}

// queryTCP sends a query over TCP with RFC 1035 §4.2.2 length-prefix
// framing, the same shape as the teacher's queryUpstreamTCP.
func queryTCP(ctx context.Context, addr string, req []byte, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr, dnsPort))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(req)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	respLen := int(binary.BigEndian.Uint16(prefix[:]))
	if respLen <= 0 {
		return nil, fmt.Errorf("TCP response length invalid: %d", respLen)
	}
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

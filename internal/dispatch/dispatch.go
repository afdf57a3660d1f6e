// Package dispatch implements the request dispatcher (§4.8): it decodes an
// incoming packet via internal/dnswire, routes it to the authoritative
// responder (C5) when the question matches a hosted zone, to the recursive
// resolver (C7) when the client asked for recursion and one is configured,
// or refuses it, and re-encodes whatever result comes back.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftdns/driftdns/internal/authority"
	"github.com/driftdns/driftdns/internal/dnswire"
	"github.com/driftdns/driftdns/internal/recursive"
)

const defaultTimeout = 4 * time.Second

// Dispatcher routes decoded queries to whichever of C5/C7 is configured.
// Per the REDESIGN note: either field may be nil. driftdns-auth wires only
// Authority; driftdns-resolve wires only Resolver; a combined deployment
// (not forbidden by spec.md, merely not the default topology) wires both.
type Dispatcher struct {
	Authority *authority.Responder
	Resolver  *recursive.Resolver
	Logger    *slog.Logger
	Timeout   time.Duration
}

// HandleResult is the outcome of dispatching one request.
type HandleResult struct {
	ResponseBytes []byte
	Source        string // "authority", "recursive", "recursive-<rcode>", "refused", "formerr", "parse-error", "servfail", "timeout", "shutdown"
	Parsed        dnswire.Packet
	ParsedOK      bool
}

// Handle decodes reqBytes, routes it, and returns the encoded response.
// transport is "udp" or "tcp", used only to pick the incoming size bound and
// for debug logging; src is the originating address for logging.
func (d *Dispatcher) Handle(ctx context.Context, transport, src string, reqBytes []byte) HandleResult {
	parsed, err := dnswire.ParseRequestBounded(reqBytes, maxIncomingSize(transport))
	if err != nil {
		return d.handleParseError(reqBytes)
	}

	qname, qtype := extractQuestionInfo(parsed)
	respBytes, source := d.routeWithTimeout(ctx, parsed)
	d.logRequest(ctx, transport, src, parsed, qname, qtype, len(reqBytes), source)

	return HandleResult{ResponseBytes: respBytes, Source: source, Parsed: parsed, ParsedOK: true}
}

func maxIncomingSize(transport string) int {
	if transport == "tcp" {
		return dnswire.MaxIncomingTCPMessageSize
	}
	return dnswire.MaxIncomingUDPMessageSize
}

// routeWithTimeout runs route in a goroutine so a hung resolver can't block
// the caller past d.Timeout, the same isolation shape as the teacher's
// resolveWithTimeout.
func (d *Dispatcher) routeWithTimeout(ctx context.Context, parsed dnswire.Packet) ([]byte, string) {
	type outcome struct {
		resp   []byte
		source string
	}
	resCh := make(chan outcome, 1)
	go func() {
		resp, source := d.route(ctx, parsed)
		resCh <- outcome{resp, source}
	}()

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return d.errorResponse(parsed, dnswire.RCodeServFail), "shutdown"
	case <-timer.C:
		return d.errorResponse(parsed, dnswire.RCodeServFail), "timeout"
	case r := <-resCh:
		return r.resp, r.source
	}
}

// route implements §4.8's routing rule: zone match wins outright; otherwise
// recursion if offered and requested; otherwise refused.
func (d *Dispatcher) route(ctx context.Context, parsed dnswire.Packet) ([]byte, string) {
	q := parsed.Questions[0]

	if d.Authority != nil && d.Authority.Hosts(q.Name) {
		resp := d.Authority.Respond(parsed)
		d.markRecursionAvailable(&resp)
		b, err := resp.Marshal()
		if err != nil {
			return d.errorResponse(parsed, dnswire.RCodeServFail), "servfail"
		}
		return b, "authority"
	}

	recursionDesired := parsed.Header.Flags&dnswire.RDFlag != 0
	if d.Resolver != nil && recursionDesired {
		result, err := d.Resolver.Resolve(ctx, q.Name, q.Type, false)
		if err != nil {
			return d.errorResponse(parsed, dnswire.RCodeServFail), "servfail"
		}
		resp := d.buildResolverResponse(parsed, result)
		b, err := resp.Marshal()
		if err != nil {
			return d.errorResponse(parsed, dnswire.RCodeServFail), "servfail"
		}
		source := "recursive"
		if result.RCode != dnswire.RCodeNoError {
			source = "recursive-" + rcodeLabel(result.RCode)
		}
		return b, source
	}

	return d.errorResponse(parsed, dnswire.RCodeRefused), "refused"
}

func (d *Dispatcher) buildResolverResponse(req dnswire.Packet, result recursive.Result) dnswire.Packet {
	flags := dnswire.QRFlag | (req.Header.Flags & dnswire.RDFlag) | dnswire.RAFlag
	flags |= uint16(result.RCode) & dnswire.RCodeMask
	return dnswire.Packet{
		Header:    dnswire.Header{ID: req.Header.ID, Flags: flags, QDCount: uint16(len(req.Questions))},
		Questions: req.Questions,
		Answers:   result.Answers,
	}
}

// markRecursionAvailable sets RA on a response (authoritative, refused or
// error) whenever this
// dispatcher also offers recursion, independent of which path this
// particular query took — RA advertises server capability, not per-query
// routing (RFC 1035 §4.1.1).
func (d *Dispatcher) markRecursionAvailable(resp *dnswire.Packet) {
	if d.Resolver != nil {
		resp.Header.Flags |= dnswire.RAFlag
	}
}

func (d *Dispatcher) errorResponse(req dnswire.Packet, rcode dnswire.RCode) []byte {
	resp := dnswire.BuildErrorResponse(req, rcode)
	d.markRecursionAvailable(&resp)
	b, err := resp.Marshal()
	if err != nil {
		return nil
	}
	return b
}

func rcodeLabel(rcode dnswire.RCode) string {
	switch rcode {
	case dnswire.RCodeNXDomain:
		return "nxdomain"
	case dnswire.RCodeServFail:
		return "servfail"
	default:
		return "noerror"
	}
}

// handleParseError builds a FormatError response from whatever of the
// header/question survives parsing, the same best-effort shape as the
// teacher's tryBuildErrorFromRaw.
func (d *Dispatcher) handleParseError(reqBytes []byte) HandleResult {
	off := 0
	h, err := dnswire.ParseHeader(reqBytes, &off)
	if err != nil {
		return HandleResult{ResponseBytes: nil, Source: "parse-error", ParsedOK: false}
	}

	var questions []dnswire.Question
	if h.QDCount > 0 {
		if q, err := dnswire.ParseQuestion(reqBytes, &off); err == nil {
			questions = []dnswire.Question{q}
		}
	}

	req := dnswire.Packet{Header: dnswire.Header{ID: h.ID, Flags: h.Flags}, Questions: questions}
	resp := dnswire.BuildErrorResponse(req, dnswire.RCodeFormErr)
	d.markRecursionAvailable(&resp)
	b, err := resp.Marshal()
	if err != nil {
		return HandleResult{ResponseBytes: nil, Source: "parse-error", ParsedOK: false}
	}
	return HandleResult{ResponseBytes: b, Source: "formerr", ParsedOK: false}
}

func extractQuestionInfo(parsed dnswire.Packet) (string, int) {
	if len(parsed.Questions) == 0 {
		return "<no-question>", -1
	}
	return parsed.Questions[0].Name, int(parsed.Questions[0].Type)
}

func (d *Dispatcher) logRequest(ctx context.Context, transport, src string, parsed dnswire.Packet, qname string, qtype int, reqLen int, source string) {
	if d.Logger == nil || !d.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	d.Logger.DebugContext(ctx, "dns request",
		"transport", transport,
		"src", src,
		"id", int(parsed.Header.ID),
		"qname", qname,
		"qtype", qtype,
		"bytes", reqLen,
		"source", source,
	)
}

// Package dnswire implements the DNS wire protocol: message encoding and
// decoding, name compression, and the resource-record catalog (RFC 1035).
//
// Standards Compliance:
//
//   - RFC 1035: Domain Names - Implementation and Specification
//   - RFC 1034: Domain Names - Concepts and Facilities
//
// Type-Oriented Design:
//
// A resource record is represented by a single Record struct with a
// type-tagged RData field rather than one Go type per RR type. Marshal and
// parse dispatch on the numeric RR type internally. This keeps the catalog
// (A, NS, CNAME, SOA, PTR, MX, TXT, HINFO) closed and centrally enumerated
// in one switch rather than scattered across per-type files.
//
// Error Handling:
//
// All wire-format errors wrap ErrFormat with fmt.Errorf("...: %w", ...) so
// callers can test with errors.Is(err, dnswire.ErrFormat) without caring
// about the specific message.
package dnswire

import "errors"

// ErrFormat is the sentinel for malformed wire data: truncated messages,
// bad compression pointers, oversized names/labels, rdlength mismatches,
// and unsupported classes. Wrap it with fmt.Errorf("context: %w", ErrFormat).
var ErrFormat = errors.New("dns wire format error")

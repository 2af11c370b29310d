// Package packet extracts scannable artifacts from raw IPv4 traffic. Only
// two shapes of packet yield anything: UDP carrying a DNS query, and TCP
// carrying a plaintext HTTP request. Everything else is opaque and is
// forwarded untouched.
package packet

import (
	"strings"
)

const (
	ipv4HeaderLen = 20
	udpHeaderLen  = 8
	dnsHeaderLen  = 12

	protoTCP = 6
	protoUDP = 17

	// A TCP payload shorter than this cannot hold an HTTP request line.
	minHTTPPayload = 10
)

// Kind identifies what Extract found in a packet.
type Kind int

const (
	KindOther Kind = iota
	KindDNS
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindDNS:
		return "dns"
	case KindHTTP:
		return "http"
	default:
		return "other"
	}
}

// Info is the artifact pulled out of one packet. Domain is set for DNS
// queries, URL for HTTP requests; KindOther carries neither.
type Info struct {
	Kind   Kind
	Domain string
	URL    string
}

// Extract inspects a raw IPv4 packet and pulls out the queried domain or
// requested URL when the payload is recognizable. Non-IPv4 traffic,
// unrecognized protocols, and undecodable payloads all come back as
// KindOther; extraction never fails loudly because the packet must be
// forwarded regardless.
func Extract(b []byte) Info {
	if len(b) < ipv4HeaderLen {
		return Info{}
	}
	if b[0]>>4 != 4 {
		return Info{}
	}

	switch b[9] {
	case protoUDP:
		if domain, ok := dnsQuery(b); ok {
			return Info{Kind: KindDNS, Domain: domain}
		}
	case protoTCP:
		if url, ok := httpURL(b); ok {
			return Info{Kind: KindHTTP, URL: url}
		}
	}
	return Info{}
}

// dnsQuery reads the question name out of a DNS query packet: fixed 20-byte
// IP header, 8-byte UDP header, 12-byte DNS header, then length-prefixed
// labels up to a zero terminator. Compressed names never appear in the
// question section of a query, so label lengths are taken at face value.
func dnsQuery(b []byte) (string, bool) {
	off := ipv4HeaderLen + udpHeaderLen + dnsHeaderLen
	if len(b) <= off {
		return "", false
	}

	var sb strings.Builder
	for off < len(b) {
		n := int(b[off])
		off++
		if n == 0 {
			break
		}
		if n > 63 || off+n > len(b) {
			return "", false
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.Write(b[off : off+n])
		off += n
	}

	if sb.Len() == 0 {
		return "", false
	}
	return sb.String(), true
}

// httpURL reassembles the request target from a plaintext HTTP request in a
// TCP payload: the method and path from the request line plus the Host
// header. Only GET and POST are considered; anything else in the first
// segment is not worth a scan.
func httpURL(b []byte) (string, bool) {
	ihl := int(b[0]&0x0f) * 4
	if ihl < ipv4HeaderLen || len(b) < ihl+ipv4HeaderLen {
		return "", false
	}

	tcpLen := int(b[ihl+12]>>4) * 4
	if tcpLen < 20 {
		return "", false
	}
	start := ihl + tcpLen
	if start >= len(b) || len(b)-start < minHTTPPayload {
		return "", false
	}

	lines := strings.Split(string(b[start:]), "\r\n")
	requestLine := lines[0]
	if !strings.HasPrefix(requestLine, "GET ") && !strings.HasPrefix(requestLine, "POST ") {
		return "", false
	}

	var host string
	for _, line := range lines[1:] {
		if len(line) >= 5 && strings.EqualFold(line[:5], "host:") {
			host = strings.TrimSpace(line[5:])
			break
		}
	}
	if host == "" {
		return "", false
	}

	parts := strings.SplitN(requestLine, " ", 3)
	if len(parts) < 2 {
		return "", false
	}
	return "http://" + host + parts[1], true
}

package packet

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/phishguard/phishguard/pkg/threat"
)

// dnsPacket builds an IPv4/UDP packet carrying a DNS query for domain.
func dnsPacket(domain string) []byte {
	b := make([]byte, ipv4HeaderLen+udpHeaderLen+dnsHeaderLen)
	b[0] = 0x45
	b[9] = protoUDP
	for _, label := range splitLabels(domain) {
		b = append(b, byte(len(label)))
		b = append(b, label...)
	}
	b = append(b, 0)          // name terminator
	b = append(b, 0, 1, 0, 1) // QTYPE A, QCLASS IN
	return b
}

func splitLabels(domain string) []string {
	var labels []string
	start := 0
	for i := 0; i <= len(domain); i++ {
		if i == len(domain) || domain[i] == '.' {
			labels = append(labels, domain[start:i])
			start = i + 1
		}
	}
	return labels
}

// httpPacket builds an IPv4/TCP packet carrying a plaintext HTTP request.
func httpPacket(method, host, path string) []byte {
	b := make([]byte, ipv4HeaderLen+20)
	b[0] = 0x45
	b[9] = protoTCP
	b[ipv4HeaderLen+12] = 5 << 4 // data offset: 20-byte TCP header
	payload := method + " " + path + " HTTP/1.1\r\nHost: " + host + "\r\nAccept: */*\r\n\r\n"
	return append(b, payload...)
}

func TestExtractDNSQuery(t *testing.T) {
	info := Extract(dnsPacket("login.paypa1-secure.com"))
	if info.Kind != KindDNS {
		t.Fatalf("kind = %v, want dns", info.Kind)
	}
	if info.Domain != "login.paypa1-secure.com" {
		t.Errorf("domain = %q", info.Domain)
	}
}

func TestExtractHTTPURL(t *testing.T) {
	cases := []struct {
		name   string
		pkt    []byte
		want   string
		wantOK bool
	}{
		{"get request", httpPacket("GET", "phish.example", "/login?next=bank"), "http://phish.example/login?next=bank", true},
		{"post request", httpPacket("POST", "phish.example", "/submit"), "http://phish.example/submit", true},
		{"other method ignored", httpPacket("PUT", "phish.example", "/x"), "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := Extract(tc.pkt)
			if tc.wantOK {
				if info.Kind != KindHTTP || info.URL != tc.want {
					t.Errorf("got kind=%v url=%q, want %q", info.Kind, info.URL, tc.want)
				}
			} else if info.Kind != KindOther {
				t.Errorf("got kind=%v url=%q, want other", info.Kind, info.URL)
			}
		})
	}
}

func TestExtractHTTPWithoutHostHeader(t *testing.T) {
	b := make([]byte, ipv4HeaderLen+20)
	b[0] = 0x45
	b[9] = protoTCP
	b[ipv4HeaderLen+12] = 5 << 4
	b = append(b, "GET /x HTTP/1.1\r\nAccept: */*\r\n\r\n"...)
	if info := Extract(b); info.Kind != KindOther {
		t.Errorf("request without Host header should be opaque, got %v", info.Kind)
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	cases := []struct {
		name string
		pkt  []byte
	}{
		{"empty", nil},
		{"truncated header", make([]byte, 10)},
		{"ipv6", append([]byte{0x60}, make([]byte, 39)...)},
		{"icmp", func() []byte {
			b := make([]byte, 28)
			b[0] = 0x45
			b[9] = 1
			return b
		}()},
		{"dns label past end", func() []byte {
			b := dnsPacket("example.com")
			b[ipv4HeaderLen+udpHeaderLen+dnsHeaderLen] = 200 // length byte points past packet
			return b[:len(b)-6]
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if info := Extract(tc.pkt); info.Kind != KindOther {
				t.Errorf("kind = %v, want other", info.Kind)
			}
		})
	}
}

type fakeScanner struct {
	malicious map[string]bool
	calls     int
}

func (f *fakeScanner) QuickScan(_ context.Context, domain string) threat.ScanResult {
	f.calls++
	if f.malicious[domain] {
		return threat.ScanResult{Malicious: true, Level: threat.High, Confidence: 0.9}
	}
	return threat.ScanResult{Level: threat.Low, Confidence: 0.7}
}

type fakeInterceptor struct {
	block map[string]bool
	calls int
}

func (f *fakeInterceptor) Intercept(rawURL, _ string) bool {
	f.calls++
	return f.block[rawURL]
}

// tunnel is an in-memory stand-in for the tun device: Read drains the
// inbound queue, Write collects forwarded packets.
type tunnel struct {
	inbound [][]byte
	pos     int
	out     bytes.Buffer
	written int
}

func (tn *tunnel) Read(p []byte) (int, error) {
	if tn.pos >= len(tn.inbound) {
		return 0, io.EOF
	}
	n := copy(p, tn.inbound[tn.pos])
	tn.pos++
	return n, nil
}

func (tn *tunnel) Write(p []byte) (int, error) {
	tn.written++
	return tn.out.Write(p)
}

func TestPumpBlocksMaliciousDNS(t *testing.T) {
	tn := &tunnel{inbound: [][]byte{
		dnsPacket("good.example"),
		dnsPacket("evil.example"),
	}}
	sc := &fakeScanner{malicious: map[string]bool{"evil.example": true}}
	p := NewPump(tn, sc, nil)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	s := p.Stats()
	if s.DNSQueries != 2 || s.Blocked != 1 || s.Forwarded != 1 {
		t.Errorf("stats = %+v", s)
	}
	if tn.written != 1 {
		t.Errorf("forwarded packets = %d, want 1", tn.written)
	}
}

func TestPumpBlocksInterceptedHTTP(t *testing.T) {
	tn := &tunnel{inbound: [][]byte{
		httpPacket("GET", "ok.example", "/"),
		httpPacket("GET", "phish.example", "/login"),
	}}
	ic := &fakeInterceptor{block: map[string]bool{"http://phish.example/login": true}}
	p := NewPump(tn, nil, ic)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	s := p.Stats()
	if s.HTTPTargets != 2 || s.Blocked != 1 || s.Forwarded != 1 {
		t.Errorf("stats = %+v", s)
	}
	if ic.calls != 2 {
		t.Errorf("interceptor calls = %d, want 2", ic.calls)
	}
}

func TestPumpForwardsOpaqueTraffic(t *testing.T) {
	icmp := make([]byte, 28)
	icmp[0] = 0x45
	icmp[9] = 1
	tn := &tunnel{inbound: [][]byte{icmp}}
	p := NewPump(tn, &fakeScanner{}, &fakeInterceptor{})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s := p.Stats(); s.Forwarded != 1 || s.Blocked != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPumpFailPolicy(t *testing.T) {
	t.Run("open forwards without a scanner", func(t *testing.T) {
		tn := &tunnel{inbound: [][]byte{dnsPacket("example.com")}}
		p := NewPump(tn, nil, nil)
		p.Run(context.Background())
		if s := p.Stats(); s.Forwarded != 1 {
			t.Errorf("stats = %+v", s)
		}
	})

	t.Run("closed drops without a scanner", func(t *testing.T) {
		tn := &tunnel{inbound: [][]byte{dnsPacket("example.com")}}
		p := NewPump(tn, nil, nil, WithFailClosed(true))
		p.Run(context.Background())
		if s := p.Stats(); s.Blocked != 1 || s.Forwarded != 0 {
			t.Errorf("stats = %+v", s)
		}
	})
}

func TestPumpStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tn := &tunnel{inbound: [][]byte{dnsPacket("example.com")}}
	p := NewPump(tn, &fakeScanner{}, nil)
	if err := p.Run(ctx); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

package packet

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"

	"github.com/phishguard/phishguard/pkg/threat"
)

const defaultMTU = 32767

// DomainScanner decides whether a queried domain is malicious. Satisfied by
// *detect.Engine.
type DomainScanner interface {
	QuickScan(ctx context.Context, domain string) threat.ScanResult
}

// URLInterceptor makes the inline decision for an extracted HTTP URL.
// Satisfied by *intercept.Interceptor.
type URLInterceptor interface {
	Intercept(rawURL, source string) bool
}

// Stats is a snapshot of pump counters.
type Stats struct {
	Packets     int64 `json:"packets"`
	Forwarded   int64 `json:"forwarded"`
	Blocked     int64 `json:"blocked"`
	DNSQueries  int64 `json:"dns_queries"`
	HTTPTargets int64 `json:"http_targets"`
	WriteErrors int64 `json:"write_errors"`
}

// Pump reads raw packets from a tunnel device, scans what it can decode,
// and writes allowed packets back. The decision policy is fail-open by
// default: any packet the pump cannot decode or decide on is forwarded, so
// a scanning outage degrades to no protection rather than no connectivity.
// FailClosed inverts that for decodable-but-undecidable traffic.
type Pump struct {
	rw          io.ReadWriter
	scanner     DomainScanner
	interceptor URLInterceptor
	mtu         int
	failClosed  bool

	packets     atomic.Int64
	forwarded   atomic.Int64
	blocked     atomic.Int64
	dnsQueries  atomic.Int64
	httpTargets atomic.Int64
	writeErrors atomic.Int64
}

type Option func(*Pump)

// WithMTU sets the read buffer size.
func WithMTU(mtu int) Option {
	return func(p *Pump) {
		if mtu > 0 {
			p.mtu = mtu
		}
	}
}

// WithFailClosed makes the pump drop DNS and HTTP packets it extracted an
// artifact from but could not get a verdict for (no scanner configured).
func WithFailClosed(failClosed bool) Option {
	return func(p *Pump) { p.failClosed = failClosed }
}

// NewPump wires a tunnel stream to the detection pipeline. Either scanner
// may be nil; traffic of that kind is then handled by the fail policy.
func NewPump(rw io.ReadWriter, scanner DomainScanner, interceptor URLInterceptor, opts ...Option) *Pump {
	p := &Pump{
		rw:          rw,
		scanner:     scanner,
		interceptor: interceptor,
		mtu:         defaultMTU,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes packets until the stream ends or the context is cancelled.
// EOF is a clean shutdown, not an error.
func (p *Pump) Run(ctx context.Context) error {
	buf := make([]byte, p.mtu)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := p.rw.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n == 0 {
			continue
		}
		p.handle(ctx, buf[:n])
	}
}

func (p *Pump) handle(ctx context.Context, pkt []byte) {
	p.packets.Add(1)

	info := Extract(pkt)
	switch info.Kind {
	case KindDNS:
		p.dnsQueries.Add(1)
		if p.scanner == nil {
			if p.failClosed {
				p.blocked.Add(1)
				return
			}
			break
		}
		if res := p.scanner.QuickScan(ctx, info.Domain); res.Malicious {
			log.Printf("[packet] blocked dns query for %s (%s)", info.Domain, res.Level)
			p.blocked.Add(1)
			return
		}

	case KindHTTP:
		p.httpTargets.Add(1)
		if p.interceptor == nil {
			if p.failClosed {
				p.blocked.Add(1)
				return
			}
			break
		}
		if p.interceptor.Intercept(info.URL, "packet") {
			log.Printf("[packet] blocked http request to %s", info.URL)
			p.blocked.Add(1)
			return
		}
	}

	p.forward(pkt)
}

func (p *Pump) forward(pkt []byte) {
	if _, err := p.rw.Write(pkt); err != nil {
		p.writeErrors.Add(1)
		log.Printf("[packet] forward failed: %v", err)
		return
	}
	p.forwarded.Add(1)
}

// Stats returns a snapshot of the pump counters.
func (p *Pump) Stats() Stats {
	return Stats{
		Packets:     p.packets.Load(),
		Forwarded:   p.forwarded.Load(),
		Blocked:     p.blocked.Load(),
		DNSQueries:  p.dnsQueries.Load(),
		HTTPTargets: p.httpTargets.Load(),
		WriteErrors: p.writeErrors.Load(),
	}
}

// Package netinfra scores the network footprint of a URL's host: DNS
// resolution, address ranges, port choice, domain shape, and the hosting
// service behind it. Resolution failures are a weak signal in their own
// right, never an error.
package netinfra

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phishguard/phishguard/pkg/threat"
	"github.com/phishguard/phishguard/pkg/urlnorm"
)

const (
	scoreResolveFailure = 0.2
	scorePrivateIP      = 0.4
	scoreLoopbackIP     = 0.5
	scoreOddIPPattern   = 0.2
	scoreManyAddrs      = 0.1
	scoreHighRiskRange  = 0.2
	scorePlainHTTP      = 0.2
	scoreOddPort        = 0.3
	scoreLongDomain     = 0.1
	scoreDeepSubdomains = 0.2
	scoreManyHyphens    = 0.1
	scoreDigitHeavy     = 0.1
	scoreDynamicDNS     = 0.3
	scoreShortener      = 0.2
	scoreFreeHosting    = 0.2

	cutoffHigh   = 0.7
	cutoffMedium = 0.4
	cutoffLow    = 0.2
)

var standardPorts = map[int]bool{80: true, 443: true, 8080: true, 8443: true}

var dynamicDNSProviders = []string{
	"dyndns.org", "no-ip.org", "changeip.com", "ddns.net",
	"duckdns.org", "ngrok.io", "serveo.net",
}

var freeHostingProviders = []string{
	"000webhost.com", "freehostia.com", "x10hosting.com",
	"byethost.com", "awardspace.com", "freewebhostingarea.com",
	"github.io", "herokuapp.com", "netlify.app", "vercel.app",
}

// Resolver is the DNS dependency, satisfied by *net.Resolver. Tests inject a
// canned implementation so no scorer test touches the network.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Scorer analyzes network and infrastructure characteristics.
type Scorer struct {
	resolver Resolver
	timeout  time.Duration
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithResolver overrides the DNS resolver.
func WithResolver(r Resolver) Option {
	return func(s *Scorer) { s.resolver = r }
}

// WithTimeout bounds each DNS lookup.
func WithTimeout(d time.Duration) Option {
	return func(s *Scorer) { s.timeout = d }
}

func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		resolver: net.DefaultResolver,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze scores the host behind rawURL. A URL without a parseable host
// yields an Unknown verdict with zero confidence; every other path produces
// a banded result.
func (s *Scorer) Analyze(ctx context.Context, rawURL string) threat.AnalysisResult {
	var res threat.AnalysisResult

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		res.Level = threat.Unknown
		res.Detail("error", "invalid domain")
		return res
	}
	domain := strings.ToLower(u.Hostname())
	res.Detail("domain", domain)

	var score float64

	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	addrs, err := s.resolver.LookupHost(lctx, domain)
	if err != nil {
		log.Printf("[netinfra] resolve %s: %v", domain, err)
		addrs = nil
	}
	score += scoreAddresses(addrs, &res)
	if len(addrs) > 0 {
		res.Detail("ip_addresses", strings.Join(addrs, ","))
	}

	score += scorePort(u, &res)
	score += scoreDomainShape(domain, &res)
	score += scoreHostingService(domain, &res)

	score = threat.Clamp01(score)
	switch {
	case score >= cutoffHigh:
		res.Level = threat.High
	case score >= cutoffMedium:
		res.Level = threat.Medium
	default:
		res.Level = threat.Low
	}
	res.Confidence = score
	res.Malicious = score >= 0.5
	return res
}

func scoreAddresses(addrs []string, res *threat.AnalysisResult) float64 {
	if len(addrs) == 0 {
		res.AddFactor(threat.FactorDNS, "domain resolution failed")
		return scoreResolveFailure
	}

	var score float64
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() {
			score += scoreLoopbackIP
			res.AddFactor(threat.FactorAddress, "loopback address: "+a)
		} else if ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			score += scorePrivateIP
			res.AddFactor(threat.FactorAddress, "private address: "+a)
		}
		if oddIPv4Pattern(ip) {
			score += scoreOddIPPattern
			res.AddFactor(threat.FactorAddress, "suspicious address pattern: "+a)
		}
		if highRiskRange(ip) {
			score += scoreHighRiskRange
			res.AddFactor(threat.FactorAddress, "high-risk address range: "+a)
		}
	}
	if len(addrs) > 5 {
		score += scoreManyAddrs
		res.AddFactor(threat.FactorDNS, fmt.Sprintf("excessive addresses: %d", len(addrs)))
	}
	return score
}

func scorePort(u *url.URL, res *threat.AnalysisResult) float64 {
	port := u.Port()
	if port == "" {
		if u.Scheme == "http" {
			res.AddFactor(threat.FactorPort, "unencrypted HTTP connection")
			return scorePlainHTTP
		}
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil || !standardPorts[n] {
		res.AddFactor(threat.FactorPort, "non-standard port: "+port)
		return scoreOddPort
	}
	return 0
}

func scoreDomainShape(domain string, res *threat.AnalysisResult) float64 {
	var score float64
	if len(domain) > 50 {
		score += scoreLongDomain
		res.AddFactor(threat.FactorStructure, "excessively long domain")
	}
	if strings.Count(domain, ".")+1 > 4 {
		score += scoreDeepSubdomains
		res.AddFactor(threat.FactorStructure, "excessive subdomains")
	}
	if strings.Count(domain, "-") > 3 {
		score += scoreManyHyphens
		res.AddFactor(threat.FactorStructure, "excessive hyphens in domain")
	}
	var digits int
	for _, r := range domain {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if float64(digits) > float64(len(domain))*0.3 {
		score += scoreDigitHeavy
		res.AddFactor(threat.FactorStructure, "high digit ratio in domain")
	}
	return score
}

func scoreHostingService(domain string, res *threat.AnalysisResult) float64 {
	var score float64
	for _, p := range dynamicDNSProviders {
		if domain == p || strings.HasSuffix(domain, "."+p) {
			score += scoreDynamicDNS
			res.AddFactor(threat.FactorHosting, "dynamic DNS service: "+p)
			break
		}
	}
	if urlnorm.IsShortener(domain) {
		score += scoreShortener
		res.AddFactor(threat.FactorHosting, "URL shortener service")
	}
	for _, p := range freeHostingProviders {
		if domain == p || strings.HasSuffix(domain, "."+p) {
			score += scoreFreeHosting
			res.AddFactor(threat.FactorHosting, "free hosting service: "+p)
			break
		}
	}
	return score
}

// oddIPv4Pattern flags generated-looking IPv4 addresses: strictly sequential
// octets or addresses built from at most two distinct octet values.
func oddIPv4Pattern(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	sequential := true
	for i := 1; i < 4; i++ {
		if int(v4[i]) != int(v4[i-1])+1 {
			sequential = false
			break
		}
	}
	if sequential {
		return true
	}
	distinct := make(map[byte]bool, 4)
	for _, o := range v4 {
		distinct[o] = true
	}
	return len(distinct) <= 2
}

// highRiskRange mirrors the private/loopback/link-local watch ranges kept as
// a separate increment: an address in one of these ranges scores both as its
// class and as a watched range.
func highRiskRange(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

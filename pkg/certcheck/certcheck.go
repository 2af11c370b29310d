// Package certcheck inspects the TLS certificate presented by a URL's host
// and scores it on a 0-100 risk scale. The handshake deliberately skips chain
// verification so a self-signed or mismatched certificate can still be
// examined instead of aborting the scan.
package certcheck

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"time"
)

const (
	riskExpired        = 40
	riskExpiringSoon   = 10
	riskHostMismatch   = 30
	riskUntrustedCA    = 25
	riskWeakSignature  = 15
	riskShortValidity  = 10
	riskBrandKeyword   = 10
	riskMax            = 100
	secureBelow        = 50
	expiryWarningDays  = 30
	shortValidityDays  = 30
)

var trustedIssuers = []string{
	"DIGICERT", "GLOBALSIGN", "VERISIGN", "SYMANTEC", "GEOTRUST",
	"COMODO", "THAWTE", "RAPIDSSL", "LET'S ENCRYPT", "AMAZON",
	"GOOGLE TRUST SERVICES", "MICROSOFT", "APPLE",
}

var weakSigAlgos = map[x509.SignatureAlgorithm]bool{
	x509.MD5WithRSA:  true,
	x509.SHA1WithRSA: true,
	x509.MD2WithRSA:  true,
}

// Brand and action words that a phishing certificate's subject often carries.
// A keyword hit is waived when the subject names the brand's own domain.
var brandKeywords = []string{
	"paypal", "amazon", "google", "microsoft", "apple", "facebook",
	"secure", "login", "account", "verify", "update",
}

// Info is a snapshot of the examined certificate, kept for display and for
// the scan-history record.
type Info struct {
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	SerialNumber       string    `json:"serial_number"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
}

// Result is the certificate verdict. RiskScore runs 0-100 with higher being
// riskier; Secure means the score stayed under the secure threshold.
type Result struct {
	Secure           bool     `json:"secure"`
	CertificateValid bool     `json:"certificate_valid"`
	IssuerTrusted    bool     `json:"issuer_trusted"`
	DomainMatches    bool     `json:"domain_matches"`
	RiskScore        int      `json:"risk_score"`
	Warnings         []string `json:"warnings,omitempty"`
	Certificate      *Info    `json:"certificate,omitempty"`
}

// Dialer establishes the TLS connection. Tests swap in a dialer that returns
// canned certificates.
type Dialer interface {
	PeerCertificate(ctx context.Context, host string) (*x509.Certificate, error)
}

// Checker analyzes server certificates.
type Checker struct {
	dialer  Dialer
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Checker)

func WithDialer(d Dialer) Option {
	return func(c *Checker) { c.dialer = d }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// WithClock overrides the time source for validity checks.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		timeout: 10 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &tlsDialer{timeout: c.timeout}
	}
	return c
}

// Check fetches and scores the certificate for rawURL. Non-HTTPS URLs and
// failed handshakes come back as maximum-risk results, never errors: the
// caller always gets a scoreable verdict.
func (c *Checker) Check(ctx context.Context, rawURL string) Result {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return failure("invalid URL")
	}
	if u.Scheme != "https" {
		return failure("URL is not using HTTPS")
	}

	host := u.Hostname()
	cert, err := c.dialer.PeerCertificate(ctx, net.JoinHostPort(host, portOrDefault(u)))
	if err != nil {
		log.Printf("[certcheck] handshake %s: %v", host, err)
		return failure(fmt.Sprintf("TLS handshake failed: %v", err))
	}
	return c.score(cert, host)
}

func (c *Checker) score(cert *x509.Certificate, hostname string) Result {
	now := c.now()
	var risk int
	var warnings []string

	valid := !now.Before(cert.NotBefore) && !now.After(cert.NotAfter)
	if !valid {
		warnings = append(warnings, "certificate is expired or not yet valid")
		risk += riskExpired
	}

	daysLeft := int(cert.NotAfter.Sub(now).Hours() / 24)
	if valid && daysLeft < expiryWarningDays {
		warnings = append(warnings, fmt.Sprintf("certificate expires in %d days", daysLeft))
		risk += riskExpiringSoon
	}

	matches := cert.VerifyHostname(hostname) == nil
	if !matches {
		warnings = append(warnings, "certificate domain does not match hostname")
		risk += riskHostMismatch
	}

	trusted := issuerTrusted(cert.Issuer.String())
	if !trusted {
		warnings = append(warnings, "certificate issued by untrusted or unknown CA")
		risk += riskUntrustedCA
	}

	if weakSigAlgos[cert.SignatureAlgorithm] {
		warnings = append(warnings, "certificate uses weak signature algorithm: "+cert.SignatureAlgorithm.String())
		risk += riskWeakSignature
	}

	if days := int(cert.NotAfter.Sub(cert.NotBefore).Hours() / 24); days < shortValidityDays {
		warnings = append(warnings, fmt.Sprintf("unusually short validity period (%d days)", days))
		risk += riskShortValidity
	}

	subject := strings.ToLower(cert.Subject.String())
	for _, kw := range brandKeywords {
		if strings.Contains(subject, kw) && !strings.Contains(subject, kw+".com") {
			warnings = append(warnings, "certificate contains suspicious keyword: "+kw)
			risk += riskBrandKeyword
		}
	}

	if risk > riskMax {
		risk = riskMax
	}
	return Result{
		Secure:           risk < secureBelow,
		CertificateValid: valid,
		IssuerTrusted:    trusted,
		DomainMatches:    matches,
		RiskScore:        risk,
		Warnings:         warnings,
		Certificate: &Info{
			Subject:            cert.Subject.String(),
			Issuer:             cert.Issuer.String(),
			NotBefore:          cert.NotBefore,
			NotAfter:           cert.NotAfter,
			SerialNumber:       cert.SerialNumber.String(),
			SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		},
	}
}

func issuerTrusted(issuer string) bool {
	up := strings.ToUpper(issuer)
	for _, t := range trustedIssuers {
		if strings.Contains(up, t) {
			return true
		}
	}
	return false
}

func failure(reason string) Result {
	return Result{RiskScore: riskMax, Warnings: []string{reason}}
}

func portOrDefault(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	return "443"
}

// tlsDialer performs a real handshake with verification disabled; the point
// is to look at the certificate, not to trust it.
type tlsDialer struct {
	timeout time.Duration
}

func (d *tlsDialer) PeerCertificate(ctx context.Context, hostport string) (*x509.Certificate, error) {
	dialer := &net.Dialer{Timeout: d.timeout}
	host, _, _ := net.SplitHostPort(hostport)
	conn, err := tls.DialWithDialer(dialer, "tcp", hostport, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates presented")
	}
	return certs[0], nil
}

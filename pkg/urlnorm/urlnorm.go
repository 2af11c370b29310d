// Package urlnorm canonicalizes raw URLs before they enter the scoring
// pipeline. Canonicalization is best-effort by design: a malformed input
// degrades to a trimmed lowercase string so the pipeline always has
// something to score.
package urlnorm

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// shortenerHosts is the fixed list of link-shortening services whose targets
// we attempt to expand before re-parsing. Matching is by exact host or host
// suffix so "www.bit.ly" is caught too.
var shortenerHosts = []string{
	"bit.ly", "tinyurl.com", "ow.ly", "t.co", "goo.gl",
	"short.link", "tiny.cc", "is.gd", "buff.ly",
}

// Expander resolves a shortened link to its target URL. Implementations are
// expected to issue a bounded HEAD/GET and follow redirects; returning an
// error leaves the original URL in place.
type Expander interface {
	Expand(rawURL string) (string, error)
}

// Canonicalizer normalizes URLs into scheme://host+path[?query] form.
// The zero value is usable; an Expander is optional.
type Canonicalizer struct {
	expander Expander
}

// New returns a Canonicalizer. expander may be nil, in which case shortened
// links are normalized but not expanded.
func New(expander Expander) *Canonicalizer {
	return &Canonicalizer{expander: expander}
}

// Canonicalize returns the canonical form of rawURL: lowercased, IDN hosts
// converted to ASCII-compatible encoding, default ports stripped, and
// shortened links expanded when an expander is configured. It never returns
// an error; unparseable input falls back to lowercase/trim of the raw string.
func (c *Canonicalizer) Canonicalize(rawURL string) string {
	trimmed := strings.ToLower(strings.TrimSpace(rawURL))

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return trimmed
	}

	if c.expander != nil && IsShortener(u.Hostname()) {
		if expanded, err := c.expander.Expand(u.String()); err == nil {
			if eu, err := url.Parse(strings.ToLower(strings.TrimSpace(expanded))); err == nil && eu.Host != "" {
				u = eu
			}
		}
	}

	host := u.Hostname()
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}

	if port := u.Port(); port != "" && !isDefaultPort(u.Scheme, port) {
		host = host + ":" + port
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	return b.String()
}

// Host extracts the hostname from a URL, falling back to the raw string when
// it does not parse. Used by callers that key caches by domain.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	return strings.ToLower(u.Hostname())
}

// Domain normalizes a bare domain the way the reputation cache keys entries:
// scheme, www. prefix, path, and query stripped.
func Domain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?"); i >= 0 {
		d = d[:i]
	}
	if i := strings.IndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	return d
}

// IsShortener reports whether host belongs to a known link-shortening
// service.
func IsShortener(host string) bool {
	host = strings.ToLower(host)
	for _, s := range shortenerHosts {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

func isDefaultPort(scheme, port string) bool {
	switch scheme {
	case "http":
		return port == "80"
	case "https":
		return port == "443"
	}
	return false
}

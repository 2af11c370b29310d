// Package httputil provides the shared HTTP plumbing for outbound calls:
// pooled clients in standard timeout tiers, bounded body readers, and the
// semaphore that caps background scan concurrency.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize bounds response body reads. Threat-intel responses are
// small; anything larger is either misconfiguration or hostile.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// Shared transport with connection pooling. Safe for concurrent use; every
// tier client reuses this pool so repeated intel lookups against the same
// backend keep their TCP connections warm.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier defines standard timeout categories for outbound operations.
type TimeoutTier int

const (
	// TierFast for health checks and reputation lookups (5s)
	TierFast TimeoutTier = iota
	// TierMedium for threat-intel API calls (15s)
	TierMedium
	// TierSlow for sandbox/deep-analysis submissions (60s)
	TierSlow
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierFast:   5 * time.Second,
	TierMedium: 15 * time.Second,
	TierSlow:   60 * time.Second,
}

// Singleton clients per tier, initialized once and reused everywhere.
var (
	clientFast   *http.Client
	clientMedium *http.Client
	clientSlow   *http.Client
	clientOnce   sync.Once
)

func initClients() {
	clientFast = &http.Client{
		Timeout:   timeoutDurations[TierFast],
		Transport: sharedTransport,
	}
	clientMedium = &http.Client{
		Timeout:   timeoutDurations[TierMedium],
		Transport: sharedTransport,
	}
	clientSlow = &http.Client{
		Timeout:   timeoutDurations[TierSlow],
		Transport: sharedTransport,
	}
}

// Client returns the shared HTTP client for the given timeout tier. Use
// these instead of constructing http.Client values per request so the
// connection pool is actually shared.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	switch tier {
	case TierFast:
		return clientFast
	case TierMedium:
		return clientMedium
	case TierSlow:
		return clientSlow
	default:
		return clientMedium
	}
}

// FastClient returns the 5s-timeout client (health checks, reputation).
func FastClient() *http.Client {
	return Client(TierFast)
}

// MediumClient returns the 15s-timeout client (threat-intel calls).
func MediumClient() *http.Client {
	return Client(TierMedium)
}

// SlowClient returns the 60s-timeout client (deep analysis submissions).
func SlowClient() *http.Client {
	return Client(TierSlow)
}

// ReadResponseBody reads a response body with a hard size limit.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadErrorBody reads a response body for error reporting. Error payloads
// get a smaller limit.
func ReadErrorBody(r io.Reader) ([]byte, error) {
	const maxErrorSize = 1 * 1024 * 1024
	return io.ReadAll(io.LimitReader(r, maxErrorSize))
}

// DrainAndClose drains and closes a response body so the underlying
// connection returns to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}

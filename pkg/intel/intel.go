// Package intel talks to the threat-intelligence backend: per-URL analysis,
// per-domain reputation, threat reporting, and feed status. Results are
// cached per URL for an hour; when the backend is unreachable every call
// degrades to a local heuristic rather than failing the scan.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/phishguard/phishguard/pkg/httputil"
	"github.com/phishguard/phishguard/pkg/threat"
)

const (
	defaultCacheTTL = time.Hour
	defaultCacheCap = 100
	reportSource    = "phishguard"
)

var ipInDomain = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// Result is the backend's verdict for a URL.
type Result struct {
	URL             string             `json:"url"`
	Malicious       bool               `json:"is_malicious"`
	ThreatScore     float64            `json:"threat_score"`
	Reputation      string             `json:"reputation"`
	ThreatSources   []string           `json:"threat_sources,omitempty"`
	Categories      []string           `json:"categories,omitempty"`
	DetailedResults map[string]float64 `json:"detailed_results,omitempty"`
}

// DomainReputationResult is the backend's quick per-domain verdict.
type DomainReputationResult struct {
	Domain       string  `json:"domain"`
	Malicious    bool    `json:"is_malicious"`
	ThreatScore  float64 `json:"threat_score"`
	Reputation   string  `json:"reputation"`
	QuickSummary string  `json:"quick_summary"`
}

// ReportRequest is a threat report submitted upstream.
type ReportRequest struct {
	URL         string  `json:"url"`
	ThreatType  string  `json:"threat_type"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
	Description string  `json:"description,omitempty"`
}

// FeedsStatus describes the backend's configured intelligence feeds.
type FeedsStatus struct {
	TotalConfigured int               `json:"total_configured"`
	ActiveFeeds     int               `json:"active_feeds"`
	LastUpdated     string            `json:"last_updated"`
	Feeds           map[string]string `json:"feeds"`
}

type cacheEntry struct {
	result    Result
	timestamp time.Time
}

// Client is the threat-intelligence client. Safe for concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	cacheTTL time.Duration
	cacheCap int
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type Option func(*Client)

// WithHTTPClient overrides the pooled default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sends a bearer token with every backend request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cacheTTL = ttl }
}

func WithCacheCap(n int) Option {
	return func(c *Client) { c.cacheCap = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient builds a client against baseURL (e.g. "https://intel.internal").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httputil.MediumClient(),
		cacheTTL: defaultCacheTTL,
		cacheCap: defaultCacheCap,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzeThreat asks the backend for a full intelligence verdict on a URL.
// Cached results serve for one TTL window; backend failure falls back to the
// local heuristic, tagged as degraded.
func (c *Client) AnalyzeThreat(ctx context.Context, rawURL string) threat.AnalysisResult {
	if r, ok := c.cached(rawURL); ok {
		return toAnalysisResult(r)
	}

	var result Result
	path := "/api/threat-intel/analyze/" + url.PathEscape(rawURL)
	if err := c.getJSON(ctx, path, &result); err != nil {
		log.Printf("[intel] analyze %s: %v", rawURL, err)
		return c.fallback(rawURL)
	}

	c.store(rawURL, result)
	return toAnalysisResult(result)
}

// DomainReputation asks the backend for a quick domain verdict. Unlike
// AnalyzeThreat this returns the transport error: the reputation layer has
// its own fallback and needs to know the lookup failed.
func (c *Client) DomainReputation(ctx context.Context, domain string) (threat.AnalysisResult, error) {
	var rep DomainReputationResult
	path := "/api/threat-intel/reputation/" + url.PathEscape(domain)
	if err := c.getJSON(ctx, path, &rep); err != nil {
		return threat.AnalysisResult{}, err
	}

	res := threat.AnalysisResult{
		Level:      reputationLevel(rep.Reputation),
		Confidence: rep.ThreatScore,
		Malicious:  rep.Malicious,
	}
	res.Detail("reputation", rep.Reputation)
	if rep.QuickSummary != "" {
		res.Detail("quick_summary", rep.QuickSummary)
	}
	return res, nil
}

// ReportThreat submits a threat report and invalidates the local cache entry
// for the reported URL so the next scan sees the updated verdict.
func (c *Client) ReportThreat(ctx context.Context, rawURL, threatType string, confidence float64, description string) error {
	req := ReportRequest{
		URL:         rawURL,
		ThreatType:  threatType,
		Confidence:  confidence,
		Source:      reportSource,
		Description: description,
	}
	if err := c.postJSON(ctx, "/api/threat-intel/report", req, nil); err != nil {
		return fmt.Errorf("report threat: %w", err)
	}

	c.mu.Lock()
	delete(c.cache, rawURL)
	c.mu.Unlock()
	return nil
}

// FeedsStatus fetches the backend's feed inventory.
func (c *Client) FeedsStatus(ctx context.Context) (FeedsStatus, error) {
	var status FeedsStatus
	if err := c.getJSON(ctx, "/api/threat-intel/feeds/status", &status); err != nil {
		return FeedsStatus{}, fmt.Errorf("feeds status: %w", err)
	}
	return status, nil
}

// CacheSize reports the number of live cache entries.
func (c *Client) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *Client) cached(rawURL string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[rawURL]
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(e.timestamp) >= c.cacheTTL {
		delete(c.cache, rawURL)
		return Result{}, false
	}
	return e.result, true
}

// store inserts a result, evicting the single oldest entry when the cache
// exceeds its cap.
func (c *Client) store(rawURL string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[rawURL] = cacheEntry{result: r, timestamp: c.now()}
	if len(c.cache) > c.cacheCap {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.cache {
			if oldestKey == "" || e.timestamp.Before(oldest) {
				oldestKey, oldest = k, e.timestamp
			}
		}
		delete(c.cache, oldestKey)
	}
}

// fallback scores a URL with local heuristics when the backend is down.
func (c *Client) fallback(rawURL string) threat.AnalysisResult {
	domain := strings.ToLower(rawURL)
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && u.Hostname() != "" {
		domain = strings.ToLower(u.Hostname())
	}

	var res threat.AnalysisResult
	var score float64

	if strings.Contains(domain, "bit.ly") || strings.Contains(domain, "tinyurl") || strings.Contains(domain, "t.co") {
		score += 0.3
		res.AddFactor(threat.FactorShortener, "URL shortener")
	}
	if ipInDomain.MatchString(domain) {
		score += 0.4
		res.AddFactor(threat.FactorAddress, "IP address in domain")
	}
	if strings.Count(domain, "-") > 3 {
		score += 0.2
		res.AddFactor(threat.FactorStructure, "excessive hyphens")
	}
	if len(domain) > 50 {
		score += 0.2
		res.AddFactor(threat.FactorStructure, "unusually long domain")
	}

	switch {
	case score >= 0.7:
		res.Level = threat.High
	case score >= 0.4:
		res.Level = threat.Medium
	default:
		res.Level = threat.Low
	}
	res.Confidence = score
	res.Malicious = score >= 0.5
	res.Degraded("threat_intel_unavailable")
	return res
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := httputil.ReadErrorBody(resp.Body)
		return fmt.Errorf("%s: status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	data, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func reputationLevel(reputation string) threat.Level {
	switch reputation {
	case "malicious":
		return threat.Critical
	case "suspicious":
		return threat.High
	case "questionable":
		return threat.Medium
	default:
		return threat.Low
	}
}

func toAnalysisResult(r Result) threat.AnalysisResult {
	res := threat.AnalysisResult{
		Level:      reputationLevel(r.Reputation),
		Confidence: r.ThreatScore,
		Malicious:  r.Malicious,
	}
	res.Detail("reputation", r.Reputation)
	if len(r.ThreatSources) > 0 {
		res.Detail("threat_sources", strings.Join(r.ThreatSources, ","))
		res.AddFactor(threat.FactorIntel, "flagged by "+strings.Join(r.ThreatSources, ", "))
	}
	if len(r.Categories) > 0 {
		res.Detail("categories", strings.Join(r.Categories, ","))
	}
	return res
}

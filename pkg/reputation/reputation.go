// Package reputation maintains the per-domain reputation cache: a memory
// tier consulted on every scan, an optional Redis tier that survives
// restarts, and the static blacklist/whitelist/pattern checks that seed
// verdicts for domains nobody has looked up yet.
package reputation

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phishguard/phishguard/pkg/threat"
	"github.com/phishguard/phishguard/pkg/urlnorm"
)

const (
	defaultTTL        = 24 * time.Hour
	defaultMaxEntries = 10000
	redisKeyPrefix    = "phishguard:rep:"
)

var knownMaliciousDomains = []string{
	"phishing-example.com",
	"fake-paypal.net",
	"secure-bank-login.suspicious.com",
	"amazon-security-verify.phish.net",
	"microsoft-account-verify.fake.com",
}

var knownSafeDomains = []string{
	"google.com", "youtube.com", "facebook.com", "amazon.com",
	"microsoft.com", "apple.com", "twitter.com", "instagram.com",
	"linkedin.com", "github.com", "stackoverflow.com", "wikipedia.org",
	"reddit.com", "netflix.com", "paypal.com", "ebay.com",
}

var suspiciousNamePatterns = []string{
	"phish", "fake", "secure-", "verify-", "account-",
	"login-", "bank-", "paypal-", "amazon-", "microsoft-",
	"apple-", "google-", "facebook-", "twitter-",
}

var consecutiveDigits = regexp.MustCompile(`\d{4,}`)

// Entry is one cached reputation verdict. Timestamp is insertion time; an
// entry serves reads unchanged until it expires.
type Entry struct {
	Domain     string       `json:"domain"`
	Level      threat.Level `json:"threat_level"`
	Confidence float64      `json:"confidence"`
	Details    string       `json:"details"`
	Timestamp  time.Time    `json:"timestamp"`
}

// IntelLookup is the cloud reputation dependency used by CheckFull.
type IntelLookup interface {
	DomainReputation(ctx context.Context, domain string) (threat.AnalysisResult, error)
}

// Stats summarizes the cache for the /stats endpoint.
type Stats struct {
	TotalEntries     int `json:"total_entries"`
	ValidEntries     int `json:"valid_entries"`
	MaliciousDomains int `json:"malicious_domains"`
}

// Checker is the reputation service. All methods are safe for concurrent
// use.
type Checker struct {
	mu         sync.RWMutex
	mem        map[string]Entry
	rdb        redis.UniversalClient
	intel      IntelLookup
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type Option func(*Checker)

// WithRedis attaches a durable tier. Entries are written through
// asynchronously and reloaded on startup; a nil client keeps the cache
// memory-only.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(c *Checker) { c.rdb = rdb }
}

// WithIntel wires the cloud lookup used by CheckFull.
func WithIntel(intel IntelLookup) Option {
	return func(c *Checker) { c.intel = intel }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Checker) { c.ttl = ttl }
}

func WithMaxEntries(n int) Option {
	return func(c *Checker) { c.maxEntries = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		mem:        make(map[string]Entry),
		ttl:        defaultTTL,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rdb != nil {
		c.loadFromRedis()
	}
	return c
}

// CheckCached resolves a domain's reputation without touching the network:
// memory cache, then blacklist, whitelist, and name-pattern checks. The
// result of a list check is itself cached so the window semantics hold for
// every caller.
func (c *Checker) CheckCached(domain string) threat.AnalysisResult {
	d := urlnorm.Domain(domain)

	if e, ok := c.lookup(d); ok {
		return e.toResult()
	}

	res := basicCheck(d)
	c.cache(d, res)
	return res
}

// CheckFull consults the cloud reputation service, falling back to the
// cached/basic path when it is unreachable. Fresh cache entries win over a
// new lookup so a verdict never flips inside its TTL window.
func (c *Checker) CheckFull(ctx context.Context, domain string) threat.AnalysisResult {
	d := urlnorm.Domain(domain)

	if e, ok := c.lookup(d); ok {
		return e.toResult()
	}

	if c.intel != nil {
		res, err := c.intel.DomainReputation(ctx, d)
		if err == nil {
			c.cache(d, res)
			return res
		}
		log.Printf("[reputation] cloud lookup %s: %v", d, err)
	}

	res := basicCheck(d)
	res.Degraded("cloud reputation unavailable")
	c.cache(d, res)
	return res
}

// AddToBlacklist pins a domain as CRITICAL with full confidence for one TTL
// window.
func (c *Checker) AddToBlacklist(domain string) {
	d := urlnorm.Domain(domain)
	res := threat.AnalysisResult{
		Level:      threat.Critical,
		Confidence: 1.0,
		Malicious:  true,
	}
	res.Detail("reason", "manually added to blacklist")
	c.cache(d, res)
	log.Printf("[reputation] blacklisted %s", d)
}

// AddToWhitelist pins a domain as LOW with full confidence for one TTL
// window.
func (c *Checker) AddToWhitelist(domain string) {
	d := urlnorm.Domain(domain)
	res := threat.AnalysisResult{
		Level:      threat.Low,
		Confidence: 1.0,
	}
	res.Detail("reason", "manually added to whitelist")
	c.cache(d, res)
	log.Printf("[reputation] whitelisted %s", d)
}

// Cleanup drops expired entries from the memory tier. Redis entries expire
// on their own. Returns the number removed.
func (c *Checker) Cleanup() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int
	for d, e := range c.mem {
		if now.Sub(e.Timestamp) >= c.ttl {
			delete(c.mem, d)
			removed++
		}
	}
	return removed
}

// ClearCache empties both tiers.
func (c *Checker) ClearCache(ctx context.Context) {
	c.mu.Lock()
	c.mem = make(map[string]Entry)
	c.mu.Unlock()

	if c.rdb != nil {
		iter := c.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			c.rdb.Del(ctx, iter.Val())
		}
	}
	log.Printf("[reputation] cache cleared")
}

// CacheStats reports entry counts over the memory tier.
func (c *Checker) CacheStats() Stats {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{TotalEntries: len(c.mem)}
	for _, e := range c.mem {
		if now.Sub(e.Timestamp) < c.ttl {
			s.ValidEntries++
			if e.Level.AtLeast(threat.High) {
				s.MaliciousDomains++
			}
		}
	}
	return s
}

func (c *Checker) lookup(domain string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.mem[domain]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if c.now().Sub(e.Timestamp) >= c.ttl {
		c.mu.Lock()
		delete(c.mem, domain)
		c.mu.Unlock()
		return Entry{}, false
	}
	return e, true
}

func (c *Checker) cache(domain string, res threat.AnalysisResult) {
	e := Entry{
		Domain:     domain,
		Level:      res.Level,
		Confidence: res.Confidence,
		Details:    res.Details["reason"],
		Timestamp:  c.now(),
	}

	c.mu.Lock()
	c.mem[domain] = e
	evict := len(c.mem) > c.maxEntries
	c.mu.Unlock()

	if evict {
		c.Cleanup()
	}
	if c.rdb != nil {
		go c.persist(e)
	}
}

func (c *Checker) persist(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+e.Domain, data, c.ttl).Err(); err != nil {
		log.Printf("[reputation] persist %s: %v", e.Domain, err)
	}
}

func (c *Checker) loadFromRedis() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var loaded int
	iter := c.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := c.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			// Corrupted entry, drop it rather than fail the load.
			c.rdb.Del(ctx, iter.Val())
			continue
		}
		if c.now().Sub(e.Timestamp) < c.ttl {
			c.mu.Lock()
			c.mem[e.Domain] = e
			c.mu.Unlock()
			loaded++
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("[reputation] redis load: %v", err)
		return
	}
	log.Printf("[reputation] loaded %d entries from redis", loaded)
}

func basicCheck(domain string) threat.AnalysisResult {
	var res threat.AnalysisResult
	switch {
	case matchesList(domain, knownMaliciousDomains):
		res.Level = threat.Critical
		res.Confidence = 0.95
		res.Malicious = true
		res.AddFactor(threat.FactorReputation, "domain found in known malicious list")
		res.Detail("reason", "domain found in known malicious list")
	case matchesList(domain, knownSafeDomains):
		res.Level = threat.Low
		res.Confidence = 0.98
		res.AddFactor(threat.FactorReputation, "domain found in known safe list")
		res.Detail("reason", "domain found in known safe list")
	case suspiciousName(domain):
		res.Level = threat.High
		res.Confidence = 0.8
		res.Malicious = true
		res.AddFactor(threat.FactorReputation, "domain has suspicious characteristics")
		res.Detail("reason", "domain has suspicious characteristics")
	default:
		res.Level = threat.Medium
		res.Confidence = 0.5
		res.AddFactor(threat.FactorReputation, "unknown domain, neutral reputation")
		res.Detail("reason", "unknown domain, neutral reputation")
	}
	return res
}

func matchesList(domain string, list []string) bool {
	for _, d := range list {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func suspiciousName(domain string) bool {
	for _, p := range suspiciousNamePatterns {
		if strings.Contains(domain, p) {
			return true
		}
	}
	return strings.Count(domain, "-") > 3 ||
		len(domain) > 50 ||
		consecutiveDigits.MatchString(domain)
}

func (e Entry) toResult() threat.AnalysisResult {
	res := threat.AnalysisResult{
		Level:      e.Level,
		Confidence: e.Confidence,
		Malicious:  e.Level.AtLeast(threat.High),
	}
	if e.Details != "" {
		res.Detail("reason", e.Details)
	}
	res.Detail("cached", "true")
	return res
}

// Package intercept makes the inline block/allow decision for traffic
// flowing through the tunnel. The synchronous path touches nothing that can
// block on the network: lexical quick analysis plus the cached reputation
// tier, with a TTL verdict cache in front. Every decision also queues a
// full background scan so the cache converges on the complete verdict.
package intercept

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/phishguard/phishguard/pkg/httputil"
	"github.com/phishguard/phishguard/pkg/threat"
	"github.com/phishguard/phishguard/pkg/urlnorm"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheCap     = 1000
	defaultScanPoolSize = 32
	backgroundTimeout   = 2 * time.Minute
)

// FullScanner runs the complete pipeline; satisfied by *detect.Engine.
type FullScanner interface {
	ScanURL(ctx context.Context, rawURL string) threat.ScanResult
}

// QuickAnalyzer is the lexical fast layer.
type QuickAnalyzer interface {
	AnalyzeQuick(rawURL string) threat.AnalysisResult
}

// CachedReputation is the no-network reputation tier.
type CachedReputation interface {
	CheckCached(domain string) threat.AnalysisResult
}

// Publisher receives final verdicts from background scans. Optional.
type Publisher interface {
	Publish(result threat.ScanResult)
}

type cachedVerdict struct {
	result    threat.AnalysisResult
	blocked   bool
	timestamp time.Time
}

// Stats summarizes the interceptor for the /stats endpoint.
type Stats struct {
	TotalEntries  int                     `json:"total_entries"`
	ValidEntries  int                     `json:"valid_entries"`
	BlockedURLs   int                     `json:"blocked_urls"`
	ScanPool      httputil.SemaphoreStats `json:"scan_pool"`
	DroppedScans  int64                   `json:"dropped_scans"`
	Interceptions int64                   `json:"interceptions"`
}

// Interceptor decides inline whether a URL is allowed through. Safe for
// concurrent use.
type Interceptor struct {
	lexical    QuickAnalyzer
	reputation CachedReputation
	scanner    FullScanner
	publisher  Publisher
	pool       *httputil.Semaphore
	ttl        time.Duration
	capacity   int
	now        func() time.Time

	mu            sync.Mutex
	cache         map[string]cachedVerdict
	interceptions int64

	wg sync.WaitGroup
}

type Option func(*Interceptor)

func WithPublisher(p Publisher) Option {
	return func(i *Interceptor) { i.publisher = p }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(i *Interceptor) { i.ttl = ttl }
}

func WithCacheCap(n int) Option {
	return func(i *Interceptor) { i.capacity = n }
}

func WithScanPoolSize(n int) Option {
	return func(i *Interceptor) { i.pool = httputil.NewSemaphore(n) }
}

func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) { i.now = now }
}

func New(lexical QuickAnalyzer, reputation CachedReputation, scanner FullScanner, opts ...Option) *Interceptor {
	i := &Interceptor{
		lexical:    lexical,
		reputation: reputation,
		scanner:    scanner,
		pool:       httputil.NewSemaphore(defaultScanPoolSize),
		ttl:        defaultCacheTTL,
		capacity:   defaultCacheCap,
		now:        time.Now,
		cache:      make(map[string]cachedVerdict),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Intercept returns true when the URL should be blocked. The decision is
// made from cache or from the quick layers only; a full scan is queued in
// the background either way the first time a URL is seen. Any internal
// failure fails open.
func (i *Interceptor) Intercept(rawURL, source string) bool {
	normalized := normalize(rawURL)

	if v, ok := i.cached(normalized); ok {
		return v.blocked
	}

	quick := i.quickAnalysis(normalized)
	blocked := ShouldBlock(quick.Level, quick.Confidence)
	i.store(normalized, quick, blocked)
	i.queueFullScan(normalized, source)

	i.mu.Lock()
	i.interceptions++
	i.mu.Unlock()

	if blocked {
		log.Printf("[intercept] blocked %s (source=%s level=%s conf=%.2f)",
			normalized, source, quick.Level, quick.Confidence)
	}
	return blocked
}

// InterceptFull runs the complete pipeline synchronously. Used by callers
// that can afford to wait, such as the explicit scan API.
func (i *Interceptor) InterceptFull(ctx context.Context, rawURL, source string) bool {
	normalized := normalize(rawURL)

	if v, ok := i.cached(normalized); ok {
		return v.blocked
	}

	res := i.scanner.ScanURL(ctx, normalized)
	blocked := ShouldBlock(res.Level, res.Confidence)
	i.store(normalized, threat.AnalysisResult{
		Level:      res.Level,
		Confidence: res.Confidence,
		Malicious:  res.Malicious,
	}, blocked)
	return blocked
}

// Analysis returns the cached verdict for a URL, running a full scan when
// none exists.
func (i *Interceptor) Analysis(ctx context.Context, rawURL string) threat.AnalysisResult {
	normalized := normalize(rawURL)
	if v, ok := i.cached(normalized); ok {
		return v.result
	}

	res := i.scanner.ScanURL(ctx, normalized)
	analysis := threat.AnalysisResult{
		Level:      res.Level,
		Confidence: res.Confidence,
		Malicious:  res.Malicious,
	}
	i.store(normalized, analysis, ShouldBlock(res.Level, res.Confidence))
	return analysis
}

// ClearCache drops every cached verdict.
func (i *Interceptor) ClearCache() {
	i.mu.Lock()
	i.cache = make(map[string]cachedVerdict)
	i.mu.Unlock()
	log.Printf("[intercept] verdict cache cleared")
}

// CacheStats reports cache and scan-pool state.
func (i *Interceptor) CacheStats() Stats {
	now := i.now()
	i.mu.Lock()
	defer i.mu.Unlock()

	s := Stats{
		TotalEntries:  len(i.cache),
		ScanPool:      i.pool.Stats(),
		DroppedScans:  i.pool.DroppedCount(),
		Interceptions: i.interceptions,
	}
	for _, v := range i.cache {
		if now.Sub(v.timestamp) < i.ttl {
			s.ValidEntries++
			if v.blocked {
				s.BlockedURLs++
			}
		}
	}
	return s
}

// Wait blocks until all queued background scans finish. Test and shutdown
// hook.
func (i *Interceptor) Wait() {
	i.wg.Wait()
}

// ShouldBlock is the block policy: CRITICAL always blocks, HIGH blocks on
// strong confidence, MEDIUM only on near-certainty, anything else passes.
func ShouldBlock(level threat.Level, confidence float64) bool {
	switch level {
	case threat.Critical:
		return true
	case threat.High:
		return confidence > 0.7
	case threat.Medium:
		return confidence > 0.85
	default:
		return false
	}
}

// quickAnalysis combines the lexical quick result with the cached
// reputation verdict: worst level wins, confidences are averaged.
func (i *Interceptor) quickAnalysis(normalized string) threat.AnalysisResult {
	lex := i.lexical.AnalyzeQuick(normalized)
	rep := i.reputation.CheckCached(urlnorm.Host(normalized))

	combined := threat.AnalysisResult{
		Level:      lex.Level,
		Confidence: (lex.Confidence + rep.Confidence) / 2,
	}
	if rep.Level.AtLeast(combined.Level) {
		combined.Level = rep.Level
	}
	combined.Malicious = combined.Level.AtLeast(threat.High)
	combined.Factors = append(combined.Factors, lex.Factors...)
	combined.Factors = append(combined.Factors, rep.Factors...)
	return combined
}

func (i *Interceptor) cached(normalized string) (cachedVerdict, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, ok := i.cache[normalized]
	if !ok {
		return cachedVerdict{}, false
	}
	if i.now().Sub(v.timestamp) >= i.ttl {
		delete(i.cache, normalized)
		return cachedVerdict{}, false
	}
	return v, true
}

func (i *Interceptor) store(normalized string, res threat.AnalysisResult, blocked bool) {
	i.mu.Lock()
	i.cache[normalized] = cachedVerdict{result: res, blocked: blocked, timestamp: i.now()}
	if len(i.cache) > i.capacity {
		now := i.now()
		for k, v := range i.cache {
			if now.Sub(v.timestamp) >= i.ttl {
				delete(i.cache, k)
			}
		}
	}
	i.mu.Unlock()
}

// queueFullScan hands the URL to the background pool. At capacity the scan
// is dropped; the quick verdict stands until the URL is seen again.
func (i *Interceptor) queueFullScan(normalized, source string) {
	if i.scanner == nil {
		return
	}
	if !i.pool.TryAcquire() {
		log.Printf("[intercept] scan pool full, dropping background scan for %s", normalized)
		return
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer i.pool.Release()

		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		res := i.scanner.ScanURL(ctx, normalized)
		res.Source = source
		blocked := ShouldBlock(res.Level, res.Confidence)
		res.Blocked = blocked
		i.store(normalized, threat.AnalysisResult{
			Level:      res.Level,
			Confidence: res.Confidence,
			Malicious:  res.Malicious,
		}, blocked)

		if i.publisher != nil {
			i.publisher.Publish(res)
		}
	}()
}

func normalize(rawURL string) string {
	c := urlnorm.New(nil)
	return c.Canonicalize(rawURL)
}

// Package detect orchestrates the layered scan pipeline. Layers run in
// fixed order from cheapest to most expensive and the pipeline exits on the
// first decisive verdict; later layers never run once an earlier one has
// condemned the URL.
package detect

import (
	"context"
	"log"
	"strings"

	"github.com/phishguard/phishguard/pkg/ml"
	"github.com/phishguard/phishguard/pkg/threat"
	"github.com/phishguard/phishguard/pkg/urlnorm"
)

// Layer names as they appear in ScanResult.ScanLayers.
const (
	LayerNormalization = "Normalization"
	LayerLexical       = "Lexical"
	LayerIntel         = "ThreatIntelligence"
	LayerReputation    = "Reputation"
	LayerContent       = "Content"
	LayerML            = "ML"
	LayerDeep          = "DeepAnalysis"
)

// LexicalScorer is the text-only layer.
type LexicalScorer interface {
	AnalyzeQuick(rawURL string) threat.AnalysisResult
	AnalyzeFull(rawURL string) threat.AnalysisResult
}

// IntelService is the threat-intelligence layer.
type IntelService interface {
	AnalyzeThreat(ctx context.Context, rawURL string) threat.AnalysisResult
	DomainReputation(ctx context.Context, domain string) (threat.AnalysisResult, error)
}

// ReputationService is the domain reputation layer.
type ReputationService interface {
	CheckCached(domain string) threat.AnalysisResult
	CheckFull(ctx context.Context, domain string) threat.AnalysisResult
}

// ContentScorer is the static structure layer.
type ContentScorer interface {
	Analyze(rawURL string) threat.AnalysisResult
}

// MLScorer is the classifier layer.
type MLScorer interface {
	PredictWithIntel(rawURL string, layers ml.LayerResults) threat.AnalysisResult
}

// DeepAnalyzer runs when the classifier is undecided: network
// infrastructure and certificate inspection.
type DeepAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) threat.AnalysisResult
}

// Normalizer canonicalizes URLs before any layer sees them.
type Normalizer interface {
	Canonicalize(rawURL string) string
}

// Engine is the detection pipeline. Construct with NewEngine; all
// dependencies except Lexical and Normalizer are optional, and a missing
// layer is skipped rather than failing the scan.
type Engine struct {
	norm       Normalizer
	lexical    LexicalScorer
	intel      IntelService
	reputation ReputationService
	content    ContentScorer
	ml         MLScorer
	deep       DeepAnalyzer
}

type Option func(*Engine)

func WithNormalizer(n Normalizer) Option {
	return func(e *Engine) { e.norm = n }
}

func WithIntel(i IntelService) Option {
	return func(e *Engine) { e.intel = i }
}

func WithReputation(r ReputationService) Option {
	return func(e *Engine) { e.reputation = r }
}

func WithContent(c ContentScorer) Option {
	return func(e *Engine) { e.content = c }
}

func WithML(m MLScorer) Option {
	return func(e *Engine) { e.ml = m }
}

func WithDeepAnalyzer(d DeepAnalyzer) Option {
	return func(e *Engine) { e.deep = d }
}

func NewEngine(lexical LexicalScorer, opts ...Option) *Engine {
	e := &Engine{
		norm:    urlnorm.New(nil),
		lexical: lexical,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// QuickScan is the fast path for domain-level interception: lexical quick
// analysis, a threat-intel domain lookup, and the cached reputation check.
// No layer beyond those runs; a domain that passes is assumed safe at
// moderate confidence.
func (e *Engine) QuickScan(ctx context.Context, domain string) threat.ScanResult {
	rawURL := "https://" + strings.TrimSpace(domain)
	normalized := e.norm.Canonicalize(rawURL)
	layers := []string{LayerNormalization, LayerLexical}

	lex := e.lexical.AnalyzeQuick(normalized)
	if lex.Level.AtLeast(threat.High) {
		return malicious(normalized, lex.Level, lex.Confidence,
			"lexical analysis detected suspicious patterns", layers)
	}

	if e.intel != nil {
		intel, err := e.intel.DomainReputation(ctx, urlnorm.Domain(domain))
		if err != nil {
			log.Printf("[detect] quick intel lookup %s: %v", domain, err)
		} else if intel.Level.AtLeast(threat.High) {
			layers = append(layers, LayerIntel)
			return malicious(normalized, intel.Level, intel.Confidence,
				"domain flagged by threat intelligence", layers)
		}
	}

	layers = append(layers, LayerReputation)
	if e.reputation != nil {
		rep := e.reputation.CheckCached(domain)
		if rep.Level.AtLeast(threat.High) {
			return malicious(normalized, rep.Level, rep.Confidence,
				"domain flagged in reputation database", layers)
		}
	}

	return threat.NewScanResult(normalized, false, threat.Low, 0.7,
		"quick scan passed", layers)
}

// ScanURL is the full pipeline: lexical, threat intel, reputation, content,
// ML, and deep analysis when the classifier is undecided. The first layer
// to reach a decisive verdict ends the scan.
func (e *Engine) ScanURL(ctx context.Context, rawURL string) threat.ScanResult {
	normalized := e.norm.Canonicalize(rawURL)
	layers := []string{LayerNormalization}

	lex := e.lexical.AnalyzeFull(normalized)
	layers = append(layers, LayerLexical)
	if lex.Level.AtLeast(threat.High) {
		return malicious(normalized, lex.Level, lex.Confidence,
			"lexical analysis detected suspicious patterns: "+factorSummary(lex), layers)
	}

	var intelRes threat.AnalysisResult
	if e.intel != nil {
		intelRes = e.intel.AnalyzeThreat(ctx, normalized)
		layers = append(layers, LayerIntel)
		if intelRes.Level == threat.Critical ||
			(intelRes.Level == threat.High && intelRes.Confidence > 0.8) {
			return malicious(normalized, intelRes.Level, intelRes.Confidence,
				"confirmed malicious by threat intelligence", layers)
		}
	}

	var repRes threat.AnalysisResult
	if e.reputation != nil {
		repRes = e.reputation.CheckFull(ctx, urlnorm.Host(normalized))
		layers = append(layers, LayerReputation)
		if repRes.Level.AtLeast(threat.High) {
			return malicious(normalized, repRes.Level, repRes.Confidence,
				"domain flagged in reputation database", layers)
		}
	}

	var contentRes threat.AnalysisResult
	if e.content != nil {
		contentRes = e.content.Analyze(normalized)
		layers = append(layers, LayerContent)
		if contentRes.Level.AtLeast(threat.High) {
			return malicious(normalized, contentRes.Level, contentRes.Confidence,
				"static structure analysis detected threats: "+factorSummary(contentRes), layers)
		}
	}

	var mlRes threat.AnalysisResult
	if e.ml != nil {
		mlRes = e.ml.PredictWithIntel(normalized, ml.LayerResults{
			Lexical:    lex,
			Intel:      intelRes,
			Reputation: repRes,
			Content:    contentRes,
		})
		layers = append(layers, LayerML)
		if mlRes.Level.AtLeast(threat.High) {
			return malicious(normalized, mlRes.Level, mlRes.Confidence,
				"classifier detected phishing patterns", layers)
		}
	}

	if e.deep != nil && (mlRes.Level == threat.Medium || mlRes.Confidence < 0.8) {
		deepRes := e.deep.Analyze(ctx, normalized)
		layers = append(layers, LayerDeep)
		if deepRes.Level.AtLeast(threat.High) {
			return malicious(normalized, deepRes.Level, deepRes.Confidence,
				"deep analysis detected threats: "+factorSummary(deepRes), layers)
		}
	}

	return threat.NewScanResult(normalized, false, threat.Low, 0.9,
		"all layers passed, URL appears safe", layers)
}

func malicious(url string, level threat.Level, confidence float64, reason string, layers []string) threat.ScanResult {
	return threat.NewScanResult(url, true, level, confidence, reason, layers)
}

func factorSummary(res threat.AnalysisResult) string {
	if len(res.Factors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(res.Factors))
	for _, f := range res.Factors {
		parts = append(parts, f.Detail)
	}
	return strings.Join(parts, "; ")
}

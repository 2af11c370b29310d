// Package lexical scores URLs on their text alone: keyword and shortener
// hits, subdomain depth, homograph lookalikes, mixed Unicode scripts, and
// character entropy. It needs no network access, which makes it the first
// layer of every scan and the only scoring layer on the packet fast path.
package lexical

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/phishguard/phishguard/pkg/threat"
	"github.com/phishguard/phishguard/pkg/urlnorm"
)

// Additive score increments. Each hit adds its increment; the sum is clamped
// to [0, 1] and doubles as the result confidence.
const (
	scoreKeyword      = 0.3
	scoreShortener    = 0.5
	scoreSubdomains   = 0.4
	scoreHomograph    = 0.8
	scoreParseFailure = 0.2

	scoreHyphens     = 0.2
	scoreMixedScript = 0.7
	scoreLoginPath   = 0.3
	scoreSensitiveQ  = 0.5
	scoreEntropy     = 0.3

	subdomainLimit   = 4
	hyphenLimit      = 2
	entropyThreshold = 4.0
)

// Band cutoffs, shared by quick and full mode.
const (
	cutoffHigh   = 0.8
	cutoffMedium = 0.45
)

var suspiciousKeywords = []string{
	"secure", "verify", "update", "suspend", "limited", "expired",
	"confirm", "validate", "urgent", "immediate", "action", "required",
}

// homographVariants maps brand names to known lookalike spellings, including
// Cyrillic/Greek confusables. Matching folds the domain through NFKC first so
// full-width and composed forms collapse onto these entries.
var homographVariants = map[string][]string{
	"paypal":    {"paypa1", "paypaI", "рaypal"},
	"amazon":    {"amazοn", "am4zon", "аmazon"},
	"google":    {"goog1e", "goοgle", "gооgle"},
	"microsoft": {"microsοft", "micrοsoft", "microsooft"},
}

var sensitiveParams = []string{"email", "password", "ssn"}
var loginPathHints = []string{"login", "signin", "account"}

// Scorer performs lexical analysis. Stateless and safe for concurrent use.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

// AnalyzeQuick runs the cheap subset of checks: keywords, shorteners,
// subdomain depth, and homographs. A parse failure is itself a weak signal,
// not an error.
func (s *Scorer) AnalyzeQuick(rawURL string) threat.AnalysisResult {
	var res threat.AnalysisResult
	score := s.scoreQuick(rawURL, &res)
	finish(&res, score)
	return res
}

// AnalyzeFull runs every quick check plus hyphen density, mixed-script
// detection, login-path and sensitive-query hints, and domain entropy.
func (s *Scorer) AnalyzeFull(rawURL string) threat.AnalysisResult {
	var res threat.AnalysisResult
	score := s.scoreQuick(rawURL, &res)

	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && u.Host != "" {
		domain := strings.ToLower(u.Hostname())
		path := strings.ToLower(u.Path)
		query := strings.ToLower(u.RawQuery)

		if strings.Count(domain, "-") > hyphenLimit {
			score += scoreHyphens
			res.AddFactor(threat.FactorStructure, "excessive hyphens in domain")
		}
		if hasMixedScripts(domain) {
			score += scoreMixedScript
			res.AddFactor(threat.FactorMixedScript, "mixed character scripts in domain")
		}
		for _, hint := range loginPathHints {
			if strings.Contains(path, hint) {
				score += scoreLoginPath
				res.AddFactor(threat.FactorStructure, "login-related path: "+hint)
				break
			}
		}
		for _, p := range sensitiveParams {
			if strings.Contains(query, p) {
				score += scoreSensitiveQ
				res.AddFactor(threat.FactorStructure, "sensitive query parameter: "+p)
				break
			}
		}
		if e := entropy(strings.ReplaceAll(domain, ".", "")); e > entropyThreshold {
			score += scoreEntropy
			res.AddFactor(threat.FactorEntropy, fmt.Sprintf("high domain entropy: %.2f", e))
		}
	}

	finish(&res, score)
	return res
}

func (s *Scorer) scoreQuick(rawURL string, res *threat.AnalysisResult) float64 {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		res.AddFactor(threat.FactorParseFailure, "malformed URL")
		return scoreParseFailure
	}

	var score float64
	domain := strings.ToLower(u.Hostname())

	for _, kw := range suspiciousKeywords {
		if strings.Contains(domain, kw) {
			score += scoreKeyword
			res.AddFactor(threat.FactorKeyword, "suspicious keyword in domain: "+kw)
		}
	}
	if urlnorm.IsShortener(domain) {
		score += scoreShortener
		res.AddFactor(threat.FactorShortener, "URL shortener: "+domain)
	}
	if n := strings.Count(domain, ".") + 1; n > subdomainLimit {
		score += scoreSubdomains
		res.AddFactor(threat.FactorStructure, fmt.Sprintf("excessive subdomains: %d", n))
	}
	if brand, variant := matchHomograph(domain); brand != "" {
		score += scoreHomograph
		res.AddFactor(threat.FactorHomograph, fmt.Sprintf("%s (mimics %s)", variant, brand))
	}
	return score
}

func finish(res *threat.AnalysisResult, score float64) {
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
	res.Malicious = res.Level.AtLeast(threat.High)
}

// matchHomograph checks the NFKC-folded domain against known lookalike
// variants. Returns the mimicked brand and the matching variant.
func matchHomograph(domain string) (brand, variant string) {
	folded := norm.NFKC.String(domain)
	for b, variants := range homographVariants {
		for _, v := range variants {
			if strings.Contains(domain, v) || strings.Contains(folded, v) {
				return b, v
			}
		}
	}
	return "", ""
}

// hasMixedScripts reports whether text draws letters from more than one
// Unicode script. Common and Inherited code points are ignored so digits,
// dots, and hyphens never count as a second script.
func hasMixedScripts(text string) bool {
	var first string
	for _, r := range text {
		name := scriptOf(r)
		if name == "" || name == "Common" || name == "Inherited" {
			continue
		}
		if first == "" {
			first = name
			continue
		}
		if name != first {
			return true
		}
	}
	return false
}

func scriptOf(r rune) string {
	for name, table := range unicode.Scripts {
		if unicode.Is(table, r) {
			return name
		}
	}
	return ""
}

// entropy is the Shannon entropy of text in bits per character.
func entropy(text string) float64 {
	if text == "" {
		return 0
	}
	freq := make(map[rune]int)
	var n float64
	for _, r := range text {
		freq[r]++
		n++
	}
	var h float64
	for _, count := range freq {
		p := float64(count) / n
		h -= p * math.Log2(p)
	}
	return h
}

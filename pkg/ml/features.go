// Package ml runs the phishing classifier: a 48-dimension feature vector
// extracted from the URL and the earlier scoring layers, fed to an ONNX
// model. The model file is optional; without it the scorer blends the layer
// confidences instead, so ML absence degrades rather than disables the
// pipeline.
package ml

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/phishguard/phishguard/pkg/threat"
)

// InputSize is the classifier's input dimension: 43 URL-derived features
// plus 5 threat-intelligence features.
const InputSize = 48

var (
	ipv4Domain     = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	featureTLDs    = []string{".tk", ".ml", ".ga", ".cf", ".icu", ".top", ".click"}
	featureShorts  = []string{"bit.ly", "tinyurl.com", "ow.ly", "t.co", "goo.gl"}
	featureBrands  = []string{"paypal", "amazon", "google", "microsoft", "apple", "facebook"}
	featureKeyword = []string{
		"secure", "verify", "update", "suspend", "limited", "expired",
		"confirm", "validate", "urgent", "immediate", "action", "required",
	}
	featureRedirects = []string{"redirect", "goto", "url", "link", "target", "continue"}
)

// ExtractFeatures builds the 43 URL-derived features, zero-padded to the
// full input size. A URL that fails to parse yields zeros from the failure
// point on; the classifier was trained with the same convention.
func ExtractFeatures(rawURL string) []float32 {
	f := make([]float32, InputSize)
	i := 0

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return f
	}
	host := u.Hostname()
	domain := strings.ToLower(host)
	path := strings.ToLower(u.Path)
	query := strings.ToLower(u.RawQuery)

	// Basic URL shape (8).
	f[i] = float32(len(rawURL))
	i++
	f[i] = float32(len(host))
	i++
	f[i] = float32(len(u.Path))
	i++
	f[i] = float32(len(u.RawQuery))
	i++
	f[i] = float32(strings.Count(host, "."))
	i++
	f[i] = b2f(u.Scheme == "https")
	i++
	f[i] = b2f(u.Port() != "")
	i++
	f[i] = b2f(u.Fragment != "")
	i++

	// Character distribution (12).
	for _, ch := range []string{"-", "_", ".", "/", "?", "=", "&"} {
		f[i] = float32(strings.Count(rawURL, ch))
		i++
	}
	var digits, alphas int
	for _, r := range rawURL {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			alphas++
		}
	}
	f[i] = float32(digits) / float32(len(rawURL))
	i++
	f[i] = float32(alphas) / float32(len(rawURL))
	i++
	f[i] = entropy(rawURL)
	i++
	longest, avg := wordStats(rawURL)
	f[i] = longest
	i++
	f[i] = avg
	i++

	// Domain shape (8).
	f[i] = b2f(ipv4Domain.MatchString(domain))
	i++
	f[i] = b2f(hasSuffix(domain, featureTLDs))
	i++
	f[i] = b2f(containsAny(domain, featureShorts))
	i++
	f[i] = b2f(strings.ContainsAny(domain, "0123456789"))
	i++
	f[i] = entropy(strings.ReplaceAll(domain, ".", ""))
	i++
	f[i] = float32(strings.Count(domain, "."))
	i++
	f[i] = float32(len(domain))
	i++
	if idx := strings.LastIndexByte(domain, '.'); idx >= 0 {
		f[i] = float32(len(domain) - idx - 1)
	}
	i++

	// Path and query (6).
	f[i] = float32(strings.Count(path, "/"))
	i++
	f[i] = b2f(strings.ContainsRune(path[strings.LastIndex(path, "/")+1:], '.'))
	i++
	f[i] = countMatches(path, featureKeyword)
	i++
	if query != "" {
		f[i] = float32(len(strings.Split(query, "&")))
	}
	i++
	f[i] = countMatches(query, featureKeyword)
	i++
	f[i] = b2f(strings.Contains(query, "%"))
	i++

	// Transport (4).
	f[i] = b2f(u.Scheme == "https")
	i++
	f[i] = b2f(u.Scheme == "http")
	i++
	f[i] = b2f(u.Port() != "" && u.Port() != "80" && u.Port() != "443")
	i++
	f[i] = b2f(strings.Contains(rawURL, "@"))
	i++

	// Suspicious patterns (5).
	lower := strings.ToLower(rawURL)
	f[i] = countMatches(lower, featureBrands)
	i++
	f[i] = countMatches(lower, featureKeyword)
	i++
	f[i] = b2f(nonASCIIRatio(rawURL) > 0.1)
	i++
	f[i] = countMatches(lower, featureRedirects)
	i++
	f[i] = float32(strings.Count(rawURL, ":") - 1)

	return f
}

// AppendIntelFeatures fills the last 5 slots with threat-intelligence
// signals: confidence, verdict, reputation score, source count, and a
// numeric severity encoding.
func AppendIntelFeatures(features []float32, intel threat.AnalysisResult) {
	base := InputSize - 5
	features[base] = float32(intel.Confidence)
	features[base+1] = b2f(intel.Malicious)
	features[base+2] = parseFloat(intel.Details["reputation_score"])
	features[base+3] = parseFloat(intel.Details["threat_sources_count"])
	features[base+4] = levelFeature(intel.Level)
}

func levelFeature(l threat.Level) float32 {
	switch l {
	case threat.Critical:
		return 1.0
	case threat.High:
		return 0.8
	case threat.Medium:
		return 0.6
	case threat.Low:
		return 0.4
	default:
		return 0.0
	}
}

func b2f(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func entropy(text string) float32 {
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
	return float32(h)
}

var nonAlpha = regexp.MustCompile(`[^a-zA-Z]+`)

func wordStats(text string) (longest, average float32) {
	words := nonAlpha.Split(text, -1)
	var total, count int
	for _, w := range words {
		if w == "" {
			continue
		}
		count++
		total += len(w)
		if float32(len(w)) > longest {
			longest = float32(len(w))
		}
	}
	if count > 0 {
		average = float32(total) / float32(count)
	}
	return longest, average
}

func nonASCIIRatio(text string) float64 {
	if text == "" {
		return 0
	}
	var nonASCII int
	for _, r := range text {
		if r >= 128 {
			nonASCII++
		}
	}
	return float64(nonASCII) / float64(len([]rune(text)))
}

func countMatches(text string, terms []string) float32 {
	var n int
	for _, t := range terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return float32(n)
}

func hasSuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func parseFloat(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0
	}
	return float32(v)
}

// Package content scores a URL's visible structure the way a page-content
// analyzer would score its markup: transport security, address-vs-domain,
// TLD reputation, path and query shape, phishing vocabulary, and brand
// impersonation. No page is fetched; everything is derived from the URL.
package content

import (
	"net"
	"net/url"
	"strings"

	"github.com/phishguard/phishguard/pkg/threat"
)

const (
	scoreNoHTTPS       = 0.3
	scoreIPLiteral     = 0.4
	scoreBadTLD        = 0.2
	scoreDeepSubs      = 0.2
	scoreObfuscated    = 0.3
	scoreDeepPath      = 0.1
	scorePathKeyword   = 0.1
	scoreBadExtension  = 0.3
	scoreManyParams    = 0.1
	scoreRedirectParam = 0.2
	scoreEncodedQuery  = 0.1
	scoreLoginForm     = 0.1
	scorePaymentForm   = 0.2
	scoreBrandHit      = 0.3
	brandRiskCap       = 0.5

	cutoffHigh   = 0.7
	cutoffMedium = 0.4
)

var suspiciousTLDs = []string{".tk", ".ml", ".ga", ".cf", ".icu", ".top", ".click", ".download"}

var phishingKeywords = []string{
	"verify", "suspend", "urgent", "immediate", "expire", "update",
	"confirm", "secure", "validate", "restricted", "limited",
	"click here", "act now", "winner", "congratulations",
}

var pathKeywords = []string{"secure", "verify", "update", "login", "signin"}
var badExtensions = []string{".exe", ".zip", ".rar", ".bat", ".scr"}
var redirectParams = []string{"redirect", "goto", "url", "link", "continue", "target"}
var loginHints = []string{"login", "signin", "auth", "account"}
var paymentHints = []string{"payment", "billing", "checkout", "pay"}

var popularBrands = []string{
	"paypal", "amazon", "google", "microsoft", "apple", "facebook",
	"twitter", "instagram", "linkedin", "netflix", "spotify", "github",
}

// legitimateBrandDomains waives the impersonation increment for the brand's
// own hosting domains.
var legitimateBrandDomains = map[string][]string{
	"paypal":    {"paypal.com", "paypalobjects.com"},
	"amazon":    {"amazon.com", "amazonaws.com", "awsstatic.com"},
	"google":    {"google.com", "googleapis.com", "googleusercontent.com"},
	"microsoft": {"microsoft.com", "microsoftonline.com", "live.com"},
	"apple":     {"apple.com", "icloud.com", "me.com"},
	"facebook":  {"facebook.com", "fbcdn.net", "instagram.com"},
}

// Scorer performs static structure analysis. Stateless.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

// Analyze scores rawURL. An unparseable URL yields an Unknown verdict with
// zero confidence.
func (s *Scorer) Analyze(rawURL string) threat.AnalysisResult {
	var res threat.AnalysisResult

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		res.Level = threat.Unknown
		res.Detail("error", "invalid URL")
		return res
	}
	domain := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)
	query := strings.ToLower(u.RawQuery)
	full := strings.ToLower(rawURL)

	var score float64

	if u.Scheme != "https" {
		score += scoreNoHTTPS
		res.AddFactor(threat.FactorStructure, "non-HTTPS connection")
	}
	if net.ParseIP(domain) != nil {
		score += scoreIPLiteral
		res.AddFactor(threat.FactorAddress, "IP address instead of domain")
	}
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(domain, tld) {
			score += scoreBadTLD
			res.AddFactor(threat.FactorStructure, "suspicious top-level domain: "+tld)
			break
		}
	}
	if strings.Count(domain, ".")+1 > 4 {
		score += scoreDeepSubs
		res.AddFactor(threat.FactorStructure, "excessive subdomains")
	}
	if obfuscatedDomain(domain) {
		score += scoreObfuscated
		res.AddFactor(threat.FactorStructure, "obfuscated domain name")
	}

	if r := pathRisk(path, &res); r > 0 {
		score += r
	}
	if r := queryRisk(query, &res); r > 0 {
		score += r
	}
	if r := keywordRisk(full); r > 0 {
		score += r
		res.AddFactor(threat.FactorKeyword, "phishing keywords in URL")
	}
	if r := formRisk(full, &res); r > 0 {
		score += r
	}
	if r := brandRisk(domain, &res); r > 0 {
		score += r
	}

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
	res.Detail("analysis_type", "static_structure")
	return res
}

func obfuscatedDomain(domain string) bool {
	if strings.Count(domain, "-") > 3 {
		return true
	}
	hasDigit := strings.ContainsAny(domain, "0123456789")
	return hasDigit && len(domain) > 50
}

func pathRisk(path string, res *threat.AnalysisResult) float64 {
	var risk float64
	if strings.Count(path, "/") > 5 {
		risk += scoreDeepPath
	}
	for _, kw := range pathKeywords {
		if strings.Contains(path, kw) {
			risk += scorePathKeyword
			break
		}
	}
	for _, ext := range badExtensions {
		if strings.HasSuffix(path, ext) {
			risk += scoreBadExtension
			break
		}
	}
	if risk > 0.1 {
		res.AddFactor(threat.FactorStructure, "suspicious URL path structure")
	}
	return risk
}

func queryRisk(query string, res *threat.AnalysisResult) float64 {
	if query == "" {
		return 0
	}
	var risk float64
	if len(strings.Split(query, "&")) > 10 {
		risk += scoreManyParams
	}
	for _, p := range redirectParams {
		if strings.Contains(query, p) {
			risk += scoreRedirectParam
			break
		}
	}
	if strings.Count(query, "%") > 5 {
		risk += scoreEncodedQuery
	}
	if risk > 0.1 {
		res.AddFactor(threat.FactorStructure, "suspicious query parameters")
	}
	return risk
}

// keywordRisk counts distinct phishing vocabulary hits across the full URL.
// The increment saturates at three hits.
func keywordRisk(full string) float64 {
	var hits int
	for _, kw := range phishingKeywords {
		if strings.Contains(full, kw) {
			hits++
		}
	}
	switch {
	case hits == 0:
		return 0
	case hits == 1:
		return 0.1
	case hits == 2:
		return 0.2
	default:
		return 0.3
	}
}

func formRisk(full string, res *threat.AnalysisResult) float64 {
	var risk float64
	for _, h := range loginHints {
		if strings.Contains(full, h) {
			risk += scoreLoginForm
			break
		}
	}
	for _, h := range paymentHints {
		if strings.Contains(full, h) {
			risk += scorePaymentForm
			break
		}
	}
	if risk > 0.1 {
		res.AddFactor(threat.FactorStructure, "suspicious form patterns")
	}
	return risk
}

func brandRisk(domain string, res *threat.AnalysisResult) float64 {
	var risk float64
	for _, brand := range popularBrands {
		if strings.Contains(domain, brand) && !legitimateBrandDomain(domain, brand) {
			risk += scoreBrandHit
		}
	}
	if risk > brandRiskCap {
		risk = brandRiskCap
	}
	if risk > 0.1 {
		res.AddFactor(threat.FactorBrand, "potential brand impersonation")
	}
	return risk
}

func legitimateBrandDomain(domain, brand string) bool {
	for _, legit := range legitimateBrandDomains[brand] {
		if domain == legit || strings.HasSuffix(domain, "."+legit) {
			return true
		}
	}
	return false
}

package threat

import (
	"time"

	"github.com/google/uuid"
)

// FactorKind tags a contributing factor with the class of evidence behind it.
// New kinds can be added without widening the result type; consumers that do
// not recognize a kind fall back to the free-form detail string.
type FactorKind string

const (
	FactorKeyword      FactorKind = "keyword"
	FactorShortener    FactorKind = "shortener"
	FactorHomograph    FactorKind = "homograph"
	FactorMixedScript  FactorKind = "mixed_script"
	FactorEntropy      FactorKind = "entropy"
	FactorParseFailure FactorKind = "parse_failure"
	FactorDNS          FactorKind = "dns"
	FactorAddress      FactorKind = "address"
	FactorPort         FactorKind = "port"
	FactorHosting      FactorKind = "hosting"
	FactorCertificate  FactorKind = "certificate"
	FactorStructure    FactorKind = "structure"
	FactorBrand        FactorKind = "brand"
	FactorReputation   FactorKind = "reputation"
	FactorIntel        FactorKind = "intel"
	FactorDegraded     FactorKind = "degraded"
	FactorModel        FactorKind = "model"
)

// Factor is one piece of evidence that contributed to a verdict.
type Factor struct {
	Kind   FactorKind `json:"kind"`
	Detail string     `json:"detail"`
}

// AnalysisResult is the output of a single scoring layer. Immutable once
// returned: layers build a fresh value per call and never retain a reference.
type AnalysisResult struct {
	Level      Level             `json:"threat_level"`
	Confidence float64           `json:"confidence"`
	Malicious  bool              `json:"malicious"`
	Factors    []Factor          `json:"factors,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// AddFactor appends a factor and returns the result for chaining during
// construction. Not safe for use after the result has been returned.
func (r *AnalysisResult) AddFactor(kind FactorKind, detail string) {
	r.Factors = append(r.Factors, Factor{Kind: kind, Detail: detail})
}

// Detail sets a diagnostic key/value pair, allocating the map on first use.
func (r *AnalysisResult) Detail(key, value string) {
	if r.Details == nil {
		r.Details = make(map[string]string)
	}
	r.Details[key] = value
}

// Degraded marks the result as produced without some external dependency.
// The caller still gets a usable verdict; the flag is for diagnostics only.
func (r *AnalysisResult) Degraded(reason string) {
	r.Detail("degraded", reason)
	r.AddFactor(FactorDegraded, reason)
}

// IsDegraded reports whether the result was produced on a fallback path.
func (r *AnalysisResult) IsDegraded() bool {
	_, ok := r.Details["degraded"]
	return ok
}

// ScanResult is the terminal output of a scan. One is produced per
// invocation and never mutated afterwards.
type ScanResult struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Malicious  bool              `json:"malicious"`
	Level      Level             `json:"threat_level"`
	Confidence float64           `json:"confidence"`
	Reason     string            `json:"reason"`
	ScanLayers []string          `json:"scan_layers"`
	Timestamp  time.Time         `json:"timestamp"`
	Source     string            `json:"source,omitempty"`
	Blocked    bool              `json:"blocked"`
	Details    map[string]string `json:"details,omitempty"`
}

// NewScanResult stamps a fresh result with an ID and timestamp. The layers
// slice is copied so the caller's accumulator can keep growing.
func NewScanResult(url string, malicious bool, level Level, confidence float64, reason string, layers []string) ScanResult {
	ls := make([]string, len(layers))
	copy(ls, layers)
	return ScanResult{
		ID:         uuid.NewString(),
		URL:        url,
		Malicious:  malicious,
		Level:      level,
		Confidence: confidence,
		Reason:     reason,
		ScanLayers: ls,
		Timestamp:  time.Now(),
	}
}

// Clamp01 bounds an additive score to [0, 1]. Every heuristic layer sums
// fixed increments and clamps, rather than multiplying probabilities.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

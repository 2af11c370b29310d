package ml

import (
	"fmt"
	"log"
	"math"

	"github.com/phishguard/phishguard/pkg/threat"
)

// LayerResults carries the earlier layers' verdicts into the classifier.
type LayerResults struct {
	Lexical    threat.AnalysisResult
	Intel      threat.AnalysisResult
	Reputation threat.AnalysisResult
	Content    threat.AnalysisResult
}

// Scorer produces the ML layer verdict. A nil model is a valid state: every
// prediction then takes the blended-fallback path.
type Scorer struct {
	model Model
}

// NewScorer wraps a model. Pass nil to run fallback-only.
func NewScorer(model Model) *Scorer {
	return &Scorer{model: model}
}

// HasModel reports whether a classifier is loaded.
func (s *Scorer) HasModel() bool { return s.model != nil }

// PredictWithIntel runs the enhanced prediction: the 48-feature vector
// through the model, then the raw prediction blended with the threat-intel
// confidence. Intel's weight rises from 0.3 to 0.5 when its confidence
// exceeds 0.8.
func (s *Scorer) PredictWithIntel(rawURL string, layers LayerResults) threat.AnalysisResult {
	if s.model == nil {
		return s.enhancedFallback(layers)
	}

	features := ExtractFeatures(rawURL)
	AppendIntelFeatures(features, layers.Intel)

	prediction, err := s.model.Infer(features)
	if err != nil {
		log.Printf("[ml] inference failed: %v", err)
		return s.enhancedFallback(layers)
	}

	score := blendWithIntel(float64(prediction), layers.Intel.Confidence)
	res := bandEnhanced(score)
	res.AddFactor(threat.FactorModel, fmt.Sprintf("classifier score %.2f", prediction))
	res.Detail("ml_prediction", fmt.Sprintf("%.4f", prediction))
	res.Detail("combined_score", fmt.Sprintf("%.4f", score))
	return res
}

// Predict runs the plain prediction without intel blending. Used when the
// intel layer was skipped entirely.
func (s *Scorer) Predict(rawURL string, layers LayerResults) threat.AnalysisResult {
	if s.model == nil {
		return plainFallback(layers)
	}

	features := ExtractFeatures(rawURL)
	prediction, err := s.model.Infer(features)
	if err != nil {
		log.Printf("[ml] inference failed: %v", err)
		return plainFallback(layers)
	}

	p := float64(prediction)
	var res threat.AnalysisResult
	switch {
	case p >= 0.8:
		res.Level = threat.High
	case p >= 0.5:
		res.Level = threat.Medium
	default:
		res.Level = threat.Low
	}
	res.Confidence = p
	res.Malicious = p >= 0.5
	res.AddFactor(threat.FactorModel, fmt.Sprintf("classifier score %.2f", prediction))
	return res
}

func blendWithIntel(prediction, intelConfidence float64) float64 {
	intelWeight := 0.3
	if intelConfidence > 0.8 {
		intelWeight = 0.5
	}
	return prediction*(1-intelWeight) + intelConfidence*intelWeight
}

// enhancedFallback blends the four layer confidences with threat intel
// weighted heaviest, flooring the score at 0.8 when intel itself called the
// URL malicious with high confidence.
func (s *Scorer) enhancedFallback(layers LayerResults) threat.AnalysisResult {
	score := layers.Intel.Confidence*0.4 +
		layers.Lexical.Confidence*0.25 +
		layers.Reputation.Confidence*0.2 +
		layers.Content.Confidence*0.15

	if layers.Intel.Malicious && layers.Intel.Confidence > 0.7 {
		score = math.Max(score, 0.8)
	}

	res := bandEnhanced(score)
	res.Degraded("ml_model_unavailable")
	return res
}

func plainFallback(layers LayerResults) threat.AnalysisResult {
	score := (layers.Lexical.Confidence + layers.Reputation.Confidence + layers.Content.Confidence) / 3

	var res threat.AnalysisResult
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
	res.Degraded("ml_model_unavailable")
	return res
}

func bandEnhanced(score float64) threat.AnalysisResult {
	var res threat.AnalysisResult
	switch {
	case score >= 0.8:
		res.Level = threat.Critical
	case score >= 0.6:
		res.Level = threat.High
	case score >= 0.4:
		res.Level = threat.Medium
	default:
		res.Level = threat.Low
	}
	res.Confidence = score
	res.Malicious = score >= 0.5
	return res
}

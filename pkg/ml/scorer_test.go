package ml

import (
	"errors"
	"math"
	"testing"

	"github.com/phishguard/phishguard/pkg/threat"
)

type stubModel struct {
	prediction float32
	err        error
	lastInput  []float32
}

func (m *stubModel) Infer(features []float32) (float32, error) {
	m.lastInput = append([]float32(nil), features...)
	return m.prediction, m.err
}

func (m *stubModel) Close() error { return nil }

func TestExtractFeaturesShape(t *testing.T) {
	f := ExtractFeatures("https://secure-login.example.com:8443/account/verify?email=x&redirect=y#top")
	if len(f) != InputSize {
		t.Fatalf("len = %d, want %d", len(f), InputSize)
	}
	// URL length is the first feature.
	if f[0] == 0 {
		t.Error("feature 0 (url length) should be non-zero")
	}
	// The 5 intel slots stay zero until AppendIntelFeatures runs.
	for i := InputSize - 5; i < InputSize; i++ {
		if f[i] != 0 {
			t.Errorf("intel slot %d pre-filled: %v", i, f[i])
		}
	}
}

func TestExtractFeaturesMalformedURLIsZeros(t *testing.T) {
	f := ExtractFeatures("%%%not a url")
	for i, v := range f {
		if v != 0 {
			t.Fatalf("feature %d = %v, want 0 for malformed URL", i, v)
		}
	}
}

func TestAppendIntelFeatures(t *testing.T) {
	intel := threat.AnalysisResult{
		Level:      threat.High,
		Confidence: 0.9,
		Malicious:  true,
	}
	intel.Detail("reputation_score", "0.85")
	intel.Detail("threat_sources_count", "3")

	f := make([]float32, InputSize)
	AppendIntelFeatures(f, intel)

	base := InputSize - 5
	want := []float32{0.9, 1, 0.85, 3, 0.8}
	for i, w := range want {
		if math.Abs(float64(f[base+i]-w)) > 1e-6 {
			t.Errorf("intel feature %d = %v, want %v", i, f[base+i], w)
		}
	}
}

func TestPredictWithIntelBlending(t *testing.T) {
	t.Run("standard weights", func(t *testing.T) {
		m := &stubModel{prediction: 1.0}
		s := NewScorer(m)
		res := s.PredictWithIntel("https://example.com/", LayerResults{
			Intel: threat.AnalysisResult{Confidence: 0.0},
		})
		// 1.0*0.7 + 0.0*0.3 = 0.7 -> HIGH.
		if math.Abs(res.Confidence-0.7) > 1e-6 {
			t.Errorf("score = %v, want 0.7", res.Confidence)
		}
		if res.Level != threat.High {
			t.Errorf("level = %s, want HIGH", res.Level)
		}
	})

	t.Run("high-confidence intel shifts weights", func(t *testing.T) {
		m := &stubModel{prediction: 0.2}
		s := NewScorer(m)
		res := s.PredictWithIntel("https://example.com/", LayerResults{
			Intel: threat.AnalysisResult{Confidence: 0.9},
		})
		// 0.2*0.5 + 0.9*0.5 = 0.55 -> MEDIUM.
		if math.Abs(res.Confidence-0.55) > 1e-6 {
			t.Errorf("score = %v, want 0.55", res.Confidence)
		}
		if res.Level != threat.Medium {
			t.Errorf("level = %s, want MEDIUM", res.Level)
		}
	})

	t.Run("critical band", func(t *testing.T) {
		m := &stubModel{prediction: 1.0}
		s := NewScorer(m)
		res := s.PredictWithIntel("https://example.com/", LayerResults{
			Intel: threat.AnalysisResult{Confidence: 0.9, Malicious: true},
		})
		// 1.0*0.5 + 0.9*0.5 = 0.95 -> CRITICAL.
		if res.Level != threat.Critical {
			t.Errorf("level = %s, want CRITICAL (%.2f)", res.Level, res.Confidence)
		}
	})
}

func TestPredictWithIntelFillsIntelSlots(t *testing.T) {
	m := &stubModel{prediction: 0.5}
	s := NewScorer(m)
	intel := threat.AnalysisResult{Level: threat.Critical, Confidence: 0.95, Malicious: true}
	s.PredictWithIntel("https://example.com/", LayerResults{Intel: intel})

	base := InputSize - 5
	if m.lastInput[base] != 0.95 || m.lastInput[base+1] != 1 || m.lastInput[base+4] != 1.0 {
		t.Errorf("intel slots = %v", m.lastInput[base:])
	}
}

func TestEnhancedFallbackWithoutModel(t *testing.T) {
	s := NewScorer(nil)

	t.Run("weighted blend", func(t *testing.T) {
		res := s.PredictWithIntel("https://example.com/", LayerResults{
			Intel:      threat.AnalysisResult{Confidence: 0.5},
			Lexical:    threat.AnalysisResult{Confidence: 0.4},
			Reputation: threat.AnalysisResult{Confidence: 0.5},
			Content:    threat.AnalysisResult{Confidence: 0.2},
		})
		// 0.5*0.4 + 0.4*0.25 + 0.5*0.2 + 0.2*0.15 = 0.43 -> MEDIUM.
		if math.Abs(res.Confidence-0.43) > 1e-6 {
			t.Errorf("score = %v, want 0.43", res.Confidence)
		}
		if !res.IsDegraded() {
			t.Error("fallback must be tagged degraded")
		}
	})

	t.Run("intel floor", func(t *testing.T) {
		res := s.PredictWithIntel("https://example.com/", LayerResults{
			Intel: threat.AnalysisResult{Confidence: 0.75, Malicious: true},
		})
		// Blend alone is 0.3, but malicious intel above 0.7 floors it at 0.8.
		if res.Confidence != 0.8 {
			t.Errorf("score = %v, want floor 0.8", res.Confidence)
		}
		if res.Level != threat.Critical {
			t.Errorf("level = %s, want CRITICAL", res.Level)
		}
	})
}

func TestInferenceErrorFallsBack(t *testing.T) {
	m := &stubModel{err: errors.New("session lost")}
	s := NewScorer(m)
	res := s.PredictWithIntel("https://example.com/", LayerResults{
		Intel: threat.AnalysisResult{Confidence: 0.6},
	})
	if !res.IsDegraded() {
		t.Error("inference failure should take the fallback path")
	}
}

func TestPlainPredict(t *testing.T) {
	m := &stubModel{prediction: 0.85}
	s := NewScorer(m)
	res := s.Predict("https://example.com/", LayerResults{})
	if res.Level != threat.High || !res.Malicious {
		t.Errorf("got %s malicious=%v, want HIGH/true", res.Level, res.Malicious)
	}

	sNoModel := NewScorer(nil)
	res = sNoModel.Predict("https://example.com/", LayerResults{
		Lexical:    threat.AnalysisResult{Confidence: 0.9},
		Reputation: threat.AnalysisResult{Confidence: 0.9},
		Content:    threat.AnalysisResult{Confidence: 0.9},
	})
	// Mean 0.9 -> HIGH on the plain fallback bands.
	if res.Level != threat.High {
		t.Errorf("plain fallback level = %s, want HIGH", res.Level)
	}
}

package content

import (
	"testing"

	"github.com/phishguard/phishguard/pkg/threat"
)

func TestAnalyzeCleanURL(t *testing.T) {
	s := NewScorer()
	res := s.Analyze("https://example.org/docs/getting-started")
	if res.Level != threat.Low {
		t.Errorf("level = %s, want LOW (conf %.2f, %+v)", res.Level, res.Confidence, res.Factors)
	}
	if res.Malicious {
		t.Error("clean URL should not be malicious")
	}
}

func TestAnalyzeInvalidURLIsUnknown(t *testing.T) {
	s := NewScorer()
	res := s.Analyze("%%% nope")
	if res.Level != threat.Unknown || res.Confidence != 0 {
		t.Errorf("got %s conf %.2f, want UNKNOWN conf 0", res.Level, res.Confidence)
	}
}

func TestIPLiteralHost(t *testing.T) {
	s := NewScorer()
	// no https 0.3 + IP literal 0.4 = 0.7 -> HIGH.
	res := s.Analyze("http://192.0.2.7/index.html")
	if res.Level != threat.High {
		t.Errorf("level = %s, want HIGH (conf %.2f)", res.Level, res.Confidence)
	}
	if !hasFactor(res, threat.FactorAddress) {
		t.Errorf("expected address factor: %+v", res.Factors)
	}
}

func TestSuspiciousTLD(t *testing.T) {
	s := NewScorer()
	res := s.Analyze("https://freestuff.tk/")
	if res.Confidence != 0.2 {
		t.Errorf("conf = %.2f, want 0.2 (%+v)", res.Confidence, res.Factors)
	}
}

func TestBrandImpersonation(t *testing.T) {
	s := NewScorer()

	t.Run("lookalike flagged", func(t *testing.T) {
		res := s.Analyze("https://paypal.account-check.example/")
		if !hasFactor(res, threat.FactorBrand) {
			t.Errorf("expected brand factor: %+v", res.Factors)
		}
	})

	t.Run("legitimate domain waived", func(t *testing.T) {
		res := s.Analyze("https://www.paypal.com/")
		if hasFactor(res, threat.FactorBrand) {
			t.Errorf("paypal.com should not be impersonation: %+v", res.Factors)
		}
	})

	t.Run("brand risk capped", func(t *testing.T) {
		res := s.Analyze("https://paypal-amazon-google.example/")
		// 3 brand hits would be 0.9 uncapped; cap holds it at 0.5.
		var brandFactors int
		for _, f := range res.Factors {
			if f.Kind == threat.FactorBrand {
				brandFactors++
			}
		}
		if brandFactors != 1 {
			t.Errorf("brand factors = %d, want 1", brandFactors)
		}
	})
}

func TestRedirectQueryParameters(t *testing.T) {
	s := NewScorer()
	res := s.Analyze("https://example.org/out?redirect=https://evil.example")
	if !hasFactor(res, threat.FactorStructure) {
		t.Errorf("expected structure factor for redirect param: %+v", res.Factors)
	}
}

func TestExecutableDownloadPath(t *testing.T) {
	s := NewScorer()
	res := s.Analyze("https://example.org/files/invoice.exe")
	if !hasFactor(res, threat.FactorStructure) {
		t.Errorf("expected structure factor for .exe path: %+v", res.Factors)
	}
}

func TestPhishingVocabularyStacks(t *testing.T) {
	s := NewScorer()
	one := s.Analyze("https://example.org/a?x=verify")
	three := s.Analyze("https://example.org/a?x=verify-urgent-winner")
	if three.Confidence <= one.Confidence {
		t.Errorf("3 keywords (%.2f) should outscore 1 (%.2f)", three.Confidence, one.Confidence)
	}
}

func TestPaymentPageShape(t *testing.T) {
	s := NewScorer()
	// login 0.1 + payment 0.2 + path keyword(signin) 0.1 + keyword(confirm,secure) 0.2
	res := s.Analyze("https://secure-checkout.example/signin/confirm-payment")
	if res.Level == threat.Low {
		t.Errorf("payment-phish shape should escalate: conf %.2f %+v", res.Confidence, res.Factors)
	}
}

func hasFactor(res threat.AnalysisResult, kind threat.FactorKind) bool {
	for _, f := range res.Factors {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

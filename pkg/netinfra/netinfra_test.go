package netinfra

import (
	"context"
	"errors"
	"testing"

	"github.com/phishguard/phishguard/pkg/threat"
)

type fakeResolver struct {
	addrs map[string][]string
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := f.addrs[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

func newTestScorer(addrs map[string][]string) *Scorer {
	return NewScorer(WithResolver(&fakeResolver{addrs: addrs}))
}

func TestAnalyzeCleanHost(t *testing.T) {
	s := newTestScorer(map[string][]string{"example.com": {"93.184.216.34"}})
	res := s.Analyze(context.Background(), "https://example.com/")
	if res.Level != threat.Low {
		t.Errorf("level = %s, want LOW (factors: %+v)", res.Level, res.Factors)
	}
	if res.Malicious {
		t.Error("clean host should not be malicious")
	}
}

func TestAnalyzeInvalidDomainIsUnknown(t *testing.T) {
	s := newTestScorer(nil)
	res := s.Analyze(context.Background(), "not a url at all %%%")
	if res.Level != threat.Unknown {
		t.Errorf("level = %s, want UNKNOWN", res.Level)
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", res.Confidence)
	}
}

func TestResolutionFailureIsWeakSignal(t *testing.T) {
	s := newTestScorer(nil) // resolver errors for every host
	res := s.Analyze(context.Background(), "https://example.com/")
	if !hasFactor(res, threat.FactorDNS) {
		t.Errorf("expected dns factor: %+v", res.Factors)
	}
	if res.Level != threat.Low {
		t.Errorf("resolution failure alone should stay LOW, got %s", res.Level)
	}
}

func TestLoopbackAndPrivateAddresses(t *testing.T) {
	s := newTestScorer(map[string][]string{
		"loop.example":    {"127.0.0.1"},
		"private.example": {"192.168.1.10"},
	})

	t.Run("loopback", func(t *testing.T) {
		// loopback 0.5 + high-risk range 0.2 = 0.7 -> HIGH.
		res := s.Analyze(context.Background(), "https://loop.example/")
		if res.Level != threat.High {
			t.Errorf("level = %s, want HIGH (conf %.2f)", res.Level, res.Confidence)
		}
		if !res.Malicious {
			t.Error("loopback target should be malicious")
		}
	})

	t.Run("private", func(t *testing.T) {
		// private 0.4 + high-risk range 0.2 = 0.6 -> MEDIUM.
		res := s.Analyze(context.Background(), "https://private.example/")
		if res.Level != threat.Medium {
			t.Errorf("level = %s, want MEDIUM (conf %.2f)", res.Level, res.Confidence)
		}
	})
}

func TestPortScoring(t *testing.T) {
	s := newTestScorer(map[string][]string{"example.com": {"93.184.216.34"}})

	t.Run("plain http", func(t *testing.T) {
		res := s.Analyze(context.Background(), "http://example.com/")
		if !hasFactor(res, threat.FactorPort) {
			t.Errorf("expected port factor for plain http: %+v", res.Factors)
		}
	})

	t.Run("non-standard port", func(t *testing.T) {
		res := s.Analyze(context.Background(), "https://example.com:4444/")
		if !hasFactor(res, threat.FactorPort) {
			t.Errorf("expected port factor for :4444: %+v", res.Factors)
		}
	})

	t.Run("standard alternates pass", func(t *testing.T) {
		res := s.Analyze(context.Background(), "https://example.com:8443/")
		if hasFactor(res, threat.FactorPort) {
			t.Errorf(":8443 should pass: %+v", res.Factors)
		}
	})
}

func TestHostingSignals(t *testing.T) {
	s := newTestScorer(map[string][]string{
		"evil.duckdns.org":    {"93.184.216.34"},
		"phish.github.io":     {"93.184.216.34"},
		"bit.ly":              {"93.184.216.34"},
		"sub.serveo.net.evil": {"93.184.216.34"},
	})
	cases := []struct {
		url    string
		expect bool
	}{
		{"https://evil.duckdns.org/", true},
		{"https://phish.github.io/", true},
		{"https://bit.ly/x", true},
		{"https://sub.serveo.net.evil/", false}, // suffix match respects label boundary
	}
	for _, tc := range cases {
		res := s.Analyze(context.Background(), tc.url)
		if got := hasFactor(res, threat.FactorHosting); got != tc.expect {
			t.Errorf("%s: hosting factor = %v, want %v (%+v)", tc.url, got, tc.expect, res.Factors)
		}
	}
}

func TestOddIPv4Pattern(t *testing.T) {
	s := newTestScorer(map[string][]string{
		"seq.example": {"1.2.3.4"},
		"rep.example": {"8.8.8.8"},
	})
	for _, host := range []string{"seq.example", "rep.example"} {
		res := s.Analyze(context.Background(), "https://"+host+"/")
		if !hasFactor(res, threat.FactorAddress) {
			t.Errorf("%s: expected address factor: %+v", host, res.Factors)
		}
	}
}

func TestDomainShape(t *testing.T) {
	s := newTestScorer(map[string][]string{})
	res := s.Analyze(context.Background(), "https://a1-b2-c3-d4-9981726354.x.y.z.example/")
	// resolution failure 0.2 + deep subdomains 0.2 + hyphens(4) 0.1 + digit
	// ratio 0.1 = 0.6 -> MEDIUM.
	if res.Level != threat.Medium {
		t.Errorf("level = %s, want MEDIUM (conf %.2f, factors %+v)", res.Level, res.Confidence, res.Factors)
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

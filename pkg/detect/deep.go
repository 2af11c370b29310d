package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/phishguard/phishguard/pkg/certcheck"
	"github.com/phishguard/phishguard/pkg/netinfra"
	"github.com/phishguard/phishguard/pkg/patterns"
	"github.com/phishguard/phishguard/pkg/threat"
)

// InfraAnalyzer is the deep-analysis stage: network infrastructure scoring,
// certificate inspection, and a sweep over the URL pattern registry, run
// only when the classifier could not make up its mind. The combined verdict
// is the worst of the three.
type InfraAnalyzer struct {
	net  *netinfra.Scorer
	cert *certcheck.Checker
}

func NewInfraAnalyzer(net *netinfra.Scorer, cert *certcheck.Checker) *InfraAnalyzer {
	return &InfraAnalyzer{net: net, cert: cert}
}

func (a *InfraAnalyzer) Analyze(ctx context.Context, rawURL string) threat.AnalysisResult {
	res := a.net.Analyze(ctx, rawURL)

	certRes := a.cert.Check(ctx, rawURL)
	cl := certLevel(certRes.RiskScore)
	for _, w := range certRes.Warnings {
		res.AddFactor(threat.FactorCertificate, w)
	}
	res.Detail("certificate_risk", fmt.Sprintf("%d", certRes.RiskScore))
	if certRes.Certificate != nil {
		res.Detail("certificate_issuer", certRes.Certificate.Issuer)
		res.Detail("certificate_subject", certRes.Certificate.Subject)
	}

	if cl.AtLeast(res.Level) || res.Level == threat.Unknown {
		res.Level = cl
		if c := float64(certRes.RiskScore) / 100; c > res.Confidence {
			res.Confidence = c
		}
	}

	if pl, pc := patternSweep(rawURL, &res); pl.AtLeast(res.Level) || res.Level == threat.Unknown {
		res.Level = pl
		if pc > res.Confidence {
			res.Confidence = pc
		}
	}

	res.Malicious = res.Level.AtLeast(threat.High)
	return res
}

// patternSweep runs the URL against the shared pattern registry. Severities
// accumulate across matches on the same 0-100 scale as certificate risk.
func patternSweep(rawURL string, res *threat.AnalysisResult) (threat.Level, float64) {
	matches := patterns.Get().MatchAll(strings.ToLower(rawURL),
		patterns.CategoryObfuscation,
		patterns.CategoryImpersonation,
		patterns.CategoryHarvest,
		patterns.CategoryRedirect,
		patterns.CategoryMalware,
	)
	if len(matches) == 0 {
		return threat.Low, 0
	}

	total := 0
	for _, m := range matches {
		total += m.Severity
		res.AddFactor(threat.FactorStructure, m.Description)
	}
	if total > 100 {
		total = 100
	}
	res.Detail("pattern_risk", fmt.Sprintf("%d", total))
	return certLevel(total), float64(total) / 100
}

// certLevel maps the 0-100 certificate risk score onto the severity scale.
// The 50-point boundary matches the score at which a certificate stops
// counting as secure.
func certLevel(risk int) threat.Level {
	switch {
	case risk >= 80:
		return threat.Critical
	case risk >= 50:
		return threat.High
	case risk >= 25:
		return threat.Medium
	default:
		return threat.Low
	}
}

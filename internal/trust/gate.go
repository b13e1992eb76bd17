package trust

import (
	"github.com/opensource-security/kestrel/internal/domain"
)

// Gate is the safety gate: a necessary condition, independent of the trust
// score, that must pass before any override is permitted. Trust signals and
// risk signals are checked on disjoint feature subsets so a domain cannot
// buy its way past an active attack indicator with unrelated trust points.
type Gate struct {
	cfg domain.GateConfig
}

// NewGate builds a gate from its configuration.
func NewGate(cfg domain.GateConfig) *Gate {
	return &Gate{cfg: cfg}
}

// indicator pairs a phishing-indicator predicate with the reason reported
// when it fires.
type indicator struct {
	name  string
	fires func(g *Gate, fv *domain.FeatureVector) bool
}

var indicators = []indicator{
	{"ip address host", func(g *Gate, fv *domain.FeatureVector) bool {
		return fv.IsSet(domain.FeatIPAddress)
	}},
	{"url shortener host", func(g *Gate, fv *domain.FeatureVector) bool {
		return fv.IsSet(domain.FeatShortener)
	}},
	{"brand hijack", func(g *Gate, fv *domain.FeatureVector) bool {
		return fv.IsSet(domain.FeatBrandHijack)
	}},
	{"brand in subdomain", func(g *Gate, fv *domain.FeatureVector) bool {
		return fv.IsSet(domain.FeatBrandInSubdomain)
	}},
	{"suspicious tld", func(g *Gate, fv *domain.FeatureVector) bool {
		return fv.IsSet(domain.FeatSuspiciousTLD)
	}},
	{"excessive percent-encoding", func(g *Gate, fv *domain.FeatureVector) bool {
		return fv.Get(domain.FeatEncodedChars) > g.cfg.MaxEncodedChars
	}},
}

// Check reports whether the gate passes, plus the reasons it failed.
// The gate passes only when every phishing indicator is absent AND the
// minimum security-header bar is met.
func (g *Gate) Check(fv *domain.FeatureVector) (bool, []string) {
	var reasons []string
	for _, ind := range indicators {
		if ind.fires(g, fv) {
			reasons = append(reasons, "indicator: "+ind.name)
		}
	}
	if HeaderCount(fv) < g.cfg.MinSecurityHeaders {
		reasons = append(reasons, "insufficient security headers")
	}
	return len(reasons) == 0, reasons
}

// Passes is the boolean-only form of Check.
func (g *Gate) Passes(fv *domain.FeatureVector) bool {
	ok, _ := g.Check(fv)
	return ok
}

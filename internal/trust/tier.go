package trust

import (
	"github.com/opensource-security/kestrel/internal/domain"
)

// Override factors owned by each tier. These are policy, fixed by design;
// the trust-score cutoffs that select STRONG and BASIC are configuration.
const (
	OverrideVeryStrong = 0.95
	OverrideStrong     = 0.80
	OverrideBasic      = 0.65
	OverrideNone       = 0.0
)

// Selection is the tier selector's output.
type Selection struct {
	Tier           domain.TrustTier
	OverrideFactor float64
}

// Selector maps (TrustScore, gate result, categorical flags) to a trust
// tier. Tiers are checked privilege-first as an ordered predicate table;
// the first match wins and predicates are mutually exclusive by
// construction, so exactly one tier is selected for any input.
type Selector struct {
	cfg domain.TierConfig
}

// NewSelector builds a selector from the configured cutoffs.
func NewSelector(cfg domain.TierConfig) *Selector {
	return &Selector{cfg: cfg}
}

// tierRule is one entry of the ordered predicate table.
type tierRule struct {
	tier     domain.TrustTier
	override float64
	matches  func(s *Selector, trustScore float64, fv *domain.FeatureVector) bool
}

var tierRules = []tierRule{
	{domain.TierVeryStrong, OverrideVeryStrong, func(s *Selector, _ float64, fv *domain.FeatureVector) bool {
		return fv.IsSet(domain.FeatGovEdu) && fv.IsSet(domain.FeatHTTPS) && fv.IsSet(domain.FeatSSLValid)
	}},
	{domain.TierStrong, OverrideStrong, func(s *Selector, trustScore float64, fv *domain.FeatureVector) bool {
		return trustScore >= s.cfg.StrongMinTrust && fv.IsSet(domain.FeatHTTPS) && fv.IsSet(domain.FeatSSLValid)
	}},
	{domain.TierBasic, OverrideBasic, func(s *Selector, trustScore float64, _ *domain.FeatureVector) bool {
		return trustScore >= s.cfg.BasicMinTrust
	}},
}

// Select returns the tier and its override factor. A failed safety gate
// forces NONE regardless of trust score or categorical flags: no override
// is ever permitted past an active phishing indicator.
func (s *Selector) Select(trustScore float64, gatePassed bool, fv *domain.FeatureVector) Selection {
	if !gatePassed {
		return Selection{Tier: domain.TierNone, OverrideFactor: OverrideNone}
	}
	for _, rule := range tierRules {
		if rule.matches(s, trustScore, fv) {
			return Selection{Tier: rule.tier, OverrideFactor: rule.override}
		}
	}
	return Selection{Tier: domain.TierNone, OverrideFactor: OverrideNone}
}

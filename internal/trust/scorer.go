// Package trust computes the bounded trust score, the safety gate, and the
// domain trust tier from a resource's feature vector. Everything here is a
// pure function of its inputs plus the immutable engine policy.
package trust

import (
	"github.com/opensource-security/kestrel/internal/domain"
)

// Scorer computes TrustScore from positive security signals.
type Scorer struct {
	weights       domain.TrustConfig
	headerWeights map[string]float64
}

// NewScorer builds a scorer from the trust weight table. When no per-header
// weights are configured, the security-header budget is split equally across
// the tracked headers.
func NewScorer(cfg domain.TrustConfig) *Scorer {
	headers := make(map[string]float64, len(domain.SecurityHeaderFeatures))
	if len(cfg.HeaderWeights) > 0 {
		// Normalize the configured shares so they sum to the header budget.
		var total float64
		for _, name := range domain.SecurityHeaderFeatures {
			total += cfg.HeaderWeights[name]
		}
		if total > 0 {
			for _, name := range domain.SecurityHeaderFeatures {
				headers[name] = cfg.HeaderWeights[name] / total * cfg.SecurityHeaders
			}
		}
	}
	if len(headers) == 0 || allZero(headers) {
		equal := cfg.SecurityHeaders / float64(len(domain.SecurityHeaderFeatures))
		for _, name := range domain.SecurityHeaderFeatures {
			headers[name] = equal
		}
	}
	return &Scorer{weights: cfg, headerWeights: headers}
}

func allZero(m map[string]float64) bool {
	for _, v := range m {
		if v != 0 {
			return false
		}
	}
	return true
}

// Score returns the trust score in [0,1]. Contributions are independent and
// non-overlapping; the sum is capped at 1.0 and can never go negative
// because every contribution is non-negative.
func (s *Scorer) Score(fv *domain.FeatureVector) float64 {
	var score float64

	if fv.IsSet(domain.FeatHTTPS) {
		score += s.weights.HTTPS
	}
	if fv.IsSet(domain.FeatSSLValid) {
		score += s.weights.SSLValid
	}
	if fv.IsSet(domain.FeatGovEdu) {
		score += s.weights.GovEdu
	}
	if fv.IsSet(domain.FeatFavicon) {
		score += s.weights.Favicon
	}
	if !fv.IsSet(domain.FeatAbnormalURL) {
		score += s.weights.NormalStructure
	}
	if !fv.IsSet(domain.FeatIPAddress) {
		score += s.weights.NoIPAddress
	}
	if !fv.IsSet(domain.FeatShortener) {
		score += s.weights.NoShortener
	}
	if !fv.IsSet(domain.FeatBrandHijack) {
		score += s.weights.NoBrandHijack
	}
	if !fv.IsSet(domain.FeatSuspiciousTLD) {
		score += s.weights.NoSuspiciousTLD
	}

	for _, name := range domain.SecurityHeaderFeatures {
		if fv.IsSet(name) {
			score += s.headerWeights[name]
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// HeaderCount returns how many tracked hardening headers are present.
func HeaderCount(fv *domain.FeatureVector) int {
	count := 0
	for _, name := range domain.SecurityHeaderFeatures {
		if fv.IsSet(name) {
			count++
		}
	}
	return count
}

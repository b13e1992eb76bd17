package engine

import (
	"github.com/opensource-security/kestrel/internal/domain"
)

// MapRisk maps a final score through a threshold profile into the four-way
// decision. Intervals are half-open, lower bound inclusive: a score exactly
// on a cut point belongs to the higher-risk band. Profiles are validated at
// load time, so this never fails at evaluation time.
func MapRisk(finalScore float64, profile domain.ThresholdProfile) (domain.RiskDecision, domain.RiskLevel) {
	var decision domain.RiskDecision
	switch {
	case finalScore >= profile.Block:
		decision = domain.DecisionBlock
	case finalScore >= profile.Warn:
		decision = domain.DecisionWarn
	case finalScore >= profile.Monitor:
		decision = domain.DecisionMonitor
	default:
		decision = domain.DecisionAllow
	}
	return decision, domain.LevelFor(decision)
}

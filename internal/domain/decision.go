package domain

import (
	"time"
)

// TrustTier is the discrete privilege level a resource earns from its
// positive security signals. The tier decides how much the ML score may be
// attenuated.
type TrustTier string

const (
	TierNone       TrustTier = "NONE"
	TierBasic      TrustTier = "BASIC"
	TierStrong     TrustTier = "STRONG"
	TierVeryStrong TrustTier = "VERY_STRONG"
)

// RiskDecision is the four-way action the engine produces.
type RiskDecision string

const (
	DecisionAllow   RiskDecision = "ALLOW"
	DecisionMonitor RiskDecision = "MONITOR"
	DecisionWarn    RiskDecision = "WARN"
	DecisionBlock   RiskDecision = "BLOCK"
)

// RiskLevel is the severity name paired with each decision band.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// LevelFor returns the severity paired with a decision band.
func LevelFor(d RiskDecision) RiskLevel {
	switch d {
	case DecisionMonitor:
		return RiskMedium
	case DecisionWarn:
		return RiskHigh
	case DecisionBlock:
		return RiskCritical
	default:
		return RiskLow
	}
}

// Rank orders decisions by severity, ALLOW lowest. Used by escalation rules
// which may only move a decision upward.
func (d RiskDecision) Rank() int {
	switch d {
	case DecisionMonitor:
		return 1
	case DecisionWarn:
		return 2
	case DecisionBlock:
		return 3
	default:
		return 0
	}
}

// Decision is the pure output of a single engine evaluation. It depends only
// on the evaluation's own inputs: identical inputs produce an identical
// Decision.
type Decision struct {
	FinalScore       float64      `json:"finalScore"`
	MLScore          float64      `json:"mlScore"`
	TrustScore       float64      `json:"trustScore"`
	SafetyGatePassed bool         `json:"safetyGatePassed"`
	Tier             TrustTier    `json:"tier"`
	OverrideFactor   float64      `json:"overrideFactor"`
	RiskLevel        RiskLevel    `json:"riskLevel"`
	Decision         RiskDecision `json:"decision"`
	Profile          string       `json:"profile"`
	Reasons          []string     `json:"reasons,omitempty"`
}

// Verdict is the persisted, audit-ready record around a Decision.
type Verdict struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	ResourceID string    `json:"resourceId"`
	URL        string    `json:"url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	Decision Decision `json:"result"`

	// Escalation applied after the core decision, if any.
	Escalations []EscalationResult `json:"escalations,omitempty"`

	Metadata VerdictMetadata `json:"metadata"`
}

// VerdictMetadata carries processing information for audit trails.
type VerdictMetadata struct {
	TraceID         string `json:"traceId"`
	IngestMs        int64  `json:"ingestMs"`
	EngineMs        int64  `json:"engineMs"`
	EscalationMs    int64  `json:"escalationMs,omitempty"`
	TotalMs         int64  `json:"totalMs"`
	RulesEvaluated  int    `json:"rulesEvaluated"`
	FeaturesPresent int    `json:"featuresPresent"`
	EngineVersion   string `json:"engineVersion"`
	CacheHit        bool   `json:"cacheHit,omitempty"`
}

// VerdictResponse is the API response for POST /evaluate.
type VerdictResponse struct {
	VerdictID        string          `json:"verdictId"`
	ResourceID       string          `json:"resourceId,omitempty"`
	Decision         RiskDecision    `json:"decision"`
	RiskLevel        RiskLevel       `json:"riskLevel"`
	FinalScore       float64         `json:"finalScore"`
	MLScore          float64         `json:"mlScore"`
	TrustScore       float64         `json:"trustScore"`
	Tier             TrustTier       `json:"tier"`
	OverrideFactor   float64         `json:"overrideFactor"`
	SafetyGatePassed bool            `json:"safetyGatePassed"`
	Profile          string          `json:"profile"`
	Reasons          []string        `json:"reasons,omitempty"`
	Metadata         VerdictMetadata `json:"metadata"`
}

// ToResponse converts a Verdict to its API shape.
func (v *Verdict) ToResponse() *VerdictResponse {
	return &VerdictResponse{
		VerdictID:        v.ID,
		ResourceID:       v.ResourceID,
		Decision:         v.Decision.Decision,
		RiskLevel:        v.Decision.RiskLevel,
		FinalScore:       v.Decision.FinalScore,
		MLScore:          v.Decision.MLScore,
		TrustScore:       v.Decision.TrustScore,
		Tier:             v.Decision.Tier,
		OverrideFactor:   v.Decision.OverrideFactor,
		SafetyGatePassed: v.Decision.SafetyGatePassed,
		Profile:          v.Decision.Profile,
		Reasons:          v.Decision.Reasons,
		Metadata:         v.Metadata,
	}
}

// Package engine orchestrates the trusted hybrid decision pipeline: trust
// scoring, safety gating, tier selection, score attenuation and risk
// mapping, producing one auditable decision per evaluation.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-security/kestrel/internal/domain"
	"github.com/opensource-security/kestrel/internal/trust"
)

// EngineVersion is recorded on every verdict for audit trails.
const EngineVersion = "kestrel-1.0"

// Engine is the deterministic policy layer between the calibrated ML score
// and the final risk decision. It holds only immutable configuration, so a
// single Engine is safe for arbitrarily many concurrent evaluations.
type Engine struct {
	scorer   *trust.Scorer
	gate     *trust.Gate
	selector *trust.Selector
	profiles *domain.ProfileSet

	defaultProfile string
}

// New builds an engine from a validated policy. Configuration problems are
// rejected here, at startup, never at evaluation time.
func New(cfg domain.EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	profiles, err := domain.NewProfileSet(cfg.Profiles)
	if err != nil {
		return nil, err
	}
	defaultProfile := cfg.DefaultProfile
	if defaultProfile == "" {
		names := profiles.Names()
		defaultProfile = names[0]
	}
	return &Engine{
		scorer:         trust.NewScorer(cfg.Trust),
		gate:           trust.NewGate(cfg.Gate),
		selector:       trust.NewSelector(cfg.Tiers),
		profiles:       profiles,
		defaultProfile: defaultProfile,
	}, nil
}

// Profiles returns the configured threshold profiles for observability.
func (e *Engine) Profiles() []domain.ThresholdProfile {
	return e.profiles.List()
}

// DefaultProfile returns the profile used when an evaluation names none.
func (e *Engine) DefaultProfile() string {
	return e.defaultProfile
}

// Evaluate runs one pure evaluation. Identical inputs yield an identical
// Decision; no state is read or written beyond the engine's immutable
// configuration.
func (e *Engine) Evaluate(fv *domain.FeatureVector, mlScore float64, profileName string) (domain.Decision, error) {
	if fv == nil {
		return domain.Decision{}, &domain.ValidationError{Field: "features", Reason: "feature vector is required"}
	}
	if profileName == "" {
		profileName = e.defaultProfile
	}
	profile, err := e.profiles.Get(profileName)
	if err != nil {
		return domain.Decision{}, err
	}

	trustScore := e.scorer.Score(fv)
	gatePassed, gateReasons := e.gate.Check(fv)
	sel := e.selector.Select(trustScore, gatePassed, fv)

	finalScore, err := Attenuate(mlScore, sel.OverrideFactor)
	if err != nil {
		return domain.Decision{}, err
	}

	decision, level := MapRisk(finalScore, profile)

	var reasons []string
	if !gatePassed {
		reasons = append(reasons, gateReasons...)
	} else if sel.Tier != domain.TierNone {
		reasons = append(reasons, fmt.Sprintf("trust override applied: tier %s reduced score by %.0f%%", sel.Tier, sel.OverrideFactor*100))
	}

	return domain.Decision{
		FinalScore:       finalScore,
		MLScore:          mlScore,
		TrustScore:       trustScore,
		SafetyGatePassed: gatePassed,
		Tier:             sel.Tier,
		OverrideFactor:   sel.OverrideFactor,
		RiskLevel:        level,
		Decision:         decision,
		Profile:          profileName,
		Reasons:          reasons,
	}, nil
}

// ProcessInput contains everything needed to build a full verdict.
type ProcessInput struct {
	TenantID   string
	ResourceID string
	URL        string
	TraceID    string
	Features   *domain.FeatureVector
	MLScore    float64
	Profile    string
	StartTime  time.Time
}

// Process runs Evaluate and wraps the result in an audit-ready verdict with
// identifiers, timestamps and timing metadata. The ctx is accepted for
// interface symmetry with the rest of the pipeline; the engine itself
// performs no I/O and never blocks.
func (e *Engine) Process(ctx context.Context, input *ProcessInput) (*domain.Verdict, error) {
	start := time.Now()

	decision, err := e.Evaluate(input.Features, input.MLScore, input.Profile)
	if err != nil {
		return nil, err
	}

	engineMs := time.Since(start).Milliseconds()
	totalMs := engineMs
	if !input.StartTime.IsZero() {
		totalMs = time.Since(input.StartTime).Milliseconds()
	}

	return &domain.Verdict{
		ID:         uuid.New().String(),
		TenantID:   input.TenantID,
		ResourceID: input.ResourceID,
		URL:        input.URL,
		Timestamp:  time.Now().UTC(),
		Decision:   decision,
		Metadata: domain.VerdictMetadata{
			TraceID:         input.TraceID,
			EngineMs:        engineMs,
			TotalMs:         totalMs,
			FeaturesPresent: input.Features.Len(),
			EngineVersion:   EngineVersion,
		},
	}, nil
}

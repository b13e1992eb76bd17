// Package rules provides the CEL-Go based escalation rule engine.
// Escalation rules run after the core decision and may only raise it.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-security/kestrel/internal/domain"
)

// Engine is the CEL-based escalation rule engine.
type Engine struct {
	mu              sync.RWMutex
	env             *cel.Env
	compiledRules   map[string]*CompiledRule
	hostAlertGetter HostAlertGetter
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.EscalationRule
	Program cel.Program
}

// HostAlertGetter returns the number of WARN/BLOCK verdicts recorded for a
// host within a time window.
type HostAlertGetter func(ctx context.Context, tenantID, host string, windowSecs int) (int64, error)

// NewEngine creates a new escalation rule engine.
func NewEngine(hostAlertGetter HostAlertGetter) (*Engine, error) {
	// CEL environment exposing the finished decision plus the feature map
	env, err := cel.NewEnv(
		cel.Variable("fv", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("final_score", cel.DoubleType),
		cel.Variable("ml_score", cel.DoubleType),
		cel.Variable("trust_score", cel.DoubleType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("decision", cel.StringType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("safety_gate", cel.BoolType),
		cel.Variable("host", cel.StringType),
		cel.Variable("host_alert_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:             env,
		compiledRules:   make(map[string]*CompiledRule),
		hostAlertGetter: hostAlertGetter,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.EscalationRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.EscalationRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.EscalationRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyInput holds the finished decision context for escalation evaluation.
type ApplyInput struct {
	TenantID string
	Host     string
	Decision *domain.Decision
	Features *domain.FeatureVector

	// HostAlertWindow is the lookback window for host_alert_count, seconds.
	HostAlertWindow int
}

// Apply evaluates all loaded rules against a finished decision and returns
// the (possibly raised) decision plus the escalations that fired. The
// decision can only move toward BLOCK: a rule whose target is at or below
// the current decision fires as a no-op and is not recorded.
func (e *Engine) Apply(ctx context.Context, input *ApplyInput) (domain.RiskDecision, []domain.EscalationResult) {
	current := input.Decision.Decision

	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return current, nil
	}

	// Deterministic evaluation order regardless of map iteration
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	// Host alert count is fetched once per evaluation
	var hostAlertCount int64
	if e.hostAlertGetter != nil && input.Host != "" && input.HostAlertWindow > 0 {
		count, err := e.hostAlertGetter(ctx, input.TenantID, input.Host, input.HostAlertWindow)
		if err == nil {
			hostAlertCount = count
		}
	}

	activation := map[string]any{
		"fv":               input.Features.Map(),
		"final_score":      input.Decision.FinalScore,
		"ml_score":         input.Decision.MLScore,
		"trust_score":      input.Decision.TrustScore,
		"tier":             string(input.Decision.Tier),
		"decision":         string(input.Decision.Decision),
		"risk_level":       string(input.Decision.RiskLevel),
		"safety_gate":      input.Decision.SafetyGatePassed,
		"host":             input.Host,
		"host_alert_count": hostAlertCount,
	}

	var escalations []domain.EscalationResult
	for _, rule := range rules {
		start := time.Now()

		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		matched, ok := out.(types.Bool)
		if !ok || !bool(matched) {
			continue
		}

		target := rule.Config.EscalateTo
		if target.Rank() <= current.Rank() {
			continue
		}

		escalations = append(escalations, domain.EscalationResult{
			RuleID:    rule.Config.ID,
			From:      current,
			To:        target,
			Reason:    rule.Config.Reason,
			ProcessMs: time.Since(start).Milliseconds(),
		})
		current = target
	}

	return current, escalations
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.EscalationRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.EscalationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.EscalationRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.EscalationRule) (*CompiledRule, error) {
	switch cfg.EscalateTo {
	case domain.DecisionMonitor, domain.DecisionWarn, domain.DecisionBlock:
	default:
		return nil, fmt.Errorf("rule %s: escalateTo must be MONITOR, WARN, or BLOCK, got %q", cfg.ID, cfg.EscalateTo)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

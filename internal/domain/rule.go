package domain

// EscalationRule is an operator-authored CEL expression evaluated over a
// finished decision. A matching rule may only RAISE the decision to its
// EscalateTo level; escalation rules can never lower a decision, so the
// engine's monotone safety guarantees survive rule mistakes.
type EscalationRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL expression returning bool. Variables available:
	// final_score, ml_score, trust_score, tier, decision, risk_level,
	// safety_gate, host_alert_count, and fv (the feature map).
	Expression string `json:"expression"`

	// EscalateTo is the minimum decision when the expression matches.
	EscalateTo RiskDecision `json:"escalateTo"`

	Reason string `json:"reason"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// EscalationResult records a rule that fired on an evaluation.
type EscalationResult struct {
	RuleID    string       `json:"ruleId"`
	From      RiskDecision `json:"from"`
	To        RiskDecision `json:"to"`
	Reason    string       `json:"reason"`
	ProcessMs int64        `json:"processMs"`
}

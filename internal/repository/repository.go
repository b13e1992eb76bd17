// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-security/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveResource stores a submitted resource with tenant isolation.
func (r *SQLRepository) SaveResource(ctx context.Context, tenantID string, res *domain.Resource) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	features, _ := json.Marshal(res.Features)
	metadata, _ := json.Marshal(res.Metadata)

	query := `
		INSERT INTO resources (
			id, tenant_id, url, host, ml_score, features, profile,
			submitted_at, created_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		res.ID, tenantID, res.URL, res.Host,
		res.MLScore, string(features), res.Profile,
		res.SubmittedAt, res.CreatedAt, string(metadata),
	)
	return err
}

// GetResource retrieves a resource by ID with tenant isolation.
func (r *SQLRepository) GetResource(ctx context.Context, tenantID string, resourceID string) (*domain.Resource, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, url, host, ml_score, features, profile,
		       submitted_at, created_at, metadata
		FROM resources
		WHERE tenant_id = ? AND id = ?
	`

	var res domain.Resource
	var features, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, resourceID).Scan(
		&res.ID, &res.TenantID, &res.URL, &res.Host,
		&res.MLScore, &features, &res.Profile,
		&res.SubmittedAt, &res.CreatedAt, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if features != "" {
		json.Unmarshal([]byte(features), &res.Features)
	}
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &res.Metadata)
	}

	return &res, nil
}

// SaveVerdict stores a verdict with tenant isolation.
func (r *SQLRepository) SaveVerdict(ctx context.Context, tenantID string, v *domain.Verdict) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, _ := json.Marshal(v.Decision)
	escalations, _ := json.Marshal(v.Escalations)
	metadata, _ := json.Marshal(v.Metadata)

	gate := 0
	if v.Decision.SafetyGatePassed {
		gate = 1
	}

	query := `
		INSERT INTO verdicts (
			id, tenant_id, resource_id, url, host, decision, risk_level,
			profile, final_score, ml_score, trust_score, override_factor,
			tier, safety_gate, timestamp, result, escalations, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		v.ID, tenantID, v.ResourceID, v.URL, domain.HostOf(v.URL),
		string(v.Decision.Decision), string(v.Decision.RiskLevel),
		v.Decision.Profile, v.Decision.FinalScore, v.Decision.MLScore,
		v.Decision.TrustScore, v.Decision.OverrideFactor,
		string(v.Decision.Tier), gate, v.Timestamp,
		string(result), string(escalations), string(metadata),
	)
	return err
}

// GetVerdict retrieves a verdict by ID with tenant isolation.
func (r *SQLRepository) GetVerdict(ctx context.Context, tenantID string, verdictID string) (*domain.Verdict, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, resource_id, url, timestamp, result, escalations, metadata
		FROM verdicts
		WHERE tenant_id = ? AND id = ?
	`

	var v domain.Verdict
	var result, escalations, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, verdictID).Scan(
		&v.ID, &v.TenantID, &v.ResourceID, &v.URL, &v.Timestamp,
		&result, &escalations, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(result), &v.Decision)
	if escalations != "" {
		json.Unmarshal([]byte(escalations), &v.Escalations)
	}
	json.Unmarshal([]byte(metadata), &v.Metadata)

	return &v, nil
}

// CountHostAlerts counts WARN/BLOCK verdicts for a host since a given time.
func (r *SQLRepository) CountHostAlerts(ctx context.Context, tenantID string, host string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM verdicts
		WHERE tenant_id = ?
		  AND host = ?
		  AND decision IN ('WARN', 'BLOCK')
		  AND timestamp >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, host, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count host alerts: %w", err)
	}

	return count, nil
}

// SaveEscalationRule stores an escalation rule with tenant isolation.
func (r *SQLRepository) SaveEscalationRule(ctx context.Context, tenantID string, rule *domain.EscalationRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO escalation_rules (
			id, tenant_id, name, description, version, expression, escalate_to, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			escalate_to = excluded.escalate_to,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(rule.EscalateTo), rule.Reason, enabled,
		now, now,
	)
	return err
}

// GetEscalationRule retrieves an escalation rule with tenant isolation.
func (r *SQLRepository) GetEscalationRule(ctx context.Context, tenantID string, ruleID string) (*domain.EscalationRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, escalate_to, reason, enabled
		FROM escalation_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.EscalationRule
	var escalateTo string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &escalateTo, &rule.Reason, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.EscalateTo = domain.RiskDecision(escalateTo)
	rule.Enabled = enabled == 1

	return &rule, nil
}

// ListEscalationRules retrieves all active escalation rules for a tenant.
func (r *SQLRepository) ListEscalationRules(ctx context.Context, tenantID string) ([]*domain.EscalationRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, escalate_to, reason, enabled
		FROM escalation_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		var escalateTo string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &escalateTo, &rule.Reason, &enabled,
		); err != nil {
			return nil, err
		}

		rule.EscalateTo = domain.RiskDecision(escalateTo)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteEscalationRule soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteEscalationRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE escalation_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Resource operations
	SaveResource(ctx context.Context, tenantID string, res *Resource) error
	GetResource(ctx context.Context, tenantID string, resourceID string) (*Resource, error)

	// Verdict operations
	SaveVerdict(ctx context.Context, tenantID string, v *Verdict) error
	GetVerdict(ctx context.Context, tenantID string, verdictID string) (*Verdict, error)

	// CountHostAlerts returns the number of WARN/BLOCK verdicts recorded for
	// a host since the given time. Feeds the host_alert_count escalation
	// variable.
	CountHostAlerts(ctx context.Context, tenantID string, host string, since time.Time) (int64, error)

	// Escalation rule operations
	SaveEscalationRule(ctx context.Context, tenantID string, rule *EscalationRule) error
	GetEscalationRule(ctx context.Context, tenantID string, ruleID string) (*EscalationRule, error)
	ListEscalationRules(ctx context.Context, tenantID string) ([]*EscalationRule, error)
	DeleteEscalationRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

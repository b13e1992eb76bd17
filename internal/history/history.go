// Package history provides host-level alert history lookups.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-security/kestrel/internal/domain"
)

// Service counts prior WARN/BLOCK verdicts per host. Escalation rules use
// the count to treat repeat-offender hosts more aggressively.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new host history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// GetHostAlertCount returns the number of WARN/BLOCK verdicts recorded for
// a host within a time window. This is the HostAlertGetter signature the
// escalation rule engine expects.
func (s *Service) GetHostAlertCount(ctx context.Context, tenantID, host string, windowSecs int) (int64, error) {
	if tenantID == "" || host == "" {
		return 0, fmt.Errorf("tenantID and host are required")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)

	if s.repo != nil {
		return s.repo.CountHostAlerts(ctx, tenantID, host, since)
	}

	return 0, fmt.Errorf("no data source available")
}

// RecordAlert bumps the cached per-host alert counter. Best effort: the
// repository remains the source of truth.
func (s *Service) RecordAlert(ctx context.Context, tenantID, host string, window time.Duration) {
	if s.cache == nil || host == "" {
		return
	}
	_, _ = s.cache.IncrementCounter(ctx, tenantID, "host-alerts:"+host, window)
}

// GetHostAlertGetter returns a HostAlertGetter function for the rule engine.
func (s *Service) GetHostAlertGetter() func(ctx context.Context, tenantID, host string, windowSecs int) (int64, error) {
	return s.GetHostAlertCount
}

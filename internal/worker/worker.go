// Package worker provides async resource processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-security/kestrel/internal/domain"
	"github.com/opensource-security/kestrel/internal/engine"
	"github.com/opensource-security/kestrel/internal/history"
	"github.com/opensource-security/kestrel/internal/rules"
)

// Worker processes submitted resources asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	engine  *engine.Engine
	rules   *rules.Engine
	history *history.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int

	// HostAlertWindow is the lookback window (seconds) passed to escalation rules.
	HostAlertWindow int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, eng *engine.Engine, ruleEngine *rules.Engine, hist *history.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		engine:  eng,
		rules:   ruleEngine,
		history: hist,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if cfg.HostAlertWindow == 0 {
		cfg.HostAlertWindow = 3600
	}

	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker(cfg)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID, cfg); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker(cfg Config) error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicResourceIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processResource(ctx, msg.TenantID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string, cfg Config) error {
	// Subscribe to resource ingested topic
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicResourceIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processResource(ctx, tenantID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicResourceIngested,
	)

	return nil
}

// ResourceMessage is the message payload for async resource processing.
type ResourceMessage struct {
	ResourceID string             `json:"resourceId"`
	TenantID   string             `json:"tenantId"`
	TraceID    string             `json:"traceId"`
	URL        string             `json:"url"`
	MLScore    float64            `json:"mlScore"`
	Features   map[string]float64 `json:"features"`
	Profile    string             `json:"profile,omitempty"`
}

// processResource evaluates a submitted resource through the pipeline.
func (w *Worker) processResource(ctx context.Context, tenantID string, msg *domain.Message, cfg Config) error {
	start := time.Now()

	// Parse message
	var resMsg ResourceMessage
	if err := json.Unmarshal(msg.Payload, &resMsg); err != nil {
		slog.Error("failed to parse resource message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if resMsg.TenantID != "" {
		tenantID = resMsg.TenantID
	}

	traceID := resMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing resource",
		"resource_id", resMsg.ResourceID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	// 1. Build the feature vector
	fv := domain.NewFeatureVectorFromFloats(resMsg.Features)

	// 2. Run the decision engine
	verdict, err := w.engine.Process(ctx, &engine.ProcessInput{
		TenantID:   tenantID,
		ResourceID: resMsg.ResourceID,
		URL:        resMsg.URL,
		TraceID:    traceID,
		Features:   fv,
		MLScore:    resMsg.MLScore,
		Profile:    resMsg.Profile,
		StartTime:  start,
	})
	if err != nil {
		slog.Error("engine evaluation failed",
			"resource_id", resMsg.ResourceID,
			"error", err,
		)
		return err
	}

	// 3. Apply escalation rules on top of the core decision
	host := domain.HostOf(resMsg.URL)
	if w.rules != nil && w.rules.RulesCount() > 0 {
		escStart := time.Now()
		final, escalations := w.rules.Apply(ctx, &rules.ApplyInput{
			TenantID:        tenantID,
			Host:            host,
			Decision:        &verdict.Decision,
			Features:        fv,
			HostAlertWindow: cfg.HostAlertWindow,
		})
		verdict.Decision.Decision = final
		verdict.Decision.RiskLevel = domain.LevelFor(final)
		verdict.Escalations = escalations
		verdict.Metadata.EscalationMs = time.Since(escStart).Milliseconds()
		verdict.Metadata.RulesEvaluated = w.rules.RulesCount()
		verdict.Metadata.TotalMs = time.Since(start).Milliseconds()
	}

	// 4. Save verdict
	if w.repo != nil {
		if err := w.repo.SaveVerdict(ctx, tenantID, verdict); err != nil {
			slog.Error("failed to save verdict",
				"resource_id", resMsg.ResourceID,
				"error", err,
			)
		}
	}

	// 5. Publish result to verdict topic
	resultPayload, _ := json.Marshal(verdict)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicVerdict, resultPayload); err != nil {
		slog.Error("failed to publish verdict",
			"resource_id", resMsg.ResourceID,
			"error", err,
		)
	}

	// 6. If WARN or BLOCK, publish to alert topic and record host history
	if verdict.Decision.Decision.Rank() >= domain.DecisionWarn.Rank() {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"resource_id", resMsg.ResourceID,
				"error", err,
			)
		}
		if w.history != nil && host != "" {
			w.history.RecordAlert(ctx, tenantID, host, time.Duration(cfg.HostAlertWindow)*time.Second)
		}
	}

	slog.Info("resource processed",
		"resource_id", resMsg.ResourceID,
		"tenant_id", tenantID,
		"decision", verdict.Decision.Decision,
		"final_score", verdict.Decision.FinalScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-security/kestrel/internal/classifier"
	"github.com/opensource-security/kestrel/internal/domain"
	"github.com/opensource-security/kestrel/internal/engine"
	"github.com/opensource-security/kestrel/internal/history"
	"github.com/opensource-security/kestrel/internal/rules"
)

// verdictCacheTTL bounds how long a (url, profile) verdict summary is reused.
const verdictCacheTTL = 10 * time.Minute

// defaultHostAlertWindow is the lookback (seconds) for host_alert_count.
const defaultHostAlertWindow = 3600

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	engine     *engine.Engine
	rules      *rules.Engine
	history    *history.Service
	classifier classifier.ScoreProvider
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Engine, ruleEngine *rules.Engine, hist *history.Service, scorer classifier.ScoreProvider, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		engine:     eng,
		rules:      ruleEngine,
		history:    hist,
		classifier: scorer,
		version:    version,
	}
}

// EvaluateRequest is the request body for POST /evaluate.
type EvaluateRequest struct {
	URL string `json:"url"`

	// MLScore is the calibrated phishing probability in [0,1]. Optional when
	// a classifier service is configured; the handler fetches it then.
	MLScore *float64 `json:"mlScore,omitempty"`

	Features map[string]any `json:"features"`

	// Profile selects the threshold profile; empty uses the engine default.
	Profile string `json:"profile,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Evaluate handles POST /evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	// Parse request
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate required fields
	if req.Features == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "features is required",
		})
		return
	}

	// Build the feature vector; non-numeric values are rejected here
	fv, err := domain.NewFeatureVector(req.Features)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	profile := req.Profile
	if profile == "" {
		profile = h.engine.DefaultProfile()
	}

	// Serve from the verdict cache when the same URL was already evaluated
	// under the same profile
	var cacheKey string
	if h.cache != nil && req.URL != "" {
		cacheKey = domain.CacheKey(req.URL, profile)
		if cached, err := h.cache.GetVerdict(ctx, tenantID, cacheKey); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, &domain.VerdictResponse{
				VerdictID:        cached.VerdictID,
				Decision:         domain.RiskDecision(cached.Decision),
				RiskLevel:        domain.RiskLevel(cached.RiskLevel),
				FinalScore:       cached.FinalScore,
				MLScore:          cached.MLScore,
				TrustScore:       cached.TrustScore,
				SafetyGatePassed: cached.GatePassed,
				Profile:          cached.Profile,
				Metadata: domain.VerdictMetadata{
					TraceID:       traceID,
					TotalMs:       time.Since(start).Milliseconds(),
					EngineVersion: h.version,
					CacheHit:      true,
				},
			})
			return
		}
	}

	// Resolve the ML score: supplied inline or fetched from the classifier
	var mlScore float64
	switch {
	case req.MLScore != nil:
		mlScore = *req.MLScore
	case h.classifier != nil:
		mlScore, err = h.classifier.GetMLScore(ctx, req.URL, fv)
		if err != nil {
			slog.Error("classifier scoring failed", "url", req.URL, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error": "classifier scoring failed",
			})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "mlScore is required",
		})
		return
	}

	// Generate IDs
	resourceID := uuid.New().String()

	ingestMs := time.Since(start).Milliseconds()

	// Create resource record
	res := &domain.Resource{
		ID:          resourceID,
		TenantID:    tenantID,
		URL:         req.URL,
		Host:        domain.HostOf(req.URL),
		MLScore:     mlScore,
		Features:    fv.Map(),
		Profile:     profile,
		SubmittedAt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
		Metadata:    req.Metadata,
	}

	// Save resource if repository is available
	if h.repo != nil {
		if err := h.repo.SaveResource(ctx, tenantID, res); err != nil {
			slog.Error("failed to save resource", "error", err)
			// Continue even if save fails, to prioritize evaluation.
		}
	}

	// Synchronous evaluation (Community tier / direct mode)
	verdict, err := h.engine.Process(ctx, &engine.ProcessInput{
		TenantID:   tenantID,
		ResourceID: resourceID,
		URL:        req.URL,
		TraceID:    traceID,
		Features:   fv,
		MLScore:    mlScore,
		Profile:    profile,
		StartTime:  start,
	})
	if err != nil {
		var rangeErr *domain.RangeError
		var cfgErr *domain.ConfigurationError
		var valErr *domain.ValidationError
		if errors.As(err, &rangeErr) || errors.As(err, &cfgErr) || errors.As(err, &valErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("engine evaluation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "evaluation failed",
		})
		return
	}
	verdict.Metadata.IngestMs = ingestMs

	// Apply escalation rules on top of the core decision
	if h.rules != nil && h.rules.RulesCount() > 0 {
		escStart := time.Now()
		final, escalations := h.rules.Apply(ctx, &rules.ApplyInput{
			TenantID:        tenantID,
			Host:            res.Host,
			Decision:        &verdict.Decision,
			Features:        fv,
			HostAlertWindow: defaultHostAlertWindow,
		})
		verdict.Decision.Decision = final
		verdict.Decision.RiskLevel = domain.LevelFor(final)
		verdict.Escalations = escalations
		verdict.Metadata.EscalationMs = time.Since(escStart).Milliseconds()
		verdict.Metadata.RulesEvaluated = h.rules.RulesCount()
	}
	verdict.Metadata.TotalMs = time.Since(start).Milliseconds()

	// Save verdict
	if h.repo != nil {
		if err := h.repo.SaveVerdict(ctx, tenantID, verdict); err != nil {
			slog.Error("failed to save verdict", "error", err)
		}
	}

	// Populate the verdict cache
	if h.cache != nil && cacheKey != "" {
		_ = h.cache.SetVerdict(ctx, tenantID, cacheKey, &domain.VerdictCache{
			VerdictID:  verdict.ID,
			Decision:   string(verdict.Decision.Decision),
			RiskLevel:  string(verdict.Decision.RiskLevel),
			FinalScore: verdict.Decision.FinalScore,
			MLScore:    verdict.Decision.MLScore,
			TrustScore: verdict.Decision.TrustScore,
			Profile:    profile,
			GatePassed: verdict.Decision.SafetyGatePassed,
		}, verdictCacheTTL)
	}

	// WARN/BLOCK feeds the host alert history and the alert topic
	if verdict.Decision.Decision.Rank() >= domain.DecisionWarn.Rank() {
		if h.history != nil && res.Host != "" {
			h.history.RecordAlert(ctx, tenantID, res.Host, defaultHostAlertWindow*time.Second)
		}
		if h.bus != nil {
			payload, _ := json.Marshal(verdict)
			if err := h.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
				slog.Error("failed to publish alert", "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, verdict.ToResponse())
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetVerdict retrieves a verdict by ID.
func (h *Handler) GetVerdict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	verdictID := chi.URLParam(r, "id")

	if verdictID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "verdict id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	v, err := h.repo.GetVerdict(ctx, tenantID, verdictID)
	if err != nil {
		slog.Error("failed to get verdict", "id", verdictID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "verdict not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// GetResource retrieves a submitted resource by ID.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	resourceID := chi.URLParam(r, "id")

	if resourceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "resource id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	res, err := h.repo.GetResource(ctx, tenantID, resourceID)
	if err != nil {
		slog.Error("failed to get resource", "id", resourceID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "resource not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListProfiles returns the loaded threshold profiles.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := h.engine.Profiles()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": profiles,
		"count":    len(profiles),
		"default":  h.engine.DefaultProfile(),
	})
}

// GetProfile retrieves a threshold profile by name.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "profile name is required",
		})
		return
	}

	for _, p := range h.engine.Profiles() {
		if p.Name == name {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "profile not found",
	})
}

// ListRules returns all loaded escalation rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	// Return rules currently loaded in the engine (sourced from database)
	loadedRules := h.rules.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves an escalation rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	// Check rules loaded in the engine (from database)
	for _, rule := range h.rules.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating an escalation rule.
type CreateRuleRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Expression  string              `json:"expression"`
	EscalateTo  domain.RiskDecision `json:"escalateTo"`
	Reason      string              `json:"reason,omitempty"`
	Enabled     bool                `json:"enabled"`
}

// CreateRule creates a new escalation rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	// Create rule config (global tenant)
	rule := &domain.EscalationRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		EscalateTo:  req.EscalateTo,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression and target by attempting to load
	if err := h.rules.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	// Persist to repository (global tenant ID)
	if h.repo != nil {
		if err := h.repo.SaveEscalationRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save escalation rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("escalation rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule soft-deletes an escalation rule and auto-reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteEscalationRule(ctx, GlobalTenantID, ruleID); err != nil {
			slog.Error("failed to delete escalation rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}

		// Auto-reload engine after delete
		dbRules, err := h.repo.ListEscalationRules(ctx, GlobalTenantID)
		if err != nil {
			slog.Error("failed to reload rules after delete", "error", err)
		} else if err := h.rules.ReloadRules(dbRules); err != nil {
			slog.Error("failed to reload rules into engine", "error", err)
		} else {
			slog.Info("rules auto-reloaded after delete", "count", len(dbRules))
		}
	}

	slog.Info("escalation rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule deleted and engine reloaded.",
	})
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// ReloadRules reloads all escalation rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	// Load rules from database (global rules)
	dbRules, err := h.repo.ListEscalationRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	// Reload into engine
	if err := h.rules.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

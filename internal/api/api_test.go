package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensource-security/kestrel/internal/domain"
	"github.com/opensource-security/kestrel/internal/engine"
	"github.com/opensource-security/kestrel/internal/rules"
)

// createTestServer creates a server with a default engine and an empty rule
// engine. No repository, cache, bus, or classifier: the evaluate path runs
// fully synchronous with inline ML scores.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	eng, err := engine.New(domain.DefaultEngineConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	ruleEngine, err := rules.NewEngine(nil)
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}

	return NewServer(cfg, nil, nil, nil, eng, ruleEngine, nil, nil, "test-v1")
}

func evaluate(t *testing.T, server *Server, req EvaluateRequest) *httptest.ResponseRecorder {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBuffer(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, httpReq)
	return rr
}

func floatPtr(f float64) *float64 { return &f }

func TestEvaluateEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("TrustedSiteAllowed", func(t *testing.T) {
		rr := evaluate(t, server, EvaluateRequest{
			URL:     "https://www.irs.gov/refunds",
			MLScore: floatPtr(0.0023),
			Features: map[string]any{
				"https":          1,
				"web_ssl_valid":  1,
				"is_gov_edu":     1,
				"web_csp":        1,
				"web_hsts":       1,
				"web_xframe":     1,
				"web_xcontent":   1,
				"web_favicon":    1,
			},
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.VerdictResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.VerdictID == "" {
			t.Error("expected verdictId in response")
		}
		if resp.Decision != domain.DecisionAllow {
			t.Errorf("expected ALLOW, got %s", resp.Decision)
		}
		if resp.Tier != domain.TierVeryStrong {
			t.Errorf("expected VERY_STRONG tier, got %s", resp.Tier)
		}
		if !resp.SafetyGatePassed {
			t.Error("expected safety gate to pass")
		}
		if math.Abs(resp.FinalScore-0.0023*0.05) > 1e-9 {
			t.Errorf("expected attenuated score %.6f, got %.6f", 0.0023*0.05, resp.FinalScore)
		}
		if resp.Profile != domain.ProfileBalanced {
			t.Errorf("expected default profile balanced, got %s", resp.Profile)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
		if resp.Metadata.EngineVersion == "" {
			t.Error("expected engineVersion in metadata")
		}
	})

	t.Run("PhishingSiteBlocked", func(t *testing.T) {
		rr := evaluate(t, server, EvaluateRequest{
			URL:     "http://login-paypa1.example.tk/verify",
			MLScore: floatPtr(0.92),
			Features: map[string]any{
				"phish_brand_hijack":       1,
				"phish_adv_suspicious_tld": 1,
				"https":                    0,
			},
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.VerdictResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Decision != domain.DecisionBlock {
			t.Errorf("expected BLOCK, got %s", resp.Decision)
		}
		if resp.RiskLevel != domain.RiskCritical {
			t.Errorf("expected CRITICAL, got %s", resp.RiskLevel)
		}
		if resp.SafetyGatePassed {
			t.Error("expected safety gate to fail")
		}
		if resp.FinalScore != 0.92 {
			t.Errorf("gate failure must leave the ML score untouched, got %.4f", resp.FinalScore)
		}
		if len(resp.Reasons) == 0 {
			t.Error("expected gate failure reasons")
		}
	})

	t.Run("ProfileSelection", func(t *testing.T) {
		// 0.45 is WARN under security-focused but MONITOR under balanced
		req := EvaluateRequest{
			URL:      "http://example.org/",
			MLScore:  floatPtr(0.45),
			Features: map[string]any{"https": 0},
			Profile:  domain.ProfileSecurityFocused,
		}
		rr := evaluate(t, server, req)

		var resp domain.VerdictResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Decision != domain.DecisionWarn {
			t.Errorf("expected WARN under security-focused, got %s", resp.Decision)
		}
		if resp.Profile != domain.ProfileSecurityFocused {
			t.Errorf("expected profile security-focused, got %s", resp.Profile)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		// No X-Tenant-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingFeatures", func(t *testing.T) {
		rr := evaluate(t, server, EvaluateRequest{
			URL:     "http://example.org/",
			MLScore: floatPtr(0.5),
		})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NonNumericFeature", func(t *testing.T) {
		rr := evaluate(t, server, EvaluateRequest{
			URL:      "http://example.org/",
			MLScore:  floatPtr(0.5),
			Features: map[string]any{"https": "yes"},
		})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingMLScore", func(t *testing.T) {
		// No classifier configured, so an inline score is mandatory
		rr := evaluate(t, server, EvaluateRequest{
			URL:      "http://example.org/",
			Features: map[string]any{"https": 1},
		})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MLScoreOutOfRange", func(t *testing.T) {
		for _, score := range []float64{-0.1, 1.5} {
			rr := evaluate(t, server, EvaluateRequest{
				URL:      "http://example.org/",
				MLScore:  floatPtr(score),
				Features: map[string]any{"https": 1},
			})

			if rr.Code != http.StatusBadRequest {
				t.Errorf("score %.2f: expected status 400, got %d", score, rr.Code)
			}
		}
	})

	t.Run("UnknownProfile", func(t *testing.T) {
		rr := evaluate(t, server, EvaluateRequest{
			URL:      "http://example.org/",
			MLScore:  floatPtr(0.5),
			Features: map[string]any{"https": 1},
			Profile:  "paranoid",
		})

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := evaluate(t, server, EvaluateRequest{
			URL:      "http://example.org/",
			MLScore:  floatPtr(0.1),
			Features: map[string]any{"https": 1},
		})

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestEvaluateWithEscalationRules(t *testing.T) {
	server := createTestServer(t)

	err := server.Handler().rules.LoadRule(&domain.EscalationRule{
		ID:         "border-escalate",
		Name:       "Borderline Escalation",
		Expression: "final_score > 0.25 && !safety_gate",
		EscalateTo: domain.DecisionWarn,
		Reason:     "Borderline score on ungated host",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	// 0.30 is MONITOR under balanced; the rule raises it to WARN
	rr := evaluate(t, server, EvaluateRequest{
		URL:      "http://example.org/",
		MLScore:  floatPtr(0.30),
		Features: map[string]any{"https": 0},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp domain.VerdictResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)

	if resp.Decision != domain.DecisionWarn {
		t.Errorf("expected escalated WARN, got %s", resp.Decision)
	}
	if resp.RiskLevel != domain.RiskHigh {
		t.Errorf("expected HIGH after escalation, got %s", resp.RiskLevel)
	}
	if resp.Metadata.RulesEvaluated != 1 {
		t.Errorf("expected 1 rule evaluated, got %d", resp.Metadata.RulesEvaluated)
	}
}

func TestProfileEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("ListProfiles", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Profiles []domain.ThresholdProfile `json:"profiles"`
			Count    int                       `json:"count"`
			Default  string                    `json:"default"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count != 3 {
			t.Errorf("expected 3 profiles, got %d", resp.Count)
		}
		if resp.Default != domain.ProfileBalanced {
			t.Errorf("expected default balanced, got %s", resp.Default)
		}
	})

	t.Run("GetProfile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/"+domain.ProfileSecurityFocused, nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var p domain.ThresholdProfile
		json.Unmarshal(rr.Body.Bytes(), &p)

		if p.Monitor != 0.11 {
			t.Errorf("expected monitor cut 0.11, got %.2f", p.Monitor)
		}
	})

	t.Run("UnknownProfile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/nonexistent", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateRule", func(t *testing.T) {
		body, _ := json.Marshal(CreateRuleRequest{
			ID:         "api-rule-001",
			Name:       "High Classifier Confidence",
			Expression: "ml_score > 0.95",
			EscalateTo: domain.DecisionBlock,
			Enabled:    true,
		})

		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		if server.Handler().rules.RulesCount() != 1 {
			t.Errorf("expected 1 loaded rule, got %d", server.Handler().rules.RulesCount())
		}
	})

	t.Run("CreateRuleInvalidExpression", func(t *testing.T) {
		body, _ := json.Marshal(CreateRuleRequest{
			ID:         "api-rule-bad",
			Name:       "Broken Rule",
			Expression: "this is not CEL (((",
			EscalateTo: domain.DecisionWarn,
			Enabled:    true,
		})

		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CreateRuleMissingFields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBufferString(`{"id":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ListRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp.Count != 1 {
			t.Errorf("expected 1 rule, got %d", resp.Count)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules/api-rule-001", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var rule domain.EscalationRule
		json.Unmarshal(rr.Body.Bytes(), &rule)
		if rule.ID != "api-rule-001" {
			t.Errorf("expected rule api-rule-001, got %s", rule.ID)
		}
	})

	t.Run("GetUnknownRule", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules/nonexistent", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}

package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensource-security/kestrel/internal/domain"
)

func testVector() *domain.FeatureVector {
	return domain.NewFeatureVectorFromFloats(map[string]float64{
		"https":   1,
		"url_len": 42,
	})
}

func newTestClient(url string) *HTTPClient {
	return NewHTTPClient(domain.ClassifierConfig{
		URL:       url,
		TimeoutMs: 2000,
	})
}

func TestHTTPClientGetMLScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		var req scoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.URL != "https://accounts.example.com/login" {
			t.Errorf("unexpected url in request: %s", req.URL)
		}
		if req.Features["url_len"] != 42 {
			t.Errorf("feature snapshot not forwarded: %+v", req.Features)
		}

		json.NewEncoder(w).Encode(scoreResponse{Score: 0.73})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	score, err := client.GetMLScore(context.Background(), "https://accounts.example.com/login", testVector())
	if err != nil {
		t.Fatalf("GetMLScore failed: %v", err)
	}
	if score != 0.73 {
		t.Errorf("expected score 0.73, got %v", score)
	}
}

func TestHTTPClientOutOfRangeScore(t *testing.T) {
	for _, bad := range []float64{-0.1, 1.2} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(scoreResponse{Score: bad})
		}))

		client := newTestClient(srv.URL)
		_, err := client.GetMLScore(context.Background(), "http://example.org/", testVector())
		srv.Close()

		var rangeErr *domain.RangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("score %v: expected RangeError, got %v", bad, err)
		}
	}
}

func TestHTTPClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.GetMLScore(context.Background(), "http://example.org/", testVector()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestHTTPClientErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Error: "feature vector incomplete"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.GetMLScore(context.Background(), "http://example.org/", testVector()); err == nil {
		t.Error("expected error for error payload")
	}
}

func TestHTTPClientNoEndpoint(t *testing.T) {
	client := NewHTTPClient(domain.ClassifierConfig{})
	if _, err := client.GetMLScore(context.Background(), "http://example.org/", testVector()); err == nil {
		t.Error("expected error with no endpoint configured")
	}
}

func TestStaticProvider(t *testing.T) {
	provider := Static{Score: 0.42}

	score, err := provider.GetMLScore(context.Background(), "http://example.org/", testVector())
	if err != nil {
		t.Fatalf("Static provider failed: %v", err)
	}
	if score != 0.42 {
		t.Errorf("expected 0.42, got %v", score)
	}
}

// Package classifier provides the client for the external calibrated
// phishing classifier. The decision engine treats the returned probability
// as opaque input and never recomputes it.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/opensource-security/kestrel/internal/domain"
)

// maxResponseSize bounds classifier response reads so a misbehaving scorer
// cannot exhaust memory.
const maxResponseSize = 1 << 20 // 1MB

// ScoreProvider supplies a calibrated phishing probability for a resource.
type ScoreProvider interface {
	GetMLScore(ctx context.Context, url string, fv *domain.FeatureVector) (float64, error)
}

// HTTPClient calls a remote scoring service over HTTP.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates a classifier client with pooled connections.
func NewHTTPClient(cfg domain.ClassifierConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &HTTPClient{
		endpoint: cfg.URL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type scoreRequest struct {
	URL      string             `json:"url"`
	Features map[string]float64 `json:"features"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
	Error string  `json:"error,omitempty"`
}

// GetMLScore posts the feature snapshot to the scoring endpoint and returns
// the calibrated probability. Scores outside [0,1] are rejected with a
// RangeError rather than clamped.
func (c *HTTPClient) GetMLScore(ctx context.Context, url string, fv *domain.FeatureVector) (float64, error) {
	if c.endpoint == "" {
		return 0, fmt.Errorf("classifier endpoint not configured")
	}

	body, err := json.Marshal(scoreRequest{URL: url, Features: fv.Map()})
	if err != nil {
		return 0, fmt.Errorf("encoding score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, fmt.Errorf("reading classifier response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var sr scoreResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return 0, fmt.Errorf("decoding classifier response: %w", err)
	}
	if sr.Error != "" {
		return 0, fmt.Errorf("classifier error: %s", sr.Error)
	}
	if sr.Score < 0 || sr.Score > 1 {
		return 0, &domain.RangeError{
			Field:  "classifier.score",
			Value:  sr.Score,
			Reason: "classifier score must be within [0,1]",
		}
	}

	return sr.Score, nil
}

// Static is a fixed-score provider for tests and offline replay.
type Static struct {
	Score float64
}

// GetMLScore returns the fixed score.
func (s Static) GetMLScore(ctx context.Context, url string, fv *domain.FeatureVector) (float64, error) {
	return s.Score, nil
}

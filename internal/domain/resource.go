package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Resource is a web resource submitted for evaluation: the URL plus the
// feature snapshot the extractor produced and the classifier's calibrated
// phishing probability.
type Resource struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	URL  string `json:"url"`
	Host string `json:"host,omitempty"`

	// MLScore is the externally supplied calibrated phishing probability.
	MLScore float64 `json:"mlScore"`

	// Features is the raw snapshot as submitted, kept for audit and replay.
	Features map[string]float64 `json:"features"`

	// Profile requested for this evaluation.
	Profile string `json:"profile,omitempty"`

	// Temporal
	SubmittedAt time.Time `json:"submittedAt"`
	CreatedAt   time.Time `json:"createdAt"`

	// Optional metadata from the submitter (extension version, source, ...)
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// HostOf extracts the lowercase host from a URL string, tolerating inputs
// without a scheme. Used for host-level alert history.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if u2, err2 := url.Parse("http://" + rawURL); err2 == nil {
			u = u2
		}
	}
	if u == nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}

// CacheKey derives a stable cache key for a (url, profile) pair so repeated
// evaluations of the same resource under the same policy short-circuit.
func CacheKey(rawURL, profile string) string {
	sum := sha256.Sum256([]byte(profile + "\x00" + rawURL))
	return "verdict:" + hex.EncodeToString(sum[:16])
}

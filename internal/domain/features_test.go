package domain

import (
	"errors"
	"math"
	"testing"
)

func TestNewFeatureVector(t *testing.T) {
	t.Run("AcceptsNumericAndBool", func(t *testing.T) {
		fv, err := NewFeatureVector(map[string]any{
			"https":         1.0,
			"url_len":       float64(54),
			"web_ssl_valid": true,
			"web_favicon":   false,
			"digits":        3,
		})
		if err != nil {
			t.Fatalf("NewFeatureVector failed: %v", err)
		}

		if !fv.IsSet("https") {
			t.Error("expected https set")
		}
		if fv.Get("url_len") != 54 {
			t.Errorf("expected url_len 54, got %v", fv.Get("url_len"))
		}
		if !fv.IsSet("web_ssl_valid") {
			t.Error("expected bool true to coerce to 1")
		}
		if fv.IsSet("web_favicon") {
			t.Error("expected bool false to coerce to 0")
		}
	})

	t.Run("MissingKeysDefaultToZero", func(t *testing.T) {
		fv, err := NewFeatureVector(map[string]any{})
		if err != nil {
			t.Fatalf("NewFeatureVector failed: %v", err)
		}
		if fv.Get("https") != 0 {
			t.Error("expected absent key to default to 0")
		}
		if fv.IsSet("having_ip_address") {
			t.Error("expected absent key to read as unset")
		}
		if fv.Len() != 0 {
			t.Errorf("expected empty vector, got %d entries", fv.Len())
		}
	})

	t.Run("RejectsNonNumeric", func(t *testing.T) {
		_, err := NewFeatureVector(map[string]any{"https": "yes"})
		var valErr *ValidationError
		if !errors.As(err, &valErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if valErr.Field != "https" {
			t.Errorf("expected offending field 'https', got %q", valErr.Field)
		}
	})

	t.Run("RejectsNaNAndInf", func(t *testing.T) {
		if _, err := NewFeatureVector(map[string]any{"url_len": math.NaN()}); err == nil {
			t.Error("expected error for NaN")
		}
		if _, err := NewFeatureVector(map[string]any{"url_len": math.Inf(1)}); err == nil {
			t.Error("expected error for +Inf")
		}
	})

	t.Run("IgnoresUnknownKeys", func(t *testing.T) {
		fv, err := NewFeatureVector(map[string]any{
			"https":            1.0,
			"some_future_key":  42.0,
			"another_unknown":  "not even numeric",
			"web_hidden_count": true,
		})
		if err != nil {
			t.Fatalf("expected unknown keys to be ignored, got %v", err)
		}
		if fv.Len() != 1 {
			t.Errorf("expected only the known key kept, got %d", fv.Len())
		}
	})

	t.Run("MapReturnsCopy", func(t *testing.T) {
		fv := NewFeatureVectorFromFloats(map[string]float64{"https": 1})
		m := fv.Map()
		m["https"] = 0
		if !fv.IsSet("https") {
			t.Error("mutating the exported map must not affect the vector")
		}
	})
}

func TestFeatureRegistry(t *testing.T) {
	names := FeatureNames()
	if len(names) != 54 {
		t.Errorf("expected 54 registry keys, got %d", len(names))
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			t.Errorf("duplicate registry key %q", name)
		}
		seen[name] = true
	}

	// The tracked hardening headers all belong to the registry.
	for _, h := range SecurityHeaderFeatures {
		if !seen[h] {
			t.Errorf("header feature %q missing from registry", h)
		}
	}
}

func TestHostOf(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/login", "example.com"},
		{"http://sub.example.org:8080/x", "sub.example.org"},
		{"example.net/path", "example.net"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := HostOf(tc.in); got != tc.want {
			t.Errorf("HostOf(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("https://example.com", "balanced")
	b := CacheKey("https://example.com", "balanced")
	if a != b {
		t.Error("expected stable cache keys")
	}

	if CacheKey("https://example.com", "balanced") == CacheKey("https://example.com", "precision-focused") {
		t.Error("expected profile to partition the cache key space")
	}
	if CacheKey("https://a.example", "balanced") == CacheKey("https://b.example", "balanced") {
		t.Error("expected URL to partition the cache key space")
	}
}

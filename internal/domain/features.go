package domain

import (
	"fmt"
	"math"
)

// Feature key constants for the signals the decision engine reads directly.
// The full vocabulary is listed in featureRegistry below; the remaining keys
// are carried for the upstream classifier and escalation rules but are not
// inspected by the trust layer.
const (
	FeatHTTPS            = "https"
	FeatSSLValid         = "web_ssl_valid"
	FeatGovEdu           = "is_gov_edu"
	FeatFavicon          = "web_favicon"
	FeatAbnormalURL      = "abnormal_url"
	FeatIPAddress        = "having_ip_address"
	FeatShortener        = "Shortining_Service"
	FeatBrandHijack      = "phish_brand_hijack"
	FeatBrandInSubdomain = "phish_adv_brand_in_subdomain"
	FeatSuspiciousTLD    = "phish_adv_suspicious_tld"
	FeatEncodedChars     = "phish_adv_encoded_chars"

	FeatHeaderCSP      = "web_csp"
	FeatHeaderHSTS     = "web_hsts"
	FeatHeaderXFrame   = "web_xframe"
	FeatHeaderXContent = "web_xcontent"
)

// SecurityHeaderFeatures lists the tracked hardening-header features in a
// fixed order. Ordering matters for deterministic per-header weighting.
var SecurityHeaderFeatures = []string{
	FeatHeaderCSP,
	FeatHeaderHSTS,
	FeatHeaderXFrame,
	FeatHeaderXContent,
}

// featureRegistry is the fixed 54-key vocabulary produced by the upstream
// extractor: 37 static-URL features, 13 web-sandbox features, and 4
// NLP-semantic features. Booleans arrive as 0/1.
var featureRegistry = []string{
	// Static URL features (37)
	"url_len", "@", "?", "-", ".", "#", "+", "$", "!", "*", ",",
	"digits", "letters",
	"abnormal_url", "https", "Shortining_Service", "having_ip_address",
	"phish_urgency_words", "phish_security_words",
	"phish_brand_hijack", "phish_long_path",
	"phish_adv_exact_brand_match", "phish_adv_brand_in_subdomain",
	"phish_adv_brand_in_path", "phish_adv_hyphen_count",
	"phish_adv_number_count", "phish_adv_suspicious_tld",
	"phish_adv_long_domain", "phish_adv_many_subdomains",
	"phish_adv_encoded_chars", "phish_adv_path_keywords",
	"phish_adv_has_redirect", "phish_adv_many_params",
	"path_has_hacked_terms", "suspicious_extension",
	"path_underscore_count", "is_gov_edu",

	// Web sandbox features (13)
	"web_ext_ratio", "web_unique_domains", "web_favicon",
	"web_csp", "web_xframe", "web_hsts", "web_xcontent",
	"web_security_score", "web_forms_count", "web_password_fields",
	"web_hidden_inputs", "web_has_login", "web_ssl_valid",

	// NLP semantic features (4)
	"nlp_urgency_score", "nlp_threat_score",
	"nlp_credential_score", "nlp_brand_score",
}

var knownFeatures = func() map[string]struct{} {
	m := make(map[string]struct{}, len(featureRegistry))
	for _, name := range featureRegistry {
		m[name] = struct{}{}
	}
	return m
}()

// FeatureNames returns the full feature vocabulary in registry order.
func FeatureNames() []string {
	out := make([]string, len(featureRegistry))
	copy(out, featureRegistry)
	return out
}

// FeatureVector is an immutable snapshot of the named numeric signals for a
// single resource. Keys absent at construction default to 0; the engine
// never fails solely because a key is missing.
type FeatureVector struct {
	values map[string]float64
}

// NewFeatureVector builds a FeatureVector from a decoded JSON object.
// Numeric values and booleans (as 0/1) are accepted; anything else is a
// ValidationError naming the offending key. Keys outside the registry are
// ignored so the engine tolerates newer extractors.
func NewFeatureVector(raw map[string]any) (*FeatureVector, error) {
	fv := &FeatureVector{values: make(map[string]float64, len(raw))}
	for key, val := range raw {
		if _, ok := knownFeatures[key]; !ok {
			continue
		}
		f, err := coerceNumeric(val)
		if err != nil {
			return nil, &ValidationError{Field: key, Reason: err.Error()}
		}
		fv.values[key] = f
	}
	return fv, nil
}

// NewFeatureVectorFromFloats builds a FeatureVector from already-numeric
// values. Used by tests and by callers that decode their own payloads.
func NewFeatureVectorFromFloats(raw map[string]float64) *FeatureVector {
	fv := &FeatureVector{values: make(map[string]float64, len(raw))}
	for key, val := range raw {
		if _, ok := knownFeatures[key]; ok {
			fv.values[key] = val
		}
	}
	return fv
}

func coerceNumeric(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("value %v is not finite", v)
		}
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", val, val)
	}
}

// Get returns the value for a feature, defaulting absent keys to 0.
func (fv *FeatureVector) Get(name string) float64 {
	if fv == nil {
		return 0
	}
	return fv.values[name]
}

// IsSet reports whether a feature resolves to a non-zero value.
// Booleans are represented as 0/1, so this doubles as the truth test.
func (fv *FeatureVector) IsSet(name string) bool {
	return fv.Get(name) != 0
}

// Len returns the number of explicitly provided features.
func (fv *FeatureVector) Len() int {
	if fv == nil {
		return 0
	}
	return len(fv.values)
}

// Map returns a copy of the provided values, for persistence and audit.
func (fv *FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(fv.values))
	for k, v := range fv.values {
		out[k] = v
	}
	return out
}

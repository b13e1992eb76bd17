package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices (sqlite/channels vs postgres/nats/redis)
	Tier Tier `json:"tier"`

	// Engine holds the immutable decision-engine policy.
	Engine EngineConfig `json:"engine"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Classifier is the external ML scorer endpoint, used when callers do
	// not supply a score themselves.
	Classifier ClassifierConfig `json:"classifier"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ClassifierConfig holds settings for the external calibrated classifier.
type ClassifierConfig struct {
	// URL of the scoring endpoint. Empty disables server-side scoring:
	// callers must then supply mlScore per request.
	URL       string `json:"url"`
	TimeoutMs int    `json:"timeoutMs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-process channels.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// EngineConfig is the process-wide immutable decision policy: trust weights,
// tier cutoffs, gate settings and threshold profiles. Built once at startup,
// shared by reference across all concurrent evaluations, never mutated.
type EngineConfig struct {
	Trust    TrustConfig        `json:"trust" yaml:"trust"`
	Gate     GateConfig         `json:"gate" yaml:"gate"`
	Tiers    TierConfig         `json:"tiers" yaml:"tiers"`
	Profiles []ThresholdProfile `json:"profiles" yaml:"profiles"`

	// DefaultProfile is used when an evaluation names no profile.
	DefaultProfile string `json:"defaultProfile" yaml:"default_profile"`
}

// TrustConfig holds the weight table of the trust scorer.
type TrustConfig struct {
	HTTPS           float64 `json:"https" yaml:"https"`
	SSLValid        float64 `json:"sslValid" yaml:"ssl_valid"`
	GovEdu          float64 `json:"govEdu" yaml:"gov_edu"`
	Favicon         float64 `json:"favicon" yaml:"favicon"`
	NormalStructure float64 `json:"normalStructure" yaml:"normal_structure"`
	NoIPAddress     float64 `json:"noIpAddress" yaml:"no_ip_address"`
	NoShortener     float64 `json:"noShortener" yaml:"no_shortener"`
	NoBrandHijack   float64 `json:"noBrandHijack" yaml:"no_brand_hijack"`
	NoSuspiciousTLD float64 `json:"noSuspiciousTld" yaml:"no_suspicious_tld"`

	// SecurityHeaders is the total budget for the hardening-header signal,
	// split across HeaderWeights.
	SecurityHeaders float64 `json:"securityHeaders" yaml:"security_headers"`

	// HeaderWeights is the per-header share of the SecurityHeaders budget.
	// Empty means equal weights over the tracked headers.
	HeaderWeights map[string]float64 `json:"headerWeights,omitempty" yaml:"header_weights,omitempty"`
}

// GateConfig holds the safety-gate settings.
type GateConfig struct {
	// MinSecurityHeaders is the minimum number of tracked hardening headers
	// that must be present for the gate to pass.
	MinSecurityHeaders int `json:"minSecurityHeaders" yaml:"min_security_headers"`

	// MaxEncodedChars is the largest percent-encoded character count that is
	// not considered an active phishing indicator.
	MaxEncodedChars float64 `json:"maxEncodedChars" yaml:"max_encoded_chars"`
}

// TierConfig holds the TrustScore cutoffs selecting STRONG and BASIC tiers.
// The override factors per tier are fixed by policy; the cutoffs are tuned.
type TierConfig struct {
	StrongMinTrust float64 `json:"strongMinTrust" yaml:"strong_min_trust"`
	BasicMinTrust  float64 `json:"basicMinTrust" yaml:"basic_min_trust"`
}

// Validate checks the engine policy at load time.
func (c *EngineConfig) Validate() error {
	weights := []struct {
		field string
		value float64
	}{
		{"trust.https", c.Trust.HTTPS},
		{"trust.ssl_valid", c.Trust.SSLValid},
		{"trust.gov_edu", c.Trust.GovEdu},
		{"trust.favicon", c.Trust.Favicon},
		{"trust.normal_structure", c.Trust.NormalStructure},
		{"trust.no_ip_address", c.Trust.NoIPAddress},
		{"trust.no_shortener", c.Trust.NoShortener},
		{"trust.no_brand_hijack", c.Trust.NoBrandHijack},
		{"trust.no_suspicious_tld", c.Trust.NoSuspiciousTLD},
		{"trust.security_headers", c.Trust.SecurityHeaders},
	}
	for _, w := range weights {
		if w.value < 0 || w.value > 1 {
			return &RangeError{Field: w.field, Value: w.value, Reason: "weight must be within [0,1]"}
		}
	}
	for name, w := range c.Trust.HeaderWeights {
		if w < 0 {
			return &RangeError{Field: "trust.header_weights." + name, Value: w, Reason: "header weight must be non-negative"}
		}
	}
	if c.Gate.MinSecurityHeaders < 0 || c.Gate.MinSecurityHeaders > len(SecurityHeaderFeatures) {
		return &ConfigurationError{
			Field:  "gate.min_security_headers",
			Reason: fmt.Sprintf("must be between 0 and %d", len(SecurityHeaderFeatures)),
		}
	}
	if c.Tiers.StrongMinTrust < 0 || c.Tiers.StrongMinTrust > 1 {
		return &RangeError{Field: "tiers.strong_min_trust", Value: c.Tiers.StrongMinTrust, Reason: "cutoff must be within [0,1]"}
	}
	if c.Tiers.BasicMinTrust < 0 || c.Tiers.BasicMinTrust > 1 {
		return &RangeError{Field: "tiers.basic_min_trust", Value: c.Tiers.BasicMinTrust, Reason: "cutoff must be within [0,1]"}
	}
	if c.Tiers.BasicMinTrust > c.Tiers.StrongMinTrust {
		return &ConfigurationError{
			Field:  "tiers",
			Reason: "basic_min_trust must not exceed strong_min_trust",
		}
	}
	for _, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if c.DefaultProfile != "" {
		found := false
		for _, p := range c.Profiles {
			if p.Name == c.DefaultProfile {
				found = true
				break
			}
		}
		if !found {
			return &ConfigurationError{
				Field:  "default_profile",
				Reason: fmt.Sprintf("unknown profile %q", c.DefaultProfile),
			}
		}
	}
	return nil
}

// DefaultEngineConfig returns the shipped decision policy.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Trust: TrustConfig{
			HTTPS:           0.15,
			SSLValid:        0.15,
			GovEdu:          0.20,
			Favicon:         0.05,
			NormalStructure: 0.10,
			NoIPAddress:     0.05,
			NoShortener:     0.05,
			NoBrandHijack:   0.05,
			NoSuspiciousTLD: 0.05,
			SecurityHeaders: 0.10,
		},
		Gate: GateConfig{
			MinSecurityHeaders: 1,
			MaxEncodedChars:    3,
		},
		Tiers: TierConfig{
			StrongMinTrust: 0.75,
			BasicMinTrust:  0.50,
		},
		Profiles:       DefaultProfiles(),
		DefaultProfile: ProfileBalanced,
	}
}

// LoadEngineConfig reads an engine policy from a YAML file, applying
// defaults for anything the file omits and validating the result.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading engine policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing engine policy file: %w", err)
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = DefaultProfiles()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:   TierCommunity,
		Engine: DefaultEngineConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Classifier: ClassifierConfig{
			TimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

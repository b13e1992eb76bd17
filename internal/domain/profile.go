package domain

import (
	"fmt"
	"sort"
)

// ThresholdProfile is a named, ordered triple of cut points partitioning
// [0,1] into the four decision bands. Intervals are half-open, lower bound
// inclusive: a score exactly equal to a cut point escalates to the
// higher-risk band.
type ThresholdProfile struct {
	Name string `json:"name" yaml:"name"`

	// Monitor, Warn and Block are t1 < t2 < t3.
	Monitor float64 `json:"monitor" yaml:"monitor"`
	Warn    float64 `json:"warn" yaml:"warn"`
	Block   float64 `json:"block" yaml:"block"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Validate rejects malformed cut points. Called at load time so a bad
// profile fails startup rather than an evaluation.
func (p *ThresholdProfile) Validate() error {
	if p.Name == "" {
		return &ConfigurationError{Field: "profile.name", Reason: "name is required"}
	}
	cuts := []struct {
		field string
		value float64
	}{
		{"monitor", p.Monitor},
		{"warn", p.Warn},
		{"block", p.Block},
	}
	for _, c := range cuts {
		if c.value < 0 || c.value > 1 {
			return &RangeError{
				Field:  fmt.Sprintf("profile %q %s", p.Name, c.field),
				Value:  c.value,
				Reason: "cut point must be within [0,1]",
			}
		}
	}
	if !(p.Monitor < p.Warn && p.Warn < p.Block) {
		return &RangeError{
			Field:  fmt.Sprintf("profile %q", p.Name),
			Value:  p.Monitor,
			Reason: fmt.Sprintf("cut points must be strictly increasing, got (%v, %v, %v)", p.Monitor, p.Warn, p.Block),
		}
	}
	return nil
}

// ProfileSet is the immutable collection of named profiles loaded at
// startup. Safe to share by reference across concurrent evaluations.
type ProfileSet struct {
	profiles map[string]ThresholdProfile
}

// NewProfileSet validates every profile and builds the set. Duplicate names
// are a ConfigurationError.
func NewProfileSet(profiles []ThresholdProfile) (*ProfileSet, error) {
	set := &ProfileSet{profiles: make(map[string]ThresholdProfile, len(profiles))}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := set.profiles[p.Name]; exists {
			return nil, &ConfigurationError{
				Field:  "profiles",
				Reason: fmt.Sprintf("duplicate profile name %q", p.Name),
			}
		}
		set.profiles[p.Name] = p
	}
	if len(set.profiles) == 0 {
		return nil, &ConfigurationError{Field: "profiles", Reason: "at least one profile is required"}
	}
	return set, nil
}

// Get returns the named profile, or ConfigurationError when unknown.
func (s *ProfileSet) Get(name string) (ThresholdProfile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return ThresholdProfile{}, &ConfigurationError{
			Field:  "profile",
			Reason: fmt.Sprintf("unknown profile %q", name),
		}
	}
	return p, nil
}

// List returns all profiles sorted by name, for the observability surface.
func (s *ProfileSet) List() []ThresholdProfile {
	out := make([]ThresholdProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted profile names.
func (s *ProfileSet) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default profile names shipped with the engine.
const (
	ProfileSecurityFocused  = "security-focused"
	ProfileBalanced         = "balanced"
	ProfilePrecisionFocused = "precision-focused"
)

// DefaultProfiles returns the built-in threshold profiles.
func DefaultProfiles() []ThresholdProfile {
	return []ThresholdProfile{
		{
			Name:        ProfileSecurityFocused,
			Monitor:     0.11,
			Warn:        0.40,
			Block:       0.70,
			Description: "Catch-rate first: low monitor floor, aggressive escalation",
		},
		{
			Name:        ProfileBalanced,
			Monitor:     0.20,
			Warn:        0.50,
			Block:       0.80,
			Description: "Balanced trade-off between catch rate and false positives",
		},
		{
			Name:        ProfilePrecisionFocused,
			Monitor:     0.30,
			Warn:        0.60,
			Block:       0.85,
			Description: "Precision first: only high-confidence scores escalate",
		},
	}
}

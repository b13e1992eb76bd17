package domain

import (
	"errors"
	"testing"
)

func TestThresholdProfileValidate(t *testing.T) {
	t.Run("ValidProfile", func(t *testing.T) {
		p := ThresholdProfile{Name: "ok", Monitor: 0.2, Warn: 0.5, Block: 0.8}
		if err := p.Validate(); err != nil {
			t.Errorf("expected valid, got %v", err)
		}
	})

	t.Run("RejectsUnorderedCutPoints", func(t *testing.T) {
		p := ThresholdProfile{Name: "bad", Monitor: 0.5, Warn: 0.3, Block: 0.9}
		var rangeErr *RangeError
		if err := p.Validate(); !errors.As(err, &rangeErr) {
			t.Errorf("expected RangeError, got %v", err)
		}
	})

	t.Run("RejectsEqualCutPoints", func(t *testing.T) {
		p := ThresholdProfile{Name: "bad", Monitor: 0.5, Warn: 0.5, Block: 0.9}
		if err := p.Validate(); err == nil {
			t.Error("expected error for equal cut points")
		}
	})

	t.Run("RejectsOutOfRange", func(t *testing.T) {
		p := ThresholdProfile{Name: "bad", Monitor: -0.1, Warn: 0.5, Block: 0.9}
		if err := p.Validate(); err == nil {
			t.Error("expected error for negative cut point")
		}

		p = ThresholdProfile{Name: "bad", Monitor: 0.1, Warn: 0.5, Block: 1.1}
		if err := p.Validate(); err == nil {
			t.Error("expected error for cut point above 1")
		}
	})

	t.Run("RejectsEmptyName", func(t *testing.T) {
		p := ThresholdProfile{Monitor: 0.2, Warn: 0.5, Block: 0.8}
		if err := p.Validate(); err == nil {
			t.Error("expected error for empty name")
		}
	})

	t.Run("BoundaryCutPointsAccepted", func(t *testing.T) {
		p := ThresholdProfile{Name: "edge", Monitor: 0, Warn: 0.5, Block: 1}
		if err := p.Validate(); err != nil {
			t.Errorf("expected 0 and 1 to be legal cut points, got %v", err)
		}
	})
}

func TestProfileSet(t *testing.T) {
	t.Run("GetKnownProfile", func(t *testing.T) {
		set, err := NewProfileSet(DefaultProfiles())
		if err != nil {
			t.Fatalf("NewProfileSet failed: %v", err)
		}

		p, err := set.Get(ProfileBalanced)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if p.Monitor != 0.20 || p.Warn != 0.50 || p.Block != 0.80 {
			t.Errorf("unexpected balanced cut points: %+v", p)
		}
	})

	t.Run("GetUnknownProfile", func(t *testing.T) {
		set, _ := NewProfileSet(DefaultProfiles())
		_, err := set.Get("nope")
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("RejectsDuplicates", func(t *testing.T) {
		profiles := DefaultProfiles()
		profiles = append(profiles, profiles[0])
		if _, err := NewProfileSet(profiles); err == nil {
			t.Error("expected error for duplicate names")
		}
	})

	t.Run("RejectsEmptySet", func(t *testing.T) {
		if _, err := NewProfileSet(nil); err == nil {
			t.Error("expected error for empty profile set")
		}
	})

	t.Run("ListSorted", func(t *testing.T) {
		set, _ := NewProfileSet(DefaultProfiles())
		list := set.List()
		for i := 1; i < len(list); i++ {
			if list[i-1].Name >= list[i].Name {
				t.Errorf("expected sorted profiles, got %s before %s", list[i-1].Name, list[i].Name)
			}
		}
	})
}

func TestEngineConfigValidate(t *testing.T) {
	t.Run("DefaultsValid", func(t *testing.T) {
		cfg := DefaultEngineConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected shipped policy to validate, got %v", err)
		}
	})

	t.Run("RejectsNegativeWeight", func(t *testing.T) {
		cfg := DefaultEngineConfig()
		cfg.Trust.GovEdu = -0.1
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for negative weight")
		}
	})

	t.Run("RejectsInvertedTierCutoffs", func(t *testing.T) {
		cfg := DefaultEngineConfig()
		cfg.Tiers.BasicMinTrust = 0.9
		cfg.Tiers.StrongMinTrust = 0.5
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for basic cutoff above strong cutoff")
		}
	})

	t.Run("RejectsExcessiveMinHeaders", func(t *testing.T) {
		cfg := DefaultEngineConfig()
		cfg.Gate.MinSecurityHeaders = len(SecurityHeaderFeatures) + 1
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for min headers above the tracked count")
		}
	})
}

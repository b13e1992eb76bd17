package trust

import (
	"testing"

	"github.com/opensource-security/kestrel/internal/domain"
)

func defaultGate() *Gate {
	return NewGate(domain.DefaultEngineConfig().Gate)
}

func TestGate(t *testing.T) {
	gate := defaultGate()

	t.Run("PassesWithCleanVectorAndHeaders", func(t *testing.T) {
		ok, reasons := gate.Check(fv(map[string]float64{
			domain.FeatHTTPS:     1,
			domain.FeatHeaderCSP: 1,
		}))
		if !ok {
			t.Errorf("expected gate to pass, failed with: %v", reasons)
		}
	})

	t.Run("FailsWithoutHeaders", func(t *testing.T) {
		ok, reasons := gate.Check(fv(map[string]float64{domain.FeatHTTPS: 1}))
		if ok {
			t.Error("expected gate to fail with no security headers")
		}
		if len(reasons) != 1 || reasons[0] != "insufficient security headers" {
			t.Errorf("unexpected reasons: %v", reasons)
		}
	})

	t.Run("EachIndicatorFails", func(t *testing.T) {
		cases := []struct {
			name     string
			features map[string]float64
		}{
			{"IPAddressHost", map[string]float64{domain.FeatIPAddress: 1}},
			{"ShortenerHost", map[string]float64{domain.FeatShortener: 1}},
			{"BrandHijack", map[string]float64{domain.FeatBrandHijack: 1}},
			{"BrandInSubdomain", map[string]float64{domain.FeatBrandInSubdomain: 1}},
			{"SuspiciousTLD", map[string]float64{domain.FeatSuspiciousTLD: 1}},
			{"ExcessiveEncoding", map[string]float64{domain.FeatEncodedChars: 4}},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				// Headers satisfied so failure is attributable to the indicator.
				tc.features[domain.FeatHeaderCSP] = 1

				ok, reasons := gate.Check(fv(tc.features))
				if ok {
					t.Error("expected gate to fail")
				}
				if len(reasons) == 0 {
					t.Error("expected a failure reason")
				}
			})
		}
	})

	t.Run("EncodedCharsAtThresholdPasses", func(t *testing.T) {
		// MaxEncodedChars defaults to 3; only a count above it fires.
		ok, _ := gate.Check(fv(map[string]float64{
			domain.FeatEncodedChars: 3,
			domain.FeatHeaderCSP:    1,
		}))
		if !ok {
			t.Error("expected encoded chars at the threshold to pass")
		}
	})

	t.Run("MultipleIndicatorsAllReported", func(t *testing.T) {
		ok, reasons := gate.Check(fv(map[string]float64{
			domain.FeatIPAddress:     1,
			domain.FeatSuspiciousTLD: 1,
		}))
		if ok {
			t.Error("expected gate to fail")
		}
		// Two indicators plus the missing headers.
		if len(reasons) != 3 {
			t.Errorf("expected 3 reasons, got %v", reasons)
		}
	})

	t.Run("ZeroMinHeaders", func(t *testing.T) {
		lenient := NewGate(domain.GateConfig{MinSecurityHeaders: 0, MaxEncodedChars: 3})
		ok, _ := lenient.Check(fv(nil))
		if !ok {
			t.Error("expected clean vector to pass with min_security_headers=0")
		}
	})

	t.Run("TrustSignalsCannotBuyPastIndicator", func(t *testing.T) {
		// Every trust-positive signal present, one indicator active.
		features := allTrustFeatures()
		features[domain.FeatBrandHijack] = 1

		if gate.Passes(fv(features)) {
			t.Error("expected active indicator to fail the gate regardless of trust signals")
		}
	})
}

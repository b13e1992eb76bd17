package engine

import (
	"github.com/opensource-security/kestrel/internal/domain"
)

// Attenuate applies the tier's override factor to the ML score:
// final = ml × (1 − override). The result is monotone non-increasing
// (final ≤ ml always) and stays in [0,1] because override ∈ [0,1).
// When override is 0 the ML score passes through bit-exact.
//
// The upstream classifier is trusted but not blindly: a score outside
// [0,1] is a RangeError, never clamped.
func Attenuate(mlScore, overrideFactor float64) (float64, error) {
	if mlScore < 0 || mlScore > 1 {
		return 0, &domain.RangeError{
			Field:  "mlScore",
			Value:  mlScore,
			Reason: "ml score must be within [0,1]",
		}
	}
	if overrideFactor == 0 {
		return mlScore, nil
	}
	return mlScore * (1 - overrideFactor), nil
}

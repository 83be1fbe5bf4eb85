package fxcurve

import (
	"fmt"
	"math"

	"github.com/meenmo/fxlib/market"
)

// Solving ln(F/S) = Rd·Td − Rf·Tf for one rate with the other held.

// ImpliedRf holds Rd and returns Rf = (Rd·Td − ln(F/S)) / Tf.
func ImpliedRf(spot, forward, rd, td, tf float64) (float64, error) {
	lnFS, err := logRatio(spot, forward, td, tf)
	if err != nil {
		return 0, err
	}
	return (rd*td - lnFS) / tf, nil
}

// ImpliedRd holds Rf and returns Rd = (Rf·Tf + ln(F/S)) / Td.
func ImpliedRd(spot, forward, rf, td, tf float64) (float64, error) {
	lnFS, err := logRatio(spot, forward, td, tf)
	if err != nil {
		return 0, err
	}
	return (rf*tf + lnFS) / td, nil
}

func logRatio(spot, forward, td, tf float64) (float64, error) {
	if td <= 0 || tf <= 0 {
		return 0, fmt.Errorf("fxcurve: cannot back-solve window Td=%g Tf=%g: %w", td, tf, market.ErrZeroOrNegativeWindow)
	}
	if !(spot > 0) || !(forward > 0) || !finite(spot) || !finite(forward) {
		return 0, fmt.Errorf("fxcurve: spot %g and forward %g must be positive: %w", spot, forward, market.ErrInvalidInput)
	}
	return math.Log(forward / spot), nil
}

// Invert returns the rate that is not held. held must be FieldRd or FieldRf.
func Invert(held market.FieldName, spotMid, forwardMid, rd, rf, td, tf float64) (float64, error) {
	switch held {
	case market.FieldRd:
		return ImpliedRf(spotMid, forwardMid, rd, td, tf)
	case market.FieldRf:
		return ImpliedRd(spotMid, forwardMid, rf, td, tf)
	default:
		return 0, fmt.Errorf("Invert: cannot hold %q: %w", held, market.ErrInvalidInput)
	}
}

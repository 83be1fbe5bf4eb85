package fxcurve

import (
	"fmt"

	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/store"
)

// InputsFromSnapshot reads a leg's effective spot and rates from a snapshot,
// collapsing fields viewed or locked as a mid.
func InputsFromSnapshot(snap *store.Snapshot, leg market.LegID, dates Dates) (Inputs, error) {
	if snap == nil {
		return Inputs{}, fmt.Errorf("InputsFromSnapshot: nil snapshot: %w", market.ErrInvalidInput)
	}
	spot := snap.Spot()
	if !spot.HasValue {
		return Inputs{}, fmt.Errorf("InputsFromSnapshot: %s has no spot: %w", snap.Pair(), market.ErrInvalidInput)
	}
	lr, ok := snap.Leg(leg)
	if !ok {
		return Inputs{}, fmt.Errorf("InputsFromSnapshot: unknown leg %q: %w", leg, market.ErrInvalidInput)
	}
	if !lr.Rd.HasValue || !lr.Rf.HasValue {
		return Inputs{}, fmt.Errorf("InputsFromSnapshot: leg %q is missing a rate (rd=%v rf=%v): %w",
			leg, lr.Rd.HasValue, lr.Rf.HasValue, market.ErrInvalidInput)
	}
	return Inputs{
		Pair:  snap.Pair(),
		Dates: dates,
		Spot:  spot.Priced(),
		Rd:    lr.Rd.Priced(),
		Rf:    lr.Rf.Priced(),
	}, nil
}

// FromSnapshot is InputsFromSnapshot followed by Calculate.
func FromSnapshot(snap *store.Snapshot, leg market.LegID, dates Dates) (Result, error) {
	in, err := InputsFromSnapshot(snap, leg, dates)
	if err != nil {
		return Result{}, err
	}
	return Calculate(in)
}

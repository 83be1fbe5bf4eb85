// Package ratesource supplies domestic and foreign money-market rates for a leg.
package ratesource

import (
	"context"
	"time"

	"github.com/meenmo/fxlib/market"
)

// Request identifies the leg and the windows the rates must cover.
// ForceRefresh asks the source to bypass any cache it keeps.
type Request struct {
	Pair         market.Pair
	Leg          market.LegID
	ValueDate    time.Time
	Expiry       time.Time
	SpotDate     time.Time
	Settlement   time.Time
	ForceRefresh bool
}

// Quote is one answer from a source. Stale marks rates the source could only
// serve from an old fixing.
type Quote struct {
	Rd    market.TwoWay
	Rf    market.TwoWay
	Stale bool
}

// Source fetches rates. Implementations must be safe for concurrent use.
type Source interface {
	Rates(ctx context.Context, req Request) (Quote, error)
}

// Func adapts a plain function to Source.
type Func func(ctx context.Context, req Request) (Quote, error)

// Rates calls f.
func (f Func) Rates(ctx context.Context, req Request) (Quote, error) {
	return f(ctx, req)
}

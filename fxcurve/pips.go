package fxcurve

import (
	"github.com/shopspring/decimal"

	"github.com/meenmo/fxlib/market"
)

// PipFactor scales a price difference to pips: 100 for JPY-quoted pairs, 10000 otherwise.
func PipFactor(pair market.Pair) int64 {
	if pair.Quote() == "JPY" {
		return 100
	}
	return 10000
}

// Pips converts each side to pips rounded half-away-from-zero to places decimals.
func (s Sided) Pips(pair market.Pair, places int32) Sided {
	factor := decimal.NewFromInt(PipFactor(pair))
	conv := func(v float64) float64 {
		return decimal.NewFromFloat(v).Mul(factor).Round(places).InexactFloat64()
	}
	return Sided{Bid: conv(s.Bid), Mid: conv(s.Mid), Ask: conv(s.Ask)}
}

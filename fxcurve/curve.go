// Package fxcurve builds the two-way FX forward curve of one leg from spot and
// money-market rates, and inverts it for an implied rate.
//
// Discounting is exponential, DF(r, T) = exp(-r·T), with T on each currency's
// money-market basis (see utils.MoneyMarketDayCount).
package fxcurve

import (
	"fmt"
	"math"
	"time"

	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/utils"
)

// Dates are the four dates a leg's curve depends on.
type Dates struct {
	ValueDate  time.Time
	Expiry     time.Time
	SpotDate   time.Time
	Settlement time.Time
}

func (d Dates) validate() error {
	if d.ValueDate.IsZero() || d.Expiry.IsZero() || d.SpotDate.IsZero() || d.Settlement.IsZero() {
		return fmt.Errorf("fxcurve: all of value date, expiry, spot date and settlement are required: %w", market.ErrInvalidInput)
	}
	return nil
}

// Windows are the year fractions of the two money-market windows, per currency.
type Windows struct {
	// ExpiryDom and ExpiryFor span value date -> expiry.
	ExpiryDom float64
	ExpiryFor float64
	// SettleDom and SettleFor span spot date -> settlement.
	SettleDom float64
	SettleFor float64
}

// NewWindows computes the windows of a leg. Any window <= 0 is an error.
func NewWindows(pair market.Pair, d Dates) (Windows, error) {
	if err := d.validate(); err != nil {
		return Windows{}, err
	}
	dom, fgn := pair.Quote(), pair.Base()
	w := Windows{
		ExpiryDom: utils.MoneyMarketYearFraction(dom, d.ValueDate, d.Expiry),
		ExpiryFor: utils.MoneyMarketYearFraction(fgn, d.ValueDate, d.Expiry),
		SettleDom: utils.MoneyMarketYearFraction(dom, d.SpotDate, d.Settlement),
		SettleFor: utils.MoneyMarketYearFraction(fgn, d.SpotDate, d.Settlement),
	}
	if w.ExpiryDom <= 0 || w.ExpiryFor <= 0 {
		return Windows{}, fmt.Errorf("NewWindows: expiry %s on or before value date %s: %w",
			d.Expiry.Format(utils.DateLayout), d.ValueDate.Format(utils.DateLayout), market.ErrZeroOrNegativeWindow)
	}
	if w.SettleDom <= 0 || w.SettleFor <= 0 {
		return Windows{}, fmt.Errorf("NewWindows: settlement %s on or before spot date %s: %w",
			d.Settlement.Format(utils.DateLayout), d.SpotDate.Format(utils.DateLayout), market.ErrZeroOrNegativeWindow)
	}
	return w, nil
}

// Sided carries a derived quantity on bid, mid and ask.
type Sided struct {
	Bid float64
	Mid float64
	Ask float64
}

func sided(f func(spot, rd, rf float64) float64, spot, rd, rf market.TwoWay) Sided {
	return Sided{
		Bid: f(spot.Bid, rd.Bid, rf.Bid),
		Mid: f(spot.Mid(), rd.Mid(), rf.Mid()),
		Ask: f(spot.Ask, rd.Ask, rf.Ask),
	}
}

// Inputs is everything Calculate needs; Spot, Rd and Rf are effective two-way values.
type Inputs struct {
	Pair  market.Pair
	Dates Dates
	Spot  market.TwoWay
	Rd    market.TwoWay
	Rf    market.TwoWay
}

// Result is the curve of one leg. It is recomputed on demand and never cached.
type Result struct {
	Pair    market.Pair
	Dates   Dates
	Windows Windows

	// DFDomExpiry and DFForExpiry discount to the option expiry (value date window);
	// the option pricer uses them for premium discounting.
	DFDomExpiry Sided
	DFForExpiry Sided
	// DFDomSettle and DFForSettle discount over the spot -> settlement window.
	DFDomSettle Sided
	DFForSettle Sided

	Forward    Sided
	SwapPoints Sided
}

// DiscountFactor is exp(-r·t).
func DiscountFactor(r, t float64) float64 {
	return math.Exp(-r * t)
}

// ForwardRate is covered interest parity under exponential discounting:
// S · DF(rf, tf) / DF(rd, td).
func ForwardRate(spot, rd, rf, td, tf float64) float64 {
	return spot * DiscountFactor(rf, tf) / DiscountFactor(rd, td)
}

// Calculate derives discount factors, forward and swap points on each side,
// feeding each side with the correspondingly sided spot and rates.
func Calculate(in Inputs) (Result, error) {
	if err := validateInputs(in); err != nil {
		return Result{}, err
	}
	w, err := NewWindows(in.Pair, in.Dates)
	if err != nil {
		return Result{}, err
	}

	res := Result{Pair: in.Pair, Dates: in.Dates, Windows: w}
	res.DFDomExpiry = sided(func(_, rd, _ float64) float64 { return DiscountFactor(rd, w.ExpiryDom) }, in.Spot, in.Rd, in.Rf)
	res.DFForExpiry = sided(func(_, _, rf float64) float64 { return DiscountFactor(rf, w.ExpiryFor) }, in.Spot, in.Rd, in.Rf)
	res.DFDomSettle = sided(func(_, rd, _ float64) float64 { return DiscountFactor(rd, w.SettleDom) }, in.Spot, in.Rd, in.Rf)
	res.DFForSettle = sided(func(_, _, rf float64) float64 { return DiscountFactor(rf, w.SettleFor) }, in.Spot, in.Rd, in.Rf)
	res.Forward = sided(func(s, rd, rf float64) float64 {
		return ForwardRate(s, rd, rf, w.SettleDom, w.SettleFor)
	}, in.Spot, in.Rd, in.Rf)
	res.SwapPoints = Sided{
		Bid: res.Forward.Bid - in.Spot.Bid,
		Mid: res.Forward.Mid - in.Spot.Mid(),
		Ask: res.Forward.Ask - in.Spot.Ask,
	}
	return res, nil
}

func validateInputs(in Inputs) error {
	if _, err := market.ParsePair(string(in.Pair)); err != nil {
		return err
	}
	if in.Spot.Bid <= 0 || in.Spot.Ask <= 0 {
		return fmt.Errorf("Calculate: spot %v must be positive: %w", in.Spot, market.ErrInvalidInput)
	}
	for name, v := range map[string]market.TwoWay{"spot": in.Spot, "rd": in.Rd, "rf": in.Rf} {
		if !finite(v.Bid) || !finite(v.Ask) {
			return fmt.Errorf("Calculate: %s %v is not finite: %w", name, v, market.ErrInvalidInput)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/meenmo/fxlib/calendar"
	"github.com/meenmo/fxlib/logging"
	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/ratesource"
	"github.com/meenmo/fxlib/session"
	"github.com/meenmo/fxlib/store"
)

func main() {
	pair := market.MustPair("EURSEK")

	rates := ratesource.NewMapSource()
	rates.Set(pair, "", ratesource.Quote{
		Rd: market.NewTwoWay(0.0290, 0.0310),
		Rf: market.NewTwoWay(0.0240, 0.0260),
	})

	s, err := session.New(pair, rates, calendar.NewDateSource(nil), session.WithLogger(logging.Discard()))
	if err != nil {
		panic(err)
	}
	s.Store().Subscribe(func(_ *store.Snapshot, r store.Reason) {
		fmt.Printf("seq %d: %s from %s, legs %v\n", r.Seq, r.Kind(), r.Origin, r.Legs)
	})

	leg := market.LegID("3M")
	valueDate := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	if err := s.SetLeg(leg, valueDate, valueDate.AddDate(0, 3, 0)); err != nil {
		panic(err)
	}
	if err := s.SetSpot(market.NewTwoWay(11.19, 11.21), false); err != nil {
		panic(err)
	}
	if _, err := s.RefreshRates(context.Background(), false); err != nil {
		panic(err)
	}

	curve, err := s.Curve(leg)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Forward: %.5f / %.5f / %.5f\n", curve.Forward.Bid, curve.Forward.Mid, curve.Forward.Ask)
	pips := curve.SwapPoints.Pips(pair, 1)
	fmt.Printf("Swap points (pips): %.1f / %.1f / %.1f\n", pips.Bid, pips.Mid, pips.Ask)

	out, err := s.SolveForward(leg, 11.25)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Solved %s holding %s: %s\n", out.Solved, out.Held, out.Rate)
	fmt.Printf("Forward after solve: %.5f\n", out.Curve.Forward.Mid)
}

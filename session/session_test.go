package session_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meenmo/fxlib/backsolve"
	"github.com/meenmo/fxlib/calendar"
	"github.com/meenmo/fxlib/logging"
	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/ratesource"
	"github.com/meenmo/fxlib/session"
	"github.com/meenmo/fxlib/store"
)

var (
	eursek    = market.MustPair("EURSEK")
	valueDate = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	expiry    = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
)

func newSession(t *testing.T, src ratesource.Source, opts ...session.Option) *session.Session {
	t.Helper()
	opts = append([]session.Option{session.WithLogger(logging.Discard())}, opts...)
	s, err := session.New(eursek, src, calendar.NewDateSource(nil), opts...)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return s
}

func staticSource() *ratesource.MapSource {
	src := ratesource.NewMapSource()
	src.Set(eursek, "", ratesource.Quote{Rd: market.NewTwoWay(0.029, 0.031), Rf: market.NewTwoWay(0.024, 0.026)})
	return src
}

func TestSetLeg_ResolvesDates(t *testing.T) {
	t.Parallel()

	s := newSession(t, staticSource())
	if err := s.SetLeg("leg-a", valueDate, expiry); err != nil {
		t.Fatal(err)
	}
	d, ok := s.LegDates("leg-a")
	if !ok {
		t.Fatal("leg not registered")
	}
	if !d.SpotDate.Equal(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)) || !d.Settlement.Equal(time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("dates: %+v", d)
	}
	if err := s.SetLeg("leg-b", expiry, valueDate); !errors.Is(err, market.ErrZeroOrNegativeWindow) {
		t.Fatalf("expiry before value date: expected ErrZeroOrNegativeWindow, got %v", err)
	}
}

func TestRefreshRates_OneNotificationForAllLegs(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	src := ratesource.Func(func(_ context.Context, req ratesource.Request) (ratesource.Quote, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return ratesource.Quote{Rd: market.NewTwoWay(0.029, 0.031), Rf: market.NewTwoWay(0.024, 0.026)}, nil
	})
	s := newSession(t, src, session.WithConcurrency(2))
	legs := []market.LegID{"leg-a", "leg-b", "leg-c", "leg-d", "leg-e"}
	for _, leg := range legs {
		if err := s.SetLeg(leg, valueDate, expiry); err != nil {
			t.Fatal(err)
		}
	}

	var reasons []store.Reason
	s.Store().Subscribe(func(_ *store.Snapshot, r store.Reason) { reasons = append(reasons, r) })

	reason, err := s.RefreshRates(context.Background(), false)
	if err != nil {
		t.Fatalf("RefreshRates: %v", err)
	}
	if len(reasons) != 1 {
		t.Fatalf("expected one notification, got %d", len(reasons))
	}
	if reason.Kind() != store.KindRates || reason.Origin != store.OriginFeed || len(reason.Legs) != len(legs) {
		t.Fatalf("unexpected reason %+v", reason)
	}
	if peak.Load() > 2 {
		t.Fatalf("concurrency limit exceeded: %d in flight", peak.Load())
	}

	// Same rates again: nothing changes, nothing is emitted.
	if _, err := s.RefreshRates(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if len(reasons) != 1 {
		t.Fatalf("no-op refresh notified: %d", len(reasons))
	}
}

func TestRefreshRates_FailureWritesNothing(t *testing.T) {
	t.Parallel()

	src := staticSource()
	failing := ratesource.Func(func(ctx context.Context, req ratesource.Request) (ratesource.Quote, error) {
		if req.Leg == "leg-b" {
			return ratesource.Quote{}, ratesource.ErrNoQuote
		}
		return src.Rates(ctx, req)
	})
	s := newSession(t, failing)
	for _, leg := range []market.LegID{"leg-a", "leg-b"} {
		if err := s.SetLeg(leg, valueDate, expiry); err != nil {
			t.Fatal(err)
		}
	}
	seq := s.Store().Snapshot().Seq()
	if _, err := s.RefreshRates(context.Background(), false); !errors.Is(err, ratesource.ErrNoQuote) {
		t.Fatalf("expected ErrNoQuote, got %v", err)
	}
	if s.Store().Snapshot().Seq() != seq {
		t.Fatal("partial refresh was committed")
	}
	if _, err := s.RefreshRates(context.Background(), false, "leg-z"); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("unknown leg: expected ErrInvalidInput, got %v", err)
	}
}

func TestSetLeg_ExpiryChangeForcesRefresh(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var forced []bool
	src := staticSource()
	recording := ratesource.Func(func(ctx context.Context, req ratesource.Request) (ratesource.Quote, error) {
		mu.Lock()
		forced = append(forced, req.ForceRefresh)
		mu.Unlock()
		return src.Rates(ctx, req)
	})
	s := newSession(t, recording)
	if err := s.SetLeg("leg-a", valueDate, expiry); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RefreshRates(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	if err := s.SetLeg("leg-a", valueDate, expiry.AddDate(0, 1, 0)); err != nil {
		t.Fatal(err)
	}
	lr, _ := s.Store().Snapshot().Leg("leg-a")
	if !lr.Rd.Invalidated || !lr.Rf.Invalidated {
		t.Fatal("expiry change did not invalidate the leg")
	}
	if _, err := s.Curve("leg-a"); err != nil {
		t.Fatalf("invalidated values stay usable until refreshed: %v", err)
	}

	if _, err := s.RefreshRates(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	lr, _ = s.Store().Snapshot().Leg("leg-a")
	if lr.Rd.Invalidated || lr.Rf.Invalidated {
		t.Fatal("refresh did not clear invalidation")
	}
	if len(forced) != 2 || forced[0] || !forced[1] {
		t.Fatalf("force flags: %v", forced)
	}
}

func TestSolve_ThroughSession(t *testing.T) {
	t.Parallel()

	s := newSession(t, staticSource(), session.WithLockMode(backsolve.HoldRf))
	if err := s.SetLeg("leg-a", valueDate, expiry); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSpot(market.NewTwoWay(11.19, 11.21), false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RefreshRates(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	out, err := s.SolveForward("leg-a", 11.25)
	if err != nil {
		t.Fatalf("SolveForward: %v", err)
	}
	if out.Solved != market.FieldRd {
		t.Fatalf("HoldRf should solve Rd, solved %s", out.Solved)
	}
	curve, err := s.Curve("leg-a")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(curve.Forward.Mid-11.25) > 1e-10 {
		t.Fatalf("forward mid after solve: %.12f", curve.Forward.Mid)
	}

	s.SetLockMode(backsolve.HoldRd)
	out, err = s.SolveSwap("leg-a", 0.03)
	if err != nil {
		t.Fatalf("SolveSwap: %v", err)
	}
	// The solved Rd is not a trader override, so HoldRd decides.
	if out.Held != market.FieldRd {
		t.Fatalf("held %s", out.Held)
	}
	if math.Abs(out.Curve.SwapPoints.Mid-0.03) > 1e-10 {
		t.Fatalf("swap points mid after solve: %.12f", out.Curve.SwapPoints.Mid)
	}

	if _, err := s.SolveForward("leg-z", 11.25); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("unknown leg: expected ErrInvalidInput, got %v", err)
	}
}

func TestSwitchPair_RederivesDates(t *testing.T) {
	t.Parallel()

	s := newSession(t, staticSource())
	if err := s.SetLeg("leg-a", valueDate, expiry); err != nil {
		t.Fatal(err)
	}
	reason, err := s.SwitchPair(market.MustPair("USDCAD"))
	if err != nil {
		t.Fatal(err)
	}
	if !reason.PairSwitched || s.Pair() != "USDCAD" {
		t.Fatalf("pair not switched: %+v", reason)
	}
	d, _ := s.LegDates("leg-a")
	if !d.SpotDate.Equal(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("USDCAD spot is T+1, got %s", d.SpotDate.Format("2006-01-02"))
	}
}

func TestNew_RequiresSources(t *testing.T) {
	t.Parallel()

	if _, err := session.New(eursek, nil, calendar.NewDateSource(nil)); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSweepStale_FlagsOldFeedValues(t *testing.T) {
	t.Parallel()

	var now atomic.Int64
	now.Store(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC).UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()).UTC() }

	s := newSession(t, staticSource(), session.WithClock(clock), session.WithStaleAfter(30*time.Second))
	if err := s.SetLeg("leg-a", valueDate, expiry); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSpot(market.NewTwoWay(11.19, 11.21), false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RefreshRates(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := s.Store().WriteFromUser(eursek, market.RdKey("leg-a"), market.MidOnly(0.03), true, market.ViewMid); err != nil {
		t.Fatal(err)
	}

	if r, err := s.SweepStale(); err != nil || r.Seq != 0 {
		t.Fatalf("fresh values swept: %+v, %v", r, err)
	}

	now.Add(int64(time.Minute))
	r, err := s.SweepStale()
	if err != nil {
		t.Fatal(err)
	}
	if r.Origin != store.OriginSystem || r.Kind() != store.KindMixed {
		t.Fatalf("reason %+v", r)
	}
	snap := s.Store().Snapshot()
	lr, _ := snap.Leg("leg-a")
	if !snap.Spot().Stale || !lr.Rf.Stale || lr.Rd.Stale {
		t.Fatalf("spot %v rd %v rf %v", snap.Spot().Stale, lr.Rd.Stale, lr.Rf.Stale)
	}
}

func TestSwitchPair_SubscriberReadsSession(t *testing.T) {
	t.Parallel()

	s := newSession(t, staticSource())
	if err := s.SetLeg("leg-a", valueDate, expiry); err != nil {
		t.Fatal(err)
	}

	var (
		seen     bool
		spotDate time.Time
		curveErr error
	)
	s.Store().Subscribe(func(_ *store.Snapshot, r store.Reason) {
		if !r.PairSwitched {
			return
		}
		seen = true
		d, _ := s.LegDates("leg-a")
		spotDate = d.SpotDate
		_, curveErr = s.Curve("leg-a")
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.SwitchPair(market.MustPair("USDCAD"))
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SwitchPair: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SwitchPair blocked while a subscriber read the session")
	}

	if !seen {
		t.Fatal("subscriber not notified")
	}
	if !spotDate.Equal(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("subscriber saw stale dates: spot %s", spotDate.Format("2006-01-02"))
	}
	// Spot was reset by the switch, so the curve is not computable yet.
	if !errors.Is(curveErr, market.ErrInvalidInput) {
		t.Fatalf("Curve during switch: %v", curveErr)
	}
}

func TestSwitchPair_InvalidPairKeepsLegs(t *testing.T) {
	t.Parallel()

	s := newSession(t, staticSource())
	if err := s.SetLeg("leg-a", valueDate, expiry); err != nil {
		t.Fatal(err)
	}
	before, _ := s.LegDates("leg-a")
	if _, err := s.SwitchPair("EUR"); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if after, _ := s.LegDates("leg-a"); after != before || s.Pair() != eursek {
		t.Fatalf("failed switch changed state: %+v pair %s", after, s.Pair())
	}
}

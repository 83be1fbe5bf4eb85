package store_test

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meenmo/fxlib/logging"
	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/store"
)

var eursek = market.MustPair("EURSEK")

func newStore(t *testing.T) *store.Store {
	t.Helper()
	clock := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	s, err := store.New(eursek,
		store.WithLogger(logging.Discard()),
		store.WithClock(func() time.Time { return clock }),
	)
	if err != nil {
		t.Fatalf("store.New error: %v", err)
	}
	return s
}

type recorder struct {
	mu      sync.Mutex
	snaps   []*store.Snapshot
	reasons []store.Reason
}

func (r *recorder) fn(snap *store.Snapshot, reason store.Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	r.reasons = append(r.reasons, reason)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

func TestBatch_SingleNotification(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	rec := &recorder{}
	s.Subscribe(rec.fn)

	legA := market.LegID("leg-a")
	reason, err := s.Batch(eursek, store.OriginFeed, func(b *store.Batch) error {
		if err := b.WriteFromFeed(market.SpotKey(), market.NewTwoWay(11.19, 11.21), false); err != nil {
			return err
		}
		if err := b.WriteFromFeed(market.RdKey(legA), market.NewTwoWay(0.029, 0.031), false); err != nil {
			return err
		}
		return b.WriteFromFeed(market.RfKey(legA), market.NewTwoWay(0.024, 0.026), false)
	})
	if err != nil {
		t.Fatalf("Batch error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", rec.count())
	}
	if reason.Kind() != store.KindMixed {
		t.Fatalf("kind: got %s", reason.Kind())
	}
	if len(reason.Legs) != 1 || reason.Legs[0] != legA {
		t.Fatalf("legs: %v", reason.Legs)
	}

	snap := rec.snaps[0]
	lr, ok := snap.Leg(legA)
	if !ok {
		t.Fatalf("leg missing from snapshot")
	}
	if math.Abs(snap.Spot().Value.Mid()-11.20) > 1e-12 || lr.Rd.Value.Bid != 0.029 || lr.Rf.Value.Ask != 0.026 {
		t.Fatalf("snapshot does not reflect the whole batch: spot %v rd %v rf %v", snap.Spot().Value, lr.Rd.Value, lr.Rf.Value)
	}
}

func TestReason_Kinds(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	rec := &recorder{}
	s.Subscribe(rec.fn)
	legA, legB := market.LegID("a"), market.LegID("b")

	if err := s.WriteFromFeed(eursek, market.SpotKey(), market.NewTwoWay(11.19, 11.21), false); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteFromFeed(eursek, market.RdKey(legB), market.NewTwoWay(0.03, 0.031), false); err != nil {
		t.Fatal(err)
	}

	if got := rec.reasons[0]; got.Kind() != store.KindSpot || !got.Touches(legA) {
		t.Fatalf("spot change should be spot-only and touch every leg: %+v", got)
	}
	got := rec.reasons[1]
	if got.Kind() != store.KindRates {
		t.Fatalf("rate change kind: %s", got.Kind())
	}
	if got.Touches(legA) || !got.Touches(legB) {
		t.Fatalf("rate change leg routing wrong: %+v", got)
	}
}

func TestNoOpWrite_NoNotification(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	if err := s.WriteFromFeed(eursek, market.SpotKey(), market.NewTwoWay(11.19, 11.21), false); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()

	rec := &recorder{}
	s.Subscribe(rec.fn)
	if err := s.WriteFromFeed(eursek, market.SpotKey(), market.NewTwoWay(11.19, 11.21), false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetViewMode(eursek, market.SpotKey(), market.ViewFollowFeed); err != nil {
		t.Fatal(err)
	}
	if rec.count() != 0 {
		t.Fatalf("no-op writes notified %d times", rec.count())
	}
	if s.Snapshot() != before || s.Snapshot().Spot().Version != before.Spot().Version {
		t.Fatalf("no-op write committed a new snapshot")
	}
}

func TestBatch_ErrorRollsBack(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	rec := &recorder{}
	s.Subscribe(rec.fn)

	boom := errors.New("boom")
	_, err := s.Batch(eursek, store.OriginUser, func(b *store.Batch) error {
		if err := b.WriteFromUser(market.SpotKey(), market.MidOnly(11.2), true, market.ViewMid); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if rec.count() != 0 || s.Snapshot().Spot().HasValue {
		t.Fatalf("failed batch leaked state")
	}
}

func TestPairMismatch(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	err := s.WriteFromFeed(market.MustPair("USDJPY"), market.SpotKey(), market.MidOnly(150), false)
	if !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := s.WriteFromFeed(eursek, market.FieldKey{Name: market.FieldRd}, market.MidOnly(0.03), false); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("rate without leg: expected ErrInvalidInput, got %v", err)
	}
}

func TestSwitchPair_ResetsSpotKeepsLegs(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	leg := market.LegID("a")
	_, err := s.Batch(eursek, store.OriginFeed, func(b *store.Batch) error {
		if err := b.WriteFromFeed(market.SpotKey(), market.NewTwoWay(11.19, 11.21), false); err != nil {
			return err
		}
		return b.WriteFromFeed(market.RdKey(leg), market.NewTwoWay(0.03, 0.031), false)
	})
	if err != nil {
		t.Fatal(err)
	}
	oldVersion := s.Snapshot().Spot().Version

	rec := &recorder{}
	s.Subscribe(rec.fn)
	usdjpy := market.MustPair("USDJPY")
	reason, err := s.SwitchPair(usdjpy)
	if err != nil {
		t.Fatalf("SwitchPair error: %v", err)
	}
	if !reason.PairSwitched || reason.Kind() != store.KindSpot {
		t.Fatalf("reason: %+v", reason)
	}
	snap := s.Snapshot()
	if snap.Pair() != usdjpy || snap.Spot().HasValue {
		t.Fatalf("spot not reset: pair %s spot %+v", snap.Pair(), snap.Spot())
	}
	if snap.Spot().Version <= oldVersion {
		t.Fatalf("spot version went backwards: %d -> %d", oldVersion, snap.Spot().Version)
	}
	if _, ok := snap.Leg(leg); !ok {
		t.Fatalf("legs must survive a pair switch")
	}
	if err := s.WriteFromFeed(eursek, market.SpotKey(), market.MidOnly(11.2), false); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("old pair still accepted: %v", err)
	}
}

func TestInvalidateAndRemoveLeg(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	leg := market.LegID("a")
	if err := s.WriteFromFeed(eursek, market.RdKey(leg), market.NewTwoWay(0.03, 0.031), false); err != nil {
		t.Fatal(err)
	}
	if err := s.InvalidateLeg(eursek, leg); err != nil {
		t.Fatal(err)
	}
	lr, _ := s.Snapshot().Leg(leg)
	if !lr.Rd.Invalidated || !lr.Rf.Invalidated {
		t.Fatalf("both rates must be invalidated: %+v", lr)
	}
	if lr.Rd.Value != market.NewTwoWay(0.03, 0.031) {
		t.Fatalf("invalidation discarded the cached rate")
	}

	rec := &recorder{}
	s.Subscribe(rec.fn)
	if err := s.RemoveLeg(eursek, leg); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Snapshot().Leg(leg); ok {
		t.Fatalf("leg still referenced")
	}
	if rec.count() != 1 || rec.reasons[0].Kind() != store.KindRates || !rec.reasons[0].Touches(leg) {
		t.Fatalf("remove notification: %+v", rec.reasons)
	}
}

func TestConcurrentWriters_OrderedAtomicNotifications(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	rec := &recorder{}
	s.Subscribe(rec.fn)

	const writers, ticks = 8, 50
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			leg := market.LegID(fmt.Sprintf("leg-%d", w))
			for i := 0; i < ticks; i++ {
				v := 0.01 + float64(i)*1e-4
				_, err := s.Batch(eursek, store.OriginFeed, func(b *store.Batch) error {
					if err := b.WriteFromFeed(market.RdKey(leg), market.NewTwoWay(v, v+0.001), false); err != nil {
						return err
					}
					// Rf mirrors Rd inside the same batch; a torn snapshot would break the pairing.
					return b.WriteFromFeed(market.RfKey(leg), market.NewTwoWay(v, v+0.001), false)
				})
				if err != nil {
					return err
				}
				if i%10 == 0 {
					if err := s.WriteFromUser(eursek, market.SpotKey(), market.NewTwoWay(11.2-v, 11.2+v), false, market.ViewTwoWay); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("writer error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, snap := range rec.snaps {
		if snap.Seq() != uint64(i+1) || rec.reasons[i].Seq != snap.Seq() {
			t.Fatalf("notification %d out of order: seq %d reason %d", i, snap.Seq(), rec.reasons[i].Seq)
		}
		for _, id := range snap.Legs() {
			lr, _ := snap.Leg(id)
			if lr.Rd.Value != lr.Rf.Value {
				t.Fatalf("torn snapshot %d for %s: rd %v rf %v", snap.Seq(), id, lr.Rd.Value, lr.Rf.Value)
			}
			if lr.Rd.Value.Inverted() || lr.Rf.Value.Inverted() {
				t.Fatalf("bid > ask in snapshot %d", snap.Seq())
			}
		}
		if snap.Spot().Value.Inverted() {
			t.Fatalf("spot bid > ask in snapshot %d", snap.Seq())
		}
	}
}

package store

import (
	"fmt"
	"time"

	"github.com/meenmo/fxlib/market"
)

// Batch collects writes that commit together and produce one notification.
//
// A Batch is only valid inside the function passed to Store.Batch.
type Batch struct {
	origin       Origin
	at           time.Time
	work         *Snapshot
	touched      map[market.FieldKey]struct{}
	removed      map[market.LegID]struct{}
	pairSwitched bool
}

func newBatch(cur *Snapshot, origin Origin, at time.Time) *Batch {
	return &Batch{
		origin:  origin,
		at:      at,
		work:    cur.clone(),
		touched: make(map[market.FieldKey]struct{}),
		removed: make(map[market.LegID]struct{}),
	}
}

// Current exposes the in-progress state, including writes already made in this batch.
func (b *Batch) Current() *Snapshot {
	return b.work
}

// Changed reports whether the batch has anything to commit.
func (b *Batch) Changed() bool {
	return len(b.touched) > 0 || len(b.removed) > 0 || b.pairSwitched
}

func (b *Batch) apply(key market.FieldKey, op func(market.Field) (market.Field, bool)) error {
	if err := key.Validate(); err != nil {
		return err
	}
	next, changed := op(b.work.field(key))
	if !changed {
		return nil
	}
	b.work.put(key, next)
	b.touched[key] = struct{}{}
	delete(b.removed, key.Leg)
	return nil
}

// WriteFromFeed merges a feed value into the field at key.
func (b *Batch) WriteFromFeed(key market.FieldKey, v market.TwoWay, stale bool) error {
	return b.apply(key, func(f market.Field) (market.Field, bool) {
		return f.WriteFromFeed(v, stale, b.at)
	})
}

// WriteFromUser applies a trader entry to the field at key.
func (b *Batch) WriteFromUser(key market.FieldKey, v market.TwoWay, wasMid bool, view market.ViewMode) error {
	return b.apply(key, func(f market.Field) (market.Field, bool) {
		return f.WriteFromUser(v, wasMid, view, b.at), true
	})
}

// WriteSolved applies a back-solved mid with the given spread.
func (b *Batch) WriteSolved(key market.FieldKey, mid, spread float64) error {
	var solveErr error
	err := b.apply(key, func(f market.Field) (market.Field, bool) {
		next, err := f.WriteSolved(mid, spread, b.at)
		if err != nil {
			solveErr = err
			return f, false
		}
		return next, true
	})
	if err != nil {
		return err
	}
	return solveErr
}

// SetViewMode changes how the field at key is displayed and priced.
func (b *Batch) SetViewMode(key market.FieldKey, v market.ViewMode) error {
	return b.apply(key, func(f market.Field) (market.Field, bool) {
		return f.SetViewMode(v)
	})
}

// SetOverride changes which sides of the field at key are feed-locked.
func (b *Batch) SetOverride(key market.FieldKey, o market.Override) error {
	return b.apply(key, func(f market.Field) (market.Field, bool) {
		return f.SetOverride(o)
	})
}

// SetStale records the feed's freshness verdict for the field at key.
func (b *Batch) SetStale(key market.FieldKey, stale bool) error {
	return b.apply(key, func(f market.Field) (market.Field, bool) {
		return f.SetStale(stale)
	})
}

// InvalidateLeg marks both rates of a leg for re-derivation by the rate source.
func (b *Batch) InvalidateLeg(leg market.LegID) error {
	for _, key := range []market.FieldKey{market.RdKey(leg), market.RfKey(leg)} {
		if err := b.apply(key, func(f market.Field) (market.Field, bool) {
			return f.Invalidate()
		}); err != nil {
			return err
		}
	}
	return nil
}

// RemoveLeg stops referencing a leg's fields.
func (b *Batch) RemoveLeg(leg market.LegID) error {
	if leg == "" {
		return fmt.Errorf("RemoveLeg: empty leg: %w", market.ErrInvalidInput)
	}
	if _, ok := b.work.legs[leg]; !ok {
		return nil
	}
	delete(b.work.legs, leg)
	delete(b.touched, market.RdKey(leg))
	delete(b.touched, market.RfKey(leg))
	b.removed[leg] = struct{}{}
	return nil
}

func (b *Batch) switchPair(pair market.Pair) {
	if pair == b.work.pair {
		return
	}
	b.work.pair = pair
	b.work.spot = market.Field{Version: b.work.spot.Version + 1}
	b.touched[market.SpotKey()] = struct{}{}
	b.pairSwitched = true
}

package market

import (
	"fmt"
	"time"
)

// Field is the state of one market quantity for one (pair, leg, quantity).
//
// Field is a value type. Every operation returns the next state together with
// a changed flag and leaves the receiver untouched, so snapshots can hold
// fields by value without sharing.
type Field struct {
	Value    TwoWay
	HasValue bool

	Source   Source
	View     ViewMode
	Override Override

	Timestamp time.Time
	Version   uint64
	Stale     bool

	// Invalidated marks a value that must be re-derived from the rate source on
	// the next read. The previous value is kept until then.
	Invalidated bool

	// RecordedSpread is the last non-zero spread written to the field.
	RecordedSpread    float64
	HasRecordedSpread bool
}

// IsOverride reports whether any side is locked against the feed.
func (f Field) IsOverride() bool {
	return f.Override != OverrideNone
}

// IsUserOverride reports whether the field is locked by the trader. The lock a
// back-solve leaves on its result does not count.
func (f Field) IsUserOverride() bool {
	return f.IsOverride() && f.Source != SourceSolver
}

// Priced is the value handed to pricing consumers: collapsed to the mid when the
// field is viewed or locked as a mid, the genuine two-way otherwise.
func (f Field) Priced() TwoWay {
	if f.View == ViewMid || f.Override == OverrideMid {
		return f.Value.Collapsed()
	}
	return f.Value
}

// SpreadForSolve is the spread a back-solve preserves: the current spread when
// the field holds a live value, else the last recorded spread, else zero.
func (f Field) SpreadForSolve() float64 {
	if f.HasValue && !f.Invalidated {
		return f.Value.Spread()
	}
	if f.HasRecordedSpread {
		return f.RecordedSpread
	}
	return 0
}

// WriteFromFeed merges a feed tick into the field.
//
// Each side is overwritten unless the override locks it. Source becomes Feed
// only when a side actually changed. The stale flag is always taken from the
// tick. View mode and override are never touched.
func (f Field) WriteFromFeed(v TwoWay, stale bool, at time.Time) (Field, bool) {
	v = v.Normalized()
	next := f

	bidOpen := !f.Override.Locks(SideBid)
	askOpen := !f.Override.Locks(SideAsk)
	if bidOpen {
		next.Value.Bid = v.Bid
	}
	if askOpen {
		next.Value.Ask = v.Ask
	}
	// A locked side can sit on the wrong side of a fresh tick; the feed side
	// gives way so the field never inverts.
	if next.Value.Inverted() {
		switch {
		case bidOpen && !askOpen:
			next.Value.Bid = next.Value.Ask
		case askOpen && !bidOpen:
			next.Value.Ask = next.Value.Bid
		}
	}

	accepted := bidOpen || askOpen
	valueChanged := accepted && (!f.HasValue || next.Value != f.Value)
	if valueChanged {
		next.Source = SourceFeed
		next.HasValue = true
		next.Timestamp = at.UTC()
		next.recordSpread()
	}
	if accepted {
		next.Invalidated = false
	}
	next.Stale = stale

	if !valueChanged && next.Stale == f.Stale && next.Invalidated == f.Invalidated {
		return f, false
	}
	next.Version = f.Version + 1
	return next, true
}

// WriteFromUser applies a trader entry. Both sides are always written: a mid
// entry sets bid = ask = v.Mid() and locks as Mid, a two-way entry locks Both.
// Inverted two-way input is swapped.
func (f Field) WriteFromUser(v TwoWay, wasMid bool, view ViewMode, at time.Time) Field {
	next := f
	if wasMid {
		next.Value = v.Collapsed()
		next.Override = OverrideMid
	} else {
		next.Value = v.Normalized()
		next.Override = OverrideBoth
	}
	next.HasValue = true
	next.Source = SourceUser
	next.View = view
	next.Invalidated = false
	next.Timestamp = at.UTC()
	next.recordSpread()
	next.Version = f.Version + 1
	return next
}

// WriteSolved applies a back-solved rate as a new mid, rebuilding bid/ask as
// mid ∓ spread/2. The field is locked against the feed like a user entry but
// sourced to the solver; the view mode is kept.
func (f Field) WriteSolved(mid, spread float64, at time.Time) (Field, error) {
	v := AroundMid(mid, spread)
	if v.Inverted() {
		return f, fmt.Errorf("WriteSolved: bid %g > ask %g (spread %g): %w", v.Bid, v.Ask, spread, ErrSpreadInversion)
	}
	next := f
	next.Value = v
	next.HasValue = true
	next.Source = SourceSolver
	if spread == 0 {
		next.Override = OverrideMid
	} else {
		next.Override = OverrideBoth
	}
	next.Invalidated = false
	next.Timestamp = at.UTC()
	next.recordSpread()
	next.Version = f.Version + 1
	return next, nil
}

// SetOverride changes only the override. Clearing it keeps the current value;
// the field simply becomes feed-writable again. Locking a solved value makes
// it the trader's own.
func (f Field) SetOverride(o Override) (Field, bool) {
	adopt := o != OverrideNone && f.Source == SourceSolver
	if f.Override == o && !adopt {
		return f, false
	}
	if adopt {
		f.Source = SourceUser
	}
	f.Override = o
	f.Version++
	return f, true
}

// SetViewMode changes only the view mode.
func (f Field) SetViewMode(v ViewMode) (Field, bool) {
	if f.View == v {
		return f, false
	}
	f.View = v
	f.Version++
	return f, true
}

// SetStale flips the staleness flag reported by the feed.
func (f Field) SetStale(stale bool) (Field, bool) {
	if f.Stale == stale {
		return f, false
	}
	f.Stale = stale
	f.Version++
	return f, true
}

// Invalidate marks the value for re-derivation without discarding it.
func (f Field) Invalidate() (Field, bool) {
	if f.Invalidated {
		return f, false
	}
	f.Invalidated = true
	f.Version++
	return f, true
}

func (f *Field) recordSpread() {
	if s := f.Value.Spread(); s > 0 {
		f.RecordedSpread = s
		f.HasRecordedSpread = true
	}
}

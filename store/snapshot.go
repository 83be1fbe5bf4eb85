package store

import (
	"fmt"
	"sort"

	"github.com/meenmo/fxlib/market"
)

// LegRates holds the domestic and foreign rate fields of one leg.
type LegRates struct {
	Rd market.Field
	Rf market.Field
}

// Snapshot is an immutable view of a store after a committed mutation.
//
// Fields are held by value, so a snapshot handed to a subscriber or a curve
// calculation can never observe a later write.
type Snapshot struct {
	pair market.Pair
	seq  uint64
	spot market.Field
	legs map[market.LegID]LegRates
}

func emptySnapshot(pair market.Pair) *Snapshot {
	return &Snapshot{pair: pair, legs: make(map[market.LegID]LegRates)}
}

// Pair is the currency pair the snapshot belongs to.
func (s *Snapshot) Pair() market.Pair { return s.pair }

// Seq is the commit sequence number; it increases by one per committed batch.
func (s *Snapshot) Seq() uint64 { return s.seq }

// Spot returns the spot field.
func (s *Snapshot) Spot() market.Field { return s.spot }

// Leg returns the rate fields of a leg.
func (s *Snapshot) Leg(id market.LegID) (LegRates, bool) {
	lr, ok := s.legs[id]
	return lr, ok
}

// Legs returns the known leg identifiers in sorted order.
func (s *Snapshot) Legs() []market.LegID {
	ids := make([]market.LegID, 0, len(s.legs))
	for id := range s.legs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Field returns the field addressed by key. Unknown legs report false.
func (s *Snapshot) Field(key market.FieldKey) (market.Field, bool) {
	switch key.Name {
	case market.FieldSpot:
		return s.spot, true
	case market.FieldRd:
		lr, ok := s.legs[key.Leg]
		return lr.Rd, ok
	case market.FieldRf:
		lr, ok := s.legs[key.Leg]
		return lr.Rf, ok
	default:
		return market.Field{}, false
	}
}

func (s *Snapshot) clone() *Snapshot {
	legs := make(map[market.LegID]LegRates, len(s.legs))
	for id, lr := range s.legs {
		legs[id] = lr
	}
	return &Snapshot{pair: s.pair, seq: s.seq, spot: s.spot, legs: legs}
}

// field returns the current value for key, zero for a leg not yet touched.
func (s *Snapshot) field(key market.FieldKey) market.Field {
	f, _ := s.Field(key)
	return f
}

func (s *Snapshot) put(key market.FieldKey, f market.Field) {
	switch key.Name {
	case market.FieldSpot:
		s.spot = f
	case market.FieldRd:
		lr := s.legs[key.Leg]
		lr.Rd = f
		s.legs[key.Leg] = lr
	case market.FieldRf:
		lr := s.legs[key.Leg]
		lr.Rf = f
		s.legs[key.Leg] = lr
	}
}

// verify checks bid <= ask on every populated field.
func (s *Snapshot) verify() error {
	check := func(key market.FieldKey, f market.Field) error {
		if f.HasValue && f.Value.Inverted() {
			return fmt.Errorf("snapshot %d: %s has bid %g > ask %g: %w", s.seq, key, f.Value.Bid, f.Value.Ask, market.ErrInconsistentSnapshot)
		}
		return nil
	}
	if err := check(market.SpotKey(), s.spot); err != nil {
		return err
	}
	for id, lr := range s.legs {
		if err := check(market.RdKey(id), lr.Rd); err != nil {
			return err
		}
		if err := check(market.RfKey(id), lr.Rf); err != nil {
			return err
		}
	}
	return nil
}

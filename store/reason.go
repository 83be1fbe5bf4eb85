package store

import (
	"sort"

	"github.com/meenmo/fxlib/market"
)

// Origin identifies who issued a mutation.
type Origin int

const (
	OriginFeed Origin = iota
	OriginUser
	OriginSolver
	OriginSystem
)

func (o Origin) String() string {
	switch o {
	case OriginFeed:
		return "feed"
	case OriginUser:
		return "user"
	case OriginSolver:
		return "solver"
	default:
		return "system"
	}
}

// ChangeSet is a bit set of the quantity kinds touched by a commit.
type ChangeSet uint8

const (
	ChangeSpot ChangeSet = 1 << iota
	ChangeRates
)

// Kind classifies a commit for subscribers.
type Kind int

const (
	KindNone Kind = iota
	KindSpot
	KindRates
	KindMixed
)

func (k Kind) String() string {
	switch k {
	case KindSpot:
		return "spot"
	case KindRates:
		return "rates"
	case KindMixed:
		return "mixed"
	default:
		return "none"
	}
}

// Reason describes one committed batch. Legs lists every leg whose rates
// changed or which was removed, sorted; it is empty for spot-only commits.
type Reason struct {
	Seq          uint64
	Origin       Origin
	Changes      ChangeSet
	Legs         []market.LegID
	Fields       []market.FieldKey
	PairSwitched bool
}

// Kind reduces Changes to spot-only, rate-only or mixed.
func (r Reason) Kind() Kind {
	switch {
	case r.Changes&ChangeSpot != 0 && r.Changes&ChangeRates != 0:
		return KindMixed
	case r.Changes&ChangeSpot != 0:
		return KindSpot
	case r.Changes&ChangeRates != 0:
		return KindRates
	default:
		return KindNone
	}
}

// Touches reports whether a subscriber pricing leg must recompute.
// Any spot change touches every leg.
func (r Reason) Touches(leg market.LegID) bool {
	if r.Changes&ChangeSpot != 0 {
		return true
	}
	i := sort.Search(len(r.Legs), func(i int) bool { return r.Legs[i] >= leg })
	return i < len(r.Legs) && r.Legs[i] == leg
}

func buildReason(seq uint64, origin Origin, touched map[market.FieldKey]struct{}, removed map[market.LegID]struct{}, pairSwitched bool) Reason {
	r := Reason{Seq: seq, Origin: origin, PairSwitched: pairSwitched}
	legSet := make(map[market.LegID]struct{})
	for key := range touched {
		r.Fields = append(r.Fields, key)
		if key.Name.IsRate() {
			r.Changes |= ChangeRates
			legSet[key.Leg] = struct{}{}
		} else {
			r.Changes |= ChangeSpot
		}
	}
	for leg := range removed {
		r.Changes |= ChangeRates
		legSet[leg] = struct{}{}
	}
	if pairSwitched {
		r.Changes |= ChangeSpot
	}
	for leg := range legSet {
		r.Legs = append(r.Legs, leg)
	}
	sort.Slice(r.Legs, func(i, j int) bool { return r.Legs[i] < r.Legs[j] })
	sort.Slice(r.Fields, func(i, j int) bool {
		if r.Fields[i].Leg != r.Fields[j].Leg {
			return r.Fields[i].Leg < r.Fields[j].Leg
		}
		return r.Fields[i].Name < r.Fields[j].Name
	})
	return r
}

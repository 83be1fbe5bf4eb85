package market

// Source records who last successfully wrote a field's value.
type Source int

const (
	SourceNone Source = iota
	SourceFeed
	SourceUser
	// SourceSolver marks a rate written back by a back-solve.
	SourceSolver
)

func (s Source) String() string {
	switch s {
	case SourceFeed:
		return "FEED"
	case SourceUser:
		return "USER"
	case SourceSolver:
		return "SOLVER"
	default:
		return "NONE"
	}
}

// ViewMode is how a field should be interpreted and displayed.
type ViewMode int

const (
	ViewFollowFeed ViewMode = iota
	// ViewMid treats the field as a single number (bid = ask).
	ViewMid
	ViewTwoWay
)

func (v ViewMode) String() string {
	switch v {
	case ViewMid:
		return "MID"
	case ViewTwoWay:
		return "TWO_WAY"
	default:
		return "FOLLOW_FEED"
	}
}

// Override is which side(s) of a field are locked against feed writes.
type Override int

const (
	// OverrideNone lets the feed update both sides.
	OverrideNone Override = iota
	// OverrideMid locks both sides together at a single value.
	OverrideMid
	// OverrideBid locks the bid; the ask stays feed-writable.
	OverrideBid
	// OverrideAsk locks the ask; the bid stays feed-writable.
	OverrideAsk
	// OverrideBoth locks both sides independently.
	OverrideBoth
)

func (o Override) String() string {
	switch o {
	case OverrideMid:
		return "MID"
	case OverrideBid:
		return "BID"
	case OverrideAsk:
		return "ASK"
	case OverrideBoth:
		return "BOTH"
	default:
		return "NONE"
	}
}

// Side is one side of a two-way quote.
type Side int

const (
	SideBid Side = iota
	SideAsk
)

// Locks reports whether the override protects side s from feed writes.
//
//	override | bid    | ask
//	NONE     | feed   | feed
//	MID      | locked | locked
//	BID      | locked | feed
//	ASK      | feed   | locked
//	BOTH     | locked | locked
func (o Override) Locks(s Side) bool {
	switch o {
	case OverrideMid, OverrideBoth:
		return true
	case OverrideBid:
		return s == SideBid
	case OverrideAsk:
		return s == SideAsk
	default:
		return false
	}
}

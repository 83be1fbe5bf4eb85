package market

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TwoWay is an immutable bid/ask pair for a scalar market quantity.
//
// It performs no validation; callers decide whether Bid > Ask is an error.
type TwoWay struct {
	Bid float64
	Ask float64
}

// NewTwoWay builds a two-way value as given.
func NewTwoWay(bid, ask float64) TwoWay {
	return TwoWay{Bid: bid, Ask: ask}
}

// MidOnly builds a collapsed two-way with bid = ask = v.
func MidOnly(v float64) TwoWay {
	return TwoWay{Bid: v, Ask: v}
}

// Mid is the arithmetic mean of bid and ask.
func (tw TwoWay) Mid() float64 {
	return (tw.Bid + tw.Ask) / 2
}

// Spread is ask minus bid.
func (tw TwoWay) Spread() float64 {
	return tw.Ask - tw.Bid
}

// Inverted reports bid > ask.
func (tw TwoWay) Inverted() bool {
	return tw.Bid > tw.Ask
}

// Normalized swaps the sides of an inverted value.
func (tw TwoWay) Normalized() TwoWay {
	if tw.Inverted() {
		return TwoWay{Bid: tw.Ask, Ask: tw.Bid}
	}
	return tw
}

// Collapsed returns the value with both sides set to the mid.
func (tw TwoWay) Collapsed() TwoWay {
	return MidOnly(tw.Mid())
}

// AroundMid rebuilds a two-way as mid ∓ spread/2.
func AroundMid(mid, spread float64) TwoWay {
	return TwoWay{Bid: mid - spread/2, Ask: mid + spread/2}
}

func (tw TwoWay) String() string {
	if tw.Bid == tw.Ask {
		return fmt.Sprintf("%g", tw.Bid)
	}
	return fmt.Sprintf("%g/%g", tw.Bid, tw.Ask)
}

// ParseTwoWay parses trader or feed text such as "11.19/11.21" or "0.0325".
//
// A single number is read as a mid (bid = ask). The second return value reports
// whether the text was a single number. Inverted input is returned as written.
func ParseTwoWay(s string) (TwoWay, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TwoWay{}, false, fmt.Errorf("ParseTwoWay: empty quote: %w", ErrInvalidInput)
	}
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		v, err := parseNumber(parts[0])
		if err != nil {
			return TwoWay{}, false, err
		}
		return MidOnly(v), true, nil
	case 2:
		bid, err := parseNumber(parts[0])
		if err != nil {
			return TwoWay{}, false, err
		}
		ask, err := parseNumber(parts[1])
		if err != nil {
			return TwoWay{}, false, err
		}
		return TwoWay{Bid: bid, Ask: ask}, false, nil
	default:
		return TwoWay{}, false, fmt.Errorf("ParseTwoWay: %q has %d sides: %w", s, len(parts), ErrInvalidInput)
	}
}

func parseNumber(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("ParseTwoWay: %q: %v: %w", s, err, ErrInvalidInput)
	}
	return d.InexactFloat64(), nil
}

package market

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Pair is a six-letter currency pair, e.g. EURSEK (base EUR is foreign, quote SEK is domestic).
type Pair string

// ParsePair validates and upper-cases a pair6 code.
func ParsePair(s string) (Pair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 6 {
		return "", fmt.Errorf("ParsePair: %q is not a six-letter pair: %w", s, ErrInvalidInput)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("ParsePair: %q is not a six-letter pair: %w", s, ErrInvalidInput)
		}
	}
	return Pair(s), nil
}

// MustPair is ParsePair for constants; it panics on a malformed code.
func MustPair(s string) Pair {
	p, err := ParsePair(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Base is the foreign currency.
func (p Pair) Base() string {
	if len(p) != 6 {
		return ""
	}
	return string(p[:3])
}

// Quote is the domestic currency.
func (p Pair) Quote() string {
	if len(p) != 6 {
		return ""
	}
	return string(p[3:])
}

// LegID identifies one option within a multi-option request, independent of its display position.
type LegID string

// NewLegID mints a fresh leg identifier.
func NewLegID() LegID {
	return LegID(uuid.NewString())
}

// FieldName names a quantity held by the store.
type FieldName string

const (
	FieldSpot FieldName = "SPOT"
	FieldRd   FieldName = "RD"
	FieldRf   FieldName = "RF"
)

// IsRate reports whether the field is a per-leg interest rate.
func (n FieldName) IsRate() bool {
	return n == FieldRd || n == FieldRf
}

// FieldKey addresses a field within a store. Spot carries an empty Leg.
type FieldKey struct {
	Leg  LegID
	Name FieldName
}

// SpotKey is the key of the pair's spot field.
func SpotKey() FieldKey {
	return FieldKey{Name: FieldSpot}
}

// RdKey is the key of a leg's domestic rate.
func RdKey(leg LegID) FieldKey {
	return FieldKey{Leg: leg, Name: FieldRd}
}

// RfKey is the key of a leg's foreign rate.
func RfKey(leg LegID) FieldKey {
	return FieldKey{Leg: leg, Name: FieldRf}
}

// Validate checks that the key is addressable.
func (k FieldKey) Validate() error {
	switch k.Name {
	case FieldSpot:
		if k.Leg != "" {
			return fmt.Errorf("FieldKey: spot is not per leg (leg %q): %w", k.Leg, ErrInvalidInput)
		}
	case FieldRd, FieldRf:
		if k.Leg == "" {
			return fmt.Errorf("FieldKey: %s requires a leg: %w", k.Name, ErrInvalidInput)
		}
	default:
		return fmt.Errorf("FieldKey: unknown field %q: %w", k.Name, ErrInvalidInput)
	}
	return nil
}

func (k FieldKey) String() string {
	if k.Leg == "" {
		return string(k.Name)
	}
	return string(k.Leg) + "/" + string(k.Name)
}

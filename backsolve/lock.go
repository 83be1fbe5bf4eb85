package backsolve

import (
	"fmt"
	"strings"

	"github.com/meenmo/fxlib/market"
)

// LockMode is the desk setting for which rate a back-solve keeps fixed.
type LockMode int

const (
	HoldRd LockMode = iota
	HoldRf
	// Split currently behaves exactly like HoldRd. A proportional split of the
	// log discount factors is not defined yet.
	Split
)

func (m LockMode) String() string {
	switch m {
	case HoldRf:
		return "HOLD_RF"
	case Split:
		return "SPLIT"
	default:
		return "HOLD_RD"
	}
}

// ParseLockMode accepts HOLD_RD, HOLD_RF or SPLIT (case-insensitive).
func ParseLockMode(s string) (LockMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HOLD_RD", "HOLDRD", "RD":
		return HoldRd, nil
	case "HOLD_RF", "HOLDRF", "RF":
		return HoldRf, nil
	case "SPLIT":
		return Split, nil
	default:
		return HoldRd, fmt.Errorf("ParseLockMode: unknown lock mode %q: %w", s, market.ErrInvalidInput)
	}
}

// ResolveLock returns the rate to hold. If exactly one of rd and rf carries a
// trader override, that one is held; otherwise mode decides. A previous
// back-solve result is not a trader override.
func ResolveLock(rd, rf market.Field, mode LockMode) market.FieldName {
	switch {
	case rd.IsUserOverride() && !rf.IsUserOverride():
		return market.FieldRd
	case rf.IsUserOverride() && !rd.IsUserOverride():
		return market.FieldRf
	}
	if mode == HoldRf {
		return market.FieldRf
	}
	return market.FieldRd
}

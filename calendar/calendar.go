// Package calendar provides per-currency business-day calendars and FX value
// date rules. Holiday data is not bundled; callers load it with SetHolidays.
package calendar

import (
	"strings"
	"sync"
	"time"

	"github.com/meenmo/fxlib/utils"
)

// CalendarID identifies a holiday calendar.
type CalendarID string

const (
	TARGET CalendarID = "TARGET"
	JPN    CalendarID = "JPN"
	USD    CalendarID = "USD"
	KRW    CalendarID = "KRW"
)

var (
	mu       sync.RWMutex
	holidays = map[CalendarID]map[string]struct{}{}
)

// ForCurrency maps an ISO currency code to its settlement calendar.
// Currencies without a dedicated id use the code itself.
func ForCurrency(ccy string) CalendarID {
	switch ccy = strings.ToUpper(ccy); ccy {
	case "EUR":
		return TARGET
	case "JPY":
		return JPN
	default:
		return CalendarID(ccy)
	}
}

// SetHolidays replaces the holiday set of cal.
func SetHolidays(cal CalendarID, days []time.Time) {
	set := make(map[string]struct{}, len(days))
	for _, d := range days {
		set[d.Format(utils.DateLayout)] = struct{}{}
	}
	mu.Lock()
	holidays[cal] = set
	mu.Unlock()
}

func isHoliday(cal CalendarID, t time.Time) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := holidays[cal][t.Format(utils.DateLayout)]
	return ok
}

// IsBusinessDay checks weekends and the holiday set.
func IsBusinessDay(cal CalendarID, t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !isHoliday(cal, t)
}

// IsJointBusinessDay reports whether t is a business day on every calendar.
func IsJointBusinessDay(t time.Time, cals ...CalendarID) bool {
	for _, c := range cals {
		if !IsBusinessDay(c, t) {
			return false
		}
	}
	return true
}

// AdjustFollowing rolls forward to the next joint business day.
func AdjustFollowing(t time.Time, cals ...CalendarID) time.Time {
	for !IsJointBusinessDay(t, cals...) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// AddJointBusinessDays advances n days that are business days on every
// calendar (n can be negative).
func AddJointBusinessDays(t time.Time, n int, cals ...CalendarID) time.Time {
	step := 1
	if n < 0 {
		step = -1
	}
	for n != 0 {
		t = t.AddDate(0, 0, step)
		if IsJointBusinessDay(t, cals...) {
			n -= step
		}
	}
	return t
}

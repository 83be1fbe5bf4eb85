package calendar

import (
	"fmt"
	"time"

	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/utils"
)

// T+1 pairs; everything else settles T+2.
var tPlusOne = map[market.Pair]struct{}{
	"USDCAD": {},
	"USDTRY": {},
	"USDRUB": {},
	"USDPHP": {},
}

// SpotLag is the market-standard number of business days to spot.
func SpotLag(pair market.Pair) int {
	if _, ok := tPlusOne[pair]; ok {
		return 1
	}
	return 2
}

// SettlementDates are the dates a leg settles on: spot for today, and the
// delivery date of the expiry.
type SettlementDates struct {
	SpotDate   time.Time
	Settlement time.Time
}

// DateSource derives spot and delivery dates on the joint calendar of the
// pair's two currencies.
type DateSource struct {
	lags map[market.Pair]int
}

// NewDateSource returns a date source; overrides replace SpotLag per pair.
func NewDateSource(overrides map[market.Pair]int) *DateSource {
	lags := make(map[market.Pair]int, len(overrides))
	for p, n := range overrides {
		lags[p] = n
	}
	return &DateSource{lags: lags}
}

func (d *DateSource) lag(pair market.Pair) int {
	if n, ok := d.lags[pair]; ok {
		return n
	}
	return SpotLag(pair)
}

// Dates returns today's spot date and the delivery date of expiry, each spot
// lag joint business days forward. An expiry on a non-business day is rolled
// to the next joint business day first.
func (d *DateSource) Dates(pair market.Pair, today, expiry time.Time) (SettlementDates, error) {
	if today.IsZero() || expiry.IsZero() {
		return SettlementDates{}, fmt.Errorf("Dates: today and expiry are required: %w", market.ErrInvalidInput)
	}
	if _, err := market.ParsePair(string(pair)); err != nil {
		return SettlementDates{}, err
	}
	cals := []CalendarID{ForCurrency(pair.Base()), ForCurrency(pair.Quote())}
	n := d.lag(pair)
	return SettlementDates{
		SpotDate:   AddJointBusinessDays(utils.DateOnly(today), n, cals...),
		Settlement: AddJointBusinessDays(AdjustFollowing(utils.DateOnly(expiry), cals...), n, cals...),
	}, nil
}

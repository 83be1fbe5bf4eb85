package utils

import (
	"strings"
	"time"
)

// YearFraction computes the year fraction between two dates. Money-market
// windows only need ACT/360 and ACT/365F; any other convention reads as ACT/365F.
func YearFraction(start, end time.Time, convention string) float64 {
	if convention == "ACT/360" {
		return Days(start, end) / 360.0
	}
	return Days(start, end) / 365.0
}

// act365Currencies quote money-market deposits on an ACT/365F basis.
var act365Currencies = map[string]struct{}{
	"GBP": {},
	"AUD": {},
	"NZD": {},
	"CAD": {},
	"HKD": {},
	"SGD": {},
	"ZAR": {},
	"ILS": {},
}

// MoneyMarketDayCount returns the deposit day count for a currency.
// Currencies outside the ACT/365F table default to ACT/360.
func MoneyMarketDayCount(ccy string) string {
	if _, ok := act365Currencies[strings.ToUpper(ccy)]; ok {
		return "ACT/365F"
	}
	return "ACT/360"
}

// MoneyMarketYearFraction is YearFraction under the currency's money-market basis.
func MoneyMarketYearFraction(ccy string, start, end time.Time) float64 {
	return YearFraction(start, end, MoneyMarketDayCount(ccy))
}

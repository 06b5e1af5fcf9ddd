package util

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

// ParseInt64Default accepts the brokerage's numeric strings, which may carry a
// fractional part ("10.00000000") on quantity fields.
func ParseInt64Default(s string, def int64) int64 {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d.IntPart()
	}
	return def
}

// ParseDecimalDefault parses a numeric string into a decimal.
func ParseDecimalDefault(s string, def decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return d
}

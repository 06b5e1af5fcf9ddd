package models

import "fmt"

// Country is the market a symbol trades on, using the brokerage's three-letter codes.
type Country string

const (
	KOR Country = "KOR"
	USA Country = "USA"
	CHN Country = "CHN"
	HKG Country = "HKG"
	JPN Country = "JPN"
	VNM Country = "VNM"
)

func ParseCountry(s string) (Country, error) {
	switch c := Country(s); c {
	case KOR, USA, CHN, HKG, JPN, VNM:
		return c, nil
	}
	return "", fmt.Errorf("unknown country %q", s)
}

// Domestic reports whether orders go through the domestic endpoints.
func (c Country) Domestic() bool { return c == KOR }

// Side uses the brokerage's SLL_BUY_DVSN_CD values.
type Side string

const (
	Sell Side = "01"
	Buy  Side = "02"
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// Category is a strategy family. Lower Priority wins when a symbol qualifies for several.
type Category string

const (
	Dividend Category = "dividend"
	Growth   Category = "growth"
	Box      Category = "box"
)

// Categories in priority order.
var Categories = []Category{Dividend, Growth, Box}

func (c Category) Priority() int {
	switch c {
	case Dividend:
		return 1
	case Growth:
		return 2
	case Box:
		return 3
	}
	return 99
}

func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case Dividend, Growth, Box:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

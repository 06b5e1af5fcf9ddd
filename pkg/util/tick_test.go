package util

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRefineKRXNearest(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1999.4", 1999},
		{"4998", 5000},
		{"12345", 12340}, // half-to-even
		{"49980", 50000},
		{"61234", 61200},
		{"612340", 612000},
	}
	for _, c := range cases {
		got := RefineKRX(decimal.RequireFromString(c.in), 0)
		if !got.Equal(decimal.NewFromInt(c.want)) {
			t.Fatalf("RefineKRX(%s, 0) = %s, want %d", c.in, got, c.want)
		}
	}
}

func TestRefineKRXStepUp(t *testing.T) {
	got := RefineKRX(decimal.NewFromInt(10000), 1)
	if !got.Equal(decimal.NewFromInt(10010)) {
		t.Fatalf("one tick up from 10000 = %s", got)
	}
	// crossing a band boundary switches to the wider tick
	got = RefineKRX(decimal.NewFromInt(1999), 2)
	if !got.Equal(decimal.NewFromInt(2005)) {
		t.Fatalf("two ticks up from 1999 = %s", got)
	}
	// fractional prices truncate before stepping
	got = RefineKRX(decimal.RequireFromString("10020.4"), 1)
	if !got.Equal(decimal.NewFromInt(10030)) {
		t.Fatalf("one tick up from 10020.4 = %s", got)
	}
}

func TestRefineKRXStepDown(t *testing.T) {
	got := RefineKRX(decimal.NewFromInt(2000), -1)
	if !got.Equal(decimal.NewFromInt(1999)) {
		t.Fatalf("one tick down from 2000 = %s", got)
	}
	got = RefineKRX(decimal.NewFromInt(50000), -1)
	if !got.Equal(decimal.NewFromInt(49950)) {
		t.Fatalf("one tick down from 50000 = %s", got)
	}
}

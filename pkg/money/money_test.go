package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"60", 6000},
		{"60.5", 6050},
		{"0.01", 1},
		{"100.00", 10000},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.in)
		if err != nil {
			t.Fatalf("ParseCents(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseCents(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseCentsRejectsPrecision(t *testing.T) {
	if _, err := ParseCents("1.005"); !errors.Is(err, ErrTooPrecise) {
		t.Fatalf("expected ErrTooPrecise, got %v", err)
	}
	if _, err := ParseCents("abc"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestToCentsRange(t *testing.T) {
	huge := decimal.New(1, 20)
	if _, err := ToCents(huge); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(6050); got != "60.50" {
		t.Fatalf("Format(6050) = %s", got)
	}
	if got := FromCents(4000).String(); got != "40" {
		t.Fatalf("FromCents(4000) = %s", got)
	}
}

package core

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyFromDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"50", 5000},
		{"-50.00", -5000},
		{"12.345", 1235},
		{"-12.345", -1235},
		{"0.004", 0},
	}
	for _, tc := range cases {
		got, err := MoneyFromDecimal(decimal.RequireFromString(tc.in))
		if err != nil || got.Cents != tc.want {
			t.Errorf("MoneyFromDecimal(%s) = %d (err=%v), want %d", tc.in, got.Cents, err, tc.want)
		}
	}
}

func TestMoneyFromDecimalRejectsOverflow(t *testing.T) {
	for _, in := range []string{
		"92233720368547758.08",
		"-92233720368547758.08",
		"-184467440737095517.16",
		"1e40",
	} {
		if _, err := MoneyFromDecimal(decimal.RequireFromString(in)); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("MoneyFromDecimal(%s) err = %v, want ErrInvalidAmount", in, err)
		}
	}
	m, err := MoneyFromDecimal(decimal.RequireFromString("92233720368547758.07"))
	if err != nil || m.Cents != math.MaxInt64 {
		t.Fatalf("largest amount = %d (err=%v)", m.Cents, err)
	}
}

func TestMoneyString(t *testing.T) {
	if got := (Money{Cents: -1234}).String(); got != "-12.34" {
		t.Fatalf("String() = %q", got)
	}
	if got := (Money{Cents: 5}).String(); got != "0.05" {
		t.Fatalf("String() = %q", got)
	}
}

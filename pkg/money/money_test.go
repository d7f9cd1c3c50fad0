package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToCents(t *testing.T) {
	cents, err := ToCents(decimal.RequireFromString("290.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cents != 29000 {
		t.Fatalf("expected 29000 cents, got %d", cents)
	}
	if _, err := ToCents(decimal.RequireFromString("1.005")); err == nil {
		t.Fatal("expected sub-cent precision to be rejected")
	}
}

func TestFromCents(t *testing.T) {
	if got := FromCents(12345).StringFixed(2); got != "123.45" {
		t.Fatalf("unexpected amount %s", got)
	}
}

func TestWithinEpsilon(t *testing.T) {
	eps := decimal.RequireFromString("0.01")
	if !WithinEpsilon(decimal.RequireFromString("290.00"), decimal.RequireFromString("290.01"), eps) {
		t.Fatal("expected one cent difference to be tolerated")
	}
	if WithinEpsilon(decimal.RequireFromString("290.00"), decimal.RequireFromString("290.02"), eps) {
		t.Fatal("expected two cent difference to be rejected")
	}
}

func TestNetOfCommission(t *testing.T) {
	cases := []struct {
		gross int64
		bps   int
		want  int64
	}{
		{gross: 20000, bps: 1000, want: 18000},
		{gross: 5000, bps: 0, want: 5000},
		{gross: 999, bps: 1500, want: 849},
		{gross: 1000, bps: 10000, want: 0},
	}
	for _, tc := range cases {
		if got := NetOfCommission(tc.gross, tc.bps); got != tc.want {
			t.Fatalf("NetOfCommission(%d, %d) = %d, want %d", tc.gross, tc.bps, got, tc.want)
		}
	}
}

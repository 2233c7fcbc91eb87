package report

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"daoledger/internal/core"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func payment(t *testing.T, sub, recipient, amount, denom, usd string, category core.RecipientCategory, paidAt time.Time) core.PaymentRecord {
	t.Helper()
	coin, err := core.ParseCoin(amount, denom)
	if err != nil {
		t.Fatal(err)
	}
	return core.PaymentRecord{
		ProposalID: 1,
		SubUnit:    core.SubUnit{Name: sub, Address: "osmo1" + sub},
		Network:    core.NetworkOsmosis,
		Recipient:  recipient,
		Category:   category,
		Amount:     coin,
		Adjusted:   coin.Adjusted(6),
		Symbol:     "OSMO",
		USDValue:   dec(t, usd),
		Kind:       core.KindBankSend,
		PaidAt:     paidAt,
	}
}

var (
	jan = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	feb = time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
)

func TestParseGroupBy(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "sub_unit", false},
		{"denom", "denom", false},
		{"sub_unit,month", "sub_unit,month", false},
		{" category , denom ", "category,denom", false},
		{"denom,denom,month", "denom,month", false},
		{"bogus", "", true},
		{"sub_unit,bogus", "", true},
	}
	for _, tt := range tests {
		got, err := ParseGroupBy(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownDimension) {
				t.Fatalf("%q: expected ErrUnknownDimension, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Fatalf("%q: got %q, want %q", tt.in, got.String(), tt.want)
		}
	}
}

func TestBuildSumsByDenom(t *testing.T) {
	records := []core.PaymentRecord{
		payment(t, "grants", "osmo1a", "100", "uosmo", "1", core.CategoryExternal, jan),
		payment(t, "grants", "osmo1b", "200", "uosmo", "2", core.CategoryCoreTeam, jan),
		payment(t, "grants", "osmo1c", "7", "uion", "3", core.CategoryExternal, jan),
	}

	rep := Build(records, GroupBy{DimDenom})
	if len(rep.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rep.Rows))
	}

	// Rows are sorted by key, uion before uosmo.
	if rep.Rows[0].Key.Denom != "uion" || rep.Rows[1].Key.Denom != "uosmo" {
		t.Fatalf("row order: %+v", rep.Rows)
	}

	uosmo := rep.Rows[1]
	if uosmo.Totals["uosmo"].String() != "300" {
		t.Fatalf("uosmo total = %s, want 300", uosmo.Totals["uosmo"])
	}
	if uosmo.Count != 2 || uosmo.CoreTeamCount != 1 {
		t.Fatalf("counts: %+v", uosmo)
	}
	if rep.Count != 3 || rep.TotalUSD.String() != "6" {
		t.Fatalf("report totals: count=%d usd=%s", rep.Count, rep.TotalUSD)
	}
}

func TestBuildMultiDimension(t *testing.T) {
	records := []core.PaymentRecord{
		payment(t, "grants", "osmo1a", "100", "uosmo", "1", core.CategoryExternal, jan),
		payment(t, "grants", "osmo1a", "100", "uosmo", "1", core.CategoryExternal, feb),
		payment(t, "ops", "osmo1a", "100", "uosmo", "1", core.CategoryExternal, jan),
	}

	rep := Build(records, GroupBy{DimSubUnit, DimMonth})
	if len(rep.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rep.Rows))
	}
	first := rep.Rows[0]
	if first.Key.SubUnit != "grants" || first.Key.Month != "2024-01" {
		t.Fatalf("first key: %+v", first.Key)
	}
	// Ungrouped dimensions stay empty in the key.
	if first.Key.Denom != "" || first.Key.Recipient != "" {
		t.Fatalf("key leaked ungrouped dims: %+v", first.Key)
	}
}

func TestBuildEmptyInput(t *testing.T) {
	rep := Build(nil, GroupBy{DimSubUnit})
	if len(rep.Rows) != 0 || rep.Count != 0 {
		t.Fatalf("expected empty report, got %+v", rep)
	}
	if !rep.TotalUSD.IsZero() {
		t.Fatalf("total usd = %s", rep.TotalUSD)
	}
}

// Aggregating two halves of a set must produce the same totals as
// aggregating the whole set.
func TestBuildAssociative(t *testing.T) {
	all := []core.PaymentRecord{
		payment(t, "grants", "osmo1a", "10", "uosmo", "1", core.CategoryExternal, jan),
		payment(t, "grants", "osmo1b", "20", "uosmo", "2", core.CategoryExternal, jan),
		payment(t, "grants", "osmo1c", "30", "uosmo", "4", core.CategoryExternal, jan),
		payment(t, "grants", "osmo1d", "40", "uosmo", "8", core.CategoryExternal, jan),
	}

	whole := Build(all, GroupBy{DimSubUnit})
	left := Build(all[:2], GroupBy{DimSubUnit})
	right := Build(all[2:], GroupBy{DimSubUnit})

	if len(whole.Rows) != 1 || len(left.Rows) != 1 || len(right.Rows) != 1 {
		t.Fatalf("unexpected row counts")
	}
	sum := left.Rows[0].Totals["uosmo"].Add(right.Rows[0].Totals["uosmo"])
	if !sum.Equal(whole.Rows[0].Totals["uosmo"]) {
		t.Fatalf("%s + %s != %s", left.Rows[0].Totals["uosmo"], right.Rows[0].Totals["uosmo"], whole.Rows[0].Totals["uosmo"])
	}
	if left.Count+right.Count != whole.Count {
		t.Fatalf("count mismatch")
	}
	if !left.TotalUSD.Add(right.TotalUSD).Equal(whole.TotalUSD) {
		t.Fatalf("usd mismatch")
	}
}

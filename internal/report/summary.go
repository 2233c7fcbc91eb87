package report

import (
	"github.com/shopspring/decimal"

	"daoledger/internal/core"
)

// RecipientStat is the "most paid address" insight.
type RecipientStat struct {
	Address  string          `json:"address"`
	Count    int             `json:"count"`
	TotalUSD decimal.Decimal `json:"total_usd"`
}

// Summary is the headline figures over a payment record set.
type Summary struct {
	TotalPayments    int                        `json:"total_payments"`
	TotalsByDenom    map[string]decimal.Decimal `json:"totals_by_denom"`
	TotalUSD         decimal.Decimal            `json:"total_usd"`
	CoreTeamPayments int                        `json:"core_team_payments"`
	CoreTeamUSDShare decimal.Decimal            `json:"core_team_usd_share"` // percent
	SubUnits         int                        `json:"sub_units"`
	TopRecipient     *RecipientStat             `json:"top_recipient,omitempty"`
	LargestUSD       *core.PaymentRecord        `json:"largest_usd,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// Summarize computes headline statistics. Empty input yields zero values,
// not an error.
func Summarize(records []core.PaymentRecord) Summary {
	s := Summary{
		TotalsByDenom:    make(map[string]decimal.Decimal),
		TotalUSD:         decimal.Zero,
		CoreTeamUSDShare: decimal.Zero,
	}

	subUnits := make(map[string]struct{})
	byRecipient := make(map[string]*RecipientStat)
	coreTeamUSD := decimal.Zero

	for i, rec := range records {
		s.TotalPayments++
		s.TotalsByDenom[rec.Amount.Denom] = s.TotalsByDenom[rec.Amount.Denom].Add(rec.Amount.Amount)
		s.TotalUSD = s.TotalUSD.Add(rec.USDValue)
		subUnits[rec.SubUnit.Address] = struct{}{}

		if rec.Category == core.CategoryCoreTeam {
			s.CoreTeamPayments++
			coreTeamUSD = coreTeamUSD.Add(rec.USDValue)
		}

		stat, ok := byRecipient[rec.Recipient]
		if !ok {
			stat = &RecipientStat{Address: rec.Recipient, TotalUSD: decimal.Zero}
			byRecipient[rec.Recipient] = stat
		}
		stat.Count++
		stat.TotalUSD = stat.TotalUSD.Add(rec.USDValue)

		if s.LargestUSD == nil || rec.USDValue.GreaterThan(s.LargestUSD.USDValue) {
			s.LargestUSD = &records[i]
		}
	}

	s.SubUnits = len(subUnits)
	if s.TotalUSD.IsPositive() {
		s.CoreTeamUSDShare = coreTeamUSD.Div(s.TotalUSD).Mul(hundred).Round(2)
	}

	for _, stat := range byRecipient {
		if s.TopRecipient == nil ||
			stat.Count > s.TopRecipient.Count ||
			(stat.Count == s.TopRecipient.Count && stat.Address < s.TopRecipient.Address) {
			s.TopRecipient = stat
		}
	}

	return s
}

// Amount bands used for the size-distribution breakdown, largest first.
var amountBands = []struct {
	Name string
	Min  decimal.Decimal
}{
	{"very_large_100k_plus", decimal.NewFromInt(100_000)},
	{"large_50k_100k", decimal.NewFromInt(50_000)},
	{"medium_10k_50k", decimal.NewFromInt(10_000)},
	{"small_1k_10k", decimal.NewFromInt(1_000)},
	{"minor_100_1k", decimal.NewFromInt(100)},
}

const microBand = "micro_under_100"

// AmountBand buckets an adjusted amount into a named size range.
func AmountBand(adjusted decimal.Decimal) string {
	for _, band := range amountBands {
		if adjusted.GreaterThanOrEqual(band.Min) {
			return band.Name
		}
	}
	return microBand
}

// BandRow is one line of the size-distribution breakdown.
type BandRow struct {
	Band     string          `json:"band"`
	Count    int             `json:"count"`
	TotalUSD decimal.Decimal `json:"total_usd"`
	SubUnits int             `json:"sub_units"`
}

// SizeDistribution buckets records by adjusted amount, ordered from the
// largest band down.
func SizeDistribution(records []core.PaymentRecord) []BandRow {
	type acc struct {
		count    int
		usd      decimal.Decimal
		subUnits map[string]struct{}
	}
	byBand := make(map[string]*acc)
	for _, rec := range records {
		band := AmountBand(rec.Adjusted)
		a, ok := byBand[band]
		if !ok {
			a = &acc{usd: decimal.Zero, subUnits: make(map[string]struct{})}
			byBand[band] = a
		}
		a.count++
		a.usd = a.usd.Add(rec.USDValue)
		a.subUnits[rec.SubUnit.Address] = struct{}{}
	}

	var rows []BandRow
	for _, band := range amountBands {
		if a, ok := byBand[band.Name]; ok {
			rows = append(rows, BandRow{Band: band.Name, Count: a.count, TotalUSD: a.usd, SubUnits: len(a.subUnits)})
		}
	}
	if a, ok := byBand[microBand]; ok {
		rows = append(rows, BandRow{Band: microBand, Count: a.count, TotalUSD: a.usd, SubUnits: len(a.subUnits)})
	}
	return rows
}

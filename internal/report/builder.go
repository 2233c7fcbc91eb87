// Package report rolls extracted payment records up into tabular
// accounting reports: grouped sums and counts keyed by sub-unit, recipient
// category, calendar month, denomination or recipient.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"daoledger/internal/core"
)

// Grouping dimensions. A GroupBy is any combination of these.
const (
	DimSubUnit   Dimension = "sub_unit"
	DimCategory  Dimension = "category"
	DimMonth     Dimension = "month"
	DimDenom     Dimension = "denom"
	DimRecipient Dimension = "recipient"
)

type Dimension string

type GroupBy []Dimension

var ErrUnknownDimension = errors.New("unknown grouping dimension")

var dimensions = map[Dimension]struct{}{
	DimSubUnit:   {},
	DimCategory:  {},
	DimMonth:     {},
	DimDenom:     {},
	DimRecipient: {},
}

// ParseGroupBy parses a comma-separated dimension list ("sub_unit,month").
// An empty string defaults to grouping by sub-unit.
func ParseGroupBy(s string) (GroupBy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return GroupBy{DimSubUnit}, nil
	}
	var by GroupBy
	seen := make(map[Dimension]struct{})
	for _, part := range strings.Split(s, ",") {
		d := Dimension(strings.TrimSpace(part))
		if _, ok := dimensions[d]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, part)
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		by = append(by, d)
	}
	return by, nil
}

func (g GroupBy) String() string {
	parts := make([]string, len(g))
	for i, d := range g {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

// Key identifies one report row; only the grouped dimensions are set.
type Key struct {
	SubUnit   string `json:"sub_unit,omitempty"`
	Category  string `json:"category,omitempty"`
	Month     string `json:"month,omitempty"`
	Denom     string `json:"denom,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// Row is one line of a report: a grouping key with its aggregated metrics.
// Totals holds raw base-unit sums per denomination; AdjustedTotals holds
// decimal-adjusted sums per display symbol.
type Row struct {
	Key            Key                        `json:"key"`
	Totals         map[string]decimal.Decimal `json:"totals"`
	AdjustedTotals map[string]decimal.Decimal `json:"adjusted_totals"`
	TotalUSD       decimal.Decimal            `json:"total_usd"`
	Count          int                        `json:"count"`
	CoreTeamCount  int                        `json:"core_team_count"`
}

// Report is the aggregate view over a payment record set. It is recomputed
// on demand and never persisted.
type Report struct {
	GroupBy  GroupBy         `json:"group_by"`
	Rows     []Row           `json:"rows"`
	Count    int             `json:"count"`
	TotalUSD decimal.Decimal `json:"total_usd"`
}

// Build aggregates payment records along the given dimensions. It is a pure
// grouped sum/count: empty input yields an empty report, and aggregating
// two halves of a set produces rows that sum to the full set's.
func Build(records []core.PaymentRecord, by GroupBy) Report {
	rep := Report{GroupBy: by, TotalUSD: decimal.Zero}

	rows := make(map[Key]*Row)
	for _, rec := range records {
		key := keyFor(rec, by)
		row, ok := rows[key]
		if !ok {
			row = &Row{
				Key:            key,
				Totals:         make(map[string]decimal.Decimal),
				AdjustedTotals: make(map[string]decimal.Decimal),
				TotalUSD:       decimal.Zero,
			}
			rows[key] = row
		}

		row.Totals[rec.Amount.Denom] = row.Totals[rec.Amount.Denom].Add(rec.Amount.Amount)
		row.AdjustedTotals[rec.Symbol] = row.AdjustedTotals[rec.Symbol].Add(rec.Adjusted)
		row.TotalUSD = row.TotalUSD.Add(rec.USDValue)
		row.Count++
		if rec.Category == core.CategoryCoreTeam {
			row.CoreTeamCount++
		}

		rep.Count++
		rep.TotalUSD = rep.TotalUSD.Add(rec.USDValue)
	}

	rep.Rows = make([]Row, 0, len(rows))
	for _, row := range rows {
		rep.Rows = append(rep.Rows, *row)
	}
	sort.Slice(rep.Rows, func(i, j int) bool {
		return lessKey(rep.Rows[i].Key, rep.Rows[j].Key)
	})
	return rep
}

func keyFor(rec core.PaymentRecord, by GroupBy) Key {
	var key Key
	for _, d := range by {
		switch d {
		case DimSubUnit:
			key.SubUnit = rec.SubUnit.Label()
		case DimCategory:
			key.Category = string(rec.Category)
		case DimMonth:
			key.Month = rec.Month()
		case DimDenom:
			key.Denom = rec.Amount.Denom
		case DimRecipient:
			key.Recipient = rec.Recipient
		}
	}
	return key
}

func lessKey(a, b Key) bool {
	if a.SubUnit != b.SubUnit {
		return a.SubUnit < b.SubUnit
	}
	if a.Category != b.Category {
		return a.Category < b.Category
	}
	if a.Month != b.Month {
		return a.Month < b.Month
	}
	if a.Denom != b.Denom {
		return a.Denom < b.Denom
	}
	return a.Recipient < b.Recipient
}

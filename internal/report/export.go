package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"daoledger/internal/core"
)

// WriteCSV renders a report as CSV: one row per grouping key, totals
// flattened to "amount denom" pairs.
func WriteCSV(w io.Writer, rep Report) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(rep.GroupBy)+4)
	for _, d := range rep.GroupBy {
		header = append(header, string(d))
	}
	header = append(header, "count", "core_team_count", "total_usd", "totals")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range rep.Rows {
		record := make([]string, 0, len(header))
		for _, d := range rep.GroupBy {
			record = append(record, KeyField(row.Key, d))
		}
		record = append(record,
			fmt.Sprintf("%d", row.Count),
			fmt.Sprintf("%d", row.CoreTeamCount),
			row.TotalUSD.StringFixed(2),
			flattenTotals(row.Totals),
		)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WritePaymentsCSV renders the detailed payment list as CSV.
func WritePaymentsCSV(w io.Writer, records []core.PaymentRecord) error {
	cw := csv.NewWriter(w)

	header := []string{
		"paid_at", "proposal_id", "proposal_title", "sub_unit", "recipient",
		"category", "amount", "denom", "adjusted", "symbol", "usd_value",
		"message_kind",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range records {
		paidAt := ""
		if !rec.PaidAt.IsZero() {
			paidAt = rec.PaidAt.UTC().Format("2006-01-02")
		}
		row := []string{
			paidAt,
			fmt.Sprintf("%d", rec.ProposalID),
			rec.ProposalTitle,
			rec.SubUnit.Label(),
			rec.Recipient,
			string(rec.Category),
			rec.Amount.Amount.String(),
			rec.Amount.Denom,
			rec.Adjusted.String(),
			rec.Symbol,
			rec.USDValue.StringFixed(2),
			string(rec.Kind),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// KeyField returns the key's value along one grouping dimension.
func KeyField(key Key, d Dimension) string {
	switch d {
	case DimSubUnit:
		return key.SubUnit
	case DimCategory:
		return key.Category
	case DimMonth:
		return key.Month
	case DimDenom:
		return key.Denom
	case DimRecipient:
		return key.Recipient
	}
	return ""
}

// flattenTotals renders per-denom sums as "123 uosmo; 45 uion", denoms
// sorted for stable output.
func flattenTotals(totals map[string]decimal.Decimal) string {
	denoms := make([]string, 0, len(totals))
	for denom := range totals {
		denoms = append(denoms, denom)
	}
	sort.Strings(denoms)

	parts := make([]string, 0, len(denoms))
	for _, denom := range denoms {
		parts = append(parts, totals[denom].String()+" "+denom)
	}
	return strings.Join(parts, "; ")
}

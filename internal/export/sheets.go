// Package export pushes reports to Google Sheets for people who live in
// spreadsheets rather than APIs.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"daoledger/internal/core"
	"daoledger/internal/report"
)

type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// NewFromEnv creates a Sheets exporter using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Payments"), plus service account
// credentials via GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*SheetsExporter, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Payments"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// ExportPayments writes the detailed payment list to the configured sheet,
// replacing previous contents starting at A1.
func (e *SheetsExporter) ExportPayments(ctx context.Context, records []core.PaymentRecord) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	values := [][]any{{
		"Date", "Proposal", "Title", "Sub-unit", "Recipient", "Category",
		"Amount", "Denom", "Adjusted", "Symbol", "USD",
	}}
	for _, rec := range records {
		paidAt := ""
		if !rec.PaidAt.IsZero() {
			paidAt = rec.PaidAt.UTC().Format("2006-01-02")
		}
		values = append(values, []any{
			paidAt,
			rec.ProposalID,
			rec.ProposalTitle,
			rec.SubUnit.Label(),
			rec.Recipient,
			string(rec.Category),
			rec.Amount.Amount.String(),
			rec.Amount.Denom,
			rec.Adjusted.String(),
			rec.Symbol,
			rec.USDValue.StringFixed(2),
		})
	}

	if err := e.clearSheet(ctx); err != nil {
		return err
	}

	rng := fmt.Sprintf("%s!A1", e.sheetName)
	vr := &gsheet.ValueRange{Values: values}
	_, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update sheet %s: %w", e.sheetName, err)
	}

	slog.InfoContext(ctx, "Exported payments to Google Sheets",
		"sheet", e.sheetName,
		"rows", len(records))
	return nil
}

// ExportReport writes an aggregated report below a header row.
func (e *SheetsExporter) ExportReport(ctx context.Context, rep report.Report) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	header := make([]any, 0, len(rep.GroupBy)+3)
	for _, d := range rep.GroupBy {
		header = append(header, string(d))
	}
	header = append(header, "Count", "Core team", "Total USD")

	values := [][]any{header}
	for _, row := range rep.Rows {
		record := make([]any, 0, len(header))
		for _, d := range rep.GroupBy {
			record = append(record, report.KeyField(row.Key, d))
		}
		record = append(record, row.Count, row.CoreTeamCount, row.TotalUSD.StringFixed(2))
		values = append(values, record)
	}

	if err := e.clearSheet(ctx); err != nil {
		return err
	}

	rng := fmt.Sprintf("%s!A1", e.sheetName)
	vr := &gsheet.ValueRange{Values: values}
	_, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update sheet %s: %w", e.sheetName, err)
	}

	slog.InfoContext(ctx, "Exported report to Google Sheets",
		"sheet", e.sheetName,
		"rows", len(rep.Rows),
		"group_by", rep.GroupBy.String())
	return nil
}

func (e *SheetsExporter) clearSheet(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A:Z", e.sheetName)
	_, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet %s: %w", e.sheetName, err)
	}
	return nil
}

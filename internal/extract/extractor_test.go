package extract

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"daoledger/internal/core"
	"daoledger/internal/prices"
	"daoledger/internal/tokens"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

var testSub = core.SubUnit{Name: "grants", Address: "osmo1subunit"}

func proposal(t *testing.T, msgs ...string) core.ProposalRecord {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid([]byte(m)) {
			t.Fatalf("invalid test message: %s", m)
		}
		raw = append(raw, json.RawMessage(m))
	}
	return core.ProposalRecord{
		ID:          42,
		SubUnit:     testSub,
		Network:     core.NetworkOsmosis,
		Title:       "Test proposal",
		Messages:    raw,
		SubmittedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func plainExtractor(coreTeam ...string) *Extractor {
	return New(core.NewCoreTeamSet(coreTeam), nil, nil)
}

func TestExtractFlatBankSend(t *testing.T) {
	e := plainExtractor("core1abc")
	p := proposal(t, `{"bank_send": {"to": "core1abc", "amount": "1000", "denom": "uosmo"}}`)

	records, stats := e.Extract(p)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Recipient != "core1abc" {
		t.Fatalf("recipient = %q", rec.Recipient)
	}
	if rec.Category != core.CategoryCoreTeam {
		t.Fatalf("category = %q", rec.Category)
	}
	if rec.Amount.Amount.String() != "1000" || rec.Amount.Denom != "uosmo" {
		t.Fatalf("amount = %s %s", rec.Amount.Amount, rec.Amount.Denom)
	}
	if rec.Kind != core.KindBankSend {
		t.Fatalf("kind = %q", rec.Kind)
	}
	if stats.Payments != 1 || stats.Unrecognized != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestExtractCosmosBankMultiCoin(t *testing.T) {
	e := plainExtractor()
	p := proposal(t, `{"bank": {"send": {"to_address": "osmo1recipient", "amount": [
		{"denom": "uosmo", "amount": "500"},
		{"denom": "uion", "amount": "7"}
	]}}}`)

	records, stats := e.Extract(p)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Amount.Denom != "uosmo" || records[1].Amount.Denom != "uion" {
		t.Fatalf("denoms: %s, %s", records[0].Amount.Denom, records[1].Amount.Denom)
	}
	if records[0].Category != core.CategoryExternal {
		t.Fatalf("category = %q", records[0].Category)
	}
	if stats.Payments != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func wasmExecute(t *testing.T, contract string, innerMsg string) string {
	t.Helper()
	encoded := base64.StdEncoding.EncodeToString([]byte(innerMsg))
	return fmt.Sprintf(`{"wasm": {"execute": {"contract_addr": %q, "msg": %q, "funds": []}}}`, contract, encoded)
}

func TestExtractWasmCw20Transfer(t *testing.T) {
	e := plainExtractor()
	p := proposal(t, wasmExecute(t, "osmo1cw20token",
		`{"transfer": {"recipient": "osmo1recipient", "amount": "250000"}}`))

	records, _ := e.Extract(p)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Amount.Denom != "cw20:osmo1cw20token" {
		t.Fatalf("denom = %q", rec.Amount.Denom)
	}
	if rec.Kind != core.KindWasmExecute {
		t.Fatalf("kind = %q", rec.Kind)
	}
	if rec.ContractAddr != "osmo1cw20token" {
		t.Fatalf("contract = %q", rec.ContractAddr)
	}
}

func TestExtractWasmFunds(t *testing.T) {
	e := plainExtractor()
	p := proposal(t, `{"wasm": {"execute": {"contract": "osmo1target", "msg": "e30=", "funds": [{"denom": "uosmo", "amount": "9000"}]}}}`)

	records, _ := e.Extract(p)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Recipient != "osmo1target" || rec.Kind != core.KindWasmFunds {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Amount.Amount.String() != "9000" {
		t.Fatalf("amount = %s", rec.Amount.Amount)
	}
}

func TestExtractPayroll(t *testing.T) {
	e := plainExtractor()
	inner := `{"instantiate_native_payroll_contract": {"instantiate_msg": {"recipient": "osmo1vestee", "total": "1200000", "denom": {"native": "uosmo"}}}}`
	p := proposal(t, wasmExecute(t, "osmo1payrollfactory", inner))

	records, _ := e.Extract(p)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Kind != core.KindPayroll {
		t.Fatalf("kind = %q", rec.Kind)
	}
	if rec.Recipient != "osmo1vestee" || rec.Amount.Amount.String() != "1200000" || rec.Amount.Denom != "uosmo" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestExtractPayrollStringDenom(t *testing.T) {
	e := plainExtractor()
	inner := `{"instantiate_native_payroll_contract": {"instantiate_msg": {"recipient": "osmo1vestee", "total": "5", "denom": "ujuno"}}}`
	p := proposal(t, wasmExecute(t, "osmo1factory", inner))

	records, _ := e.Extract(p)
	if len(records) != 1 || records[0].Amount.Denom != "ujuno" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestExtractStargate(t *testing.T) {
	e := plainExtractor()
	addr := "osmo1" + strings.Repeat("q", 38)
	blob := base64.StdEncoding.EncodeToString([]byte("\n\x14" + addr + "\x12\x0c1500000uosmo"))
	p := proposal(t, fmt.Sprintf(`{"stargate": {"type_url": "/cosmos.bank.v1beta1.MsgSend", "value": %q}}`, blob))

	records, _ := e.Extract(p)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Recipient != addr || rec.Kind != core.KindStargate {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Amount.Amount.String() != "1500000" || rec.Amount.Denom != "uosmo" {
		t.Fatalf("amount = %s %s", rec.Amount.Amount, rec.Amount.Denom)
	}
}

func TestExtractGenericScan(t *testing.T) {
	e := plainExtractor()
	addr := "osmo1" + strings.Repeat("z", 40)
	p := proposal(t, fmt.Sprintf(`{"custom_module": {"beneficiary_info": "pay %s exactly 777uion"}}`, addr))

	records, stats := e.Extract(p)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Kind != core.KindGeneric {
		t.Fatalf("kind = %q", records[0].Kind)
	}
	if records[0].Amount.Denom != "uion" {
		t.Fatalf("denom = %q", records[0].Amount.Denom)
	}
	if stats.Unrecognized != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestExtractUnrecognizedCounted(t *testing.T) {
	e := plainExtractor()
	p := proposal(t,
		`{"distribution": {"community_pool_spend": true}}`,
		`{"bank_send": {"to": "osmo1ok", "amount": "10", "denom": "uosmo"}}`)

	records, stats := e.Extract(p)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if stats.Messages != 2 || stats.Unrecognized != 1 || stats.Payments != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestExtractDropsInvalidAmount(t *testing.T) {
	e := plainExtractor()
	p := proposal(t, `{"bank_send": {"to": "osmo1x", "amount": "-100", "denom": "uosmo"}}`)

	records, stats := e.Extract(p)
	if len(records) != 0 {
		t.Fatalf("expected drop, got %+v", records)
	}
	if stats.Dropped != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestExtractDropsSelfPayment(t *testing.T) {
	e := plainExtractor()
	p := proposal(t, fmt.Sprintf(`{"bank_send": {"to": %q, "amount": "10", "denom": "uosmo"}}`, testSub.Address))

	records, stats := e.Extract(p)
	if len(records) != 0 || stats.Dropped != 1 {
		t.Fatalf("records=%v stats=%+v", records, stats)
	}
}

func TestExtractAdjustedAndUSD(t *testing.T) {
	registry := tokens.NewRegistry(map[string]tokens.Info{
		"uosmo": {Symbol: "OSMO", Decimals: 6},
	})
	table := prices.New([]prices.Entry{
		{Date: "2024-01-15", Token: "OSMO", Price: dec(t, "2")},
	})
	e := New(core.NewCoreTeamSet(nil), registry, table)

	p := proposal(t, `{"bank_send": {"to": "osmo1x", "amount": "1500000", "denom": "uosmo"}}`)
	records, _ := e.Extract(p)
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	rec := records[0]
	if rec.Adjusted.String() != "1.5" {
		t.Fatalf("adjusted = %s", rec.Adjusted)
	}
	if rec.Symbol != "OSMO" {
		t.Fatalf("symbol = %q", rec.Symbol)
	}
	if rec.USDValue.String() != "3" {
		t.Fatalf("usd = %s", rec.USDValue)
	}
}

func TestExtractAllAggregatesStats(t *testing.T) {
	e := plainExtractor()
	proposals := []core.ProposalRecord{
		proposal(t, `{"bank_send": {"to": "osmo1a", "amount": "1", "denom": "uosmo"}}`),
		proposal(t, `{"bank_send": {"to": "osmo1b", "amount": "2", "denom": "uosmo"}}`),
		proposal(t, `{"unknown_shape": 1}`),
	}

	records, stats := e.ExtractAll(proposals)
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if stats.Proposals != 3 || stats.Payments != 2 || stats.Unrecognized != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

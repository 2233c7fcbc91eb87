// Package extract turns proposal message payloads into normalized payment
// records. Payloads come in several known shapes (bank sends, base64-wrapped
// wasm executes, stargate protobuf blobs, payroll contract instantiations);
// detection is ordered and the first matching shape wins. Anything
// unrecognized is counted and skipped, never an error.
package extract

import (
	"encoding/json"
	"log/slog"

	"daoledger/internal/core"
	"daoledger/internal/prices"
	"daoledger/internal/tokens"
)

// Stats accumulates extraction counters across proposals.
type Stats struct {
	Proposals    int `json:"proposals"`
	Messages     int `json:"messages"`
	Payments     int `json:"payments"`
	Unrecognized int `json:"unrecognized"`
	Dropped      int `json:"dropped"`
}

func (s *Stats) add(other Stats) {
	s.Proposals += other.Proposals
	s.Messages += other.Messages
	s.Payments += other.Payments
	s.Unrecognized += other.Unrecognized
	s.Dropped += other.Dropped
}

// rawPayment is a shape detector's output before validation, decimal
// adjustment and classification.
type rawPayment struct {
	recipient string
	amount    string
	denom     string
	kind      core.MessageKind
	contract  string
}

type Extractor struct {
	coreTeam core.CoreTeamSet
	tokens   *tokens.Registry
	prices   *prices.Table
}

// New builds an extractor. The token registry and price table may be nil;
// amounts then stay unadjusted and USD values zero.
func New(coreTeam core.CoreTeamSet, registry *tokens.Registry, priceTable *prices.Table) *Extractor {
	return &Extractor{coreTeam: coreTeam, tokens: registry, prices: priceTable}
}

// ExtractAll runs extraction over a batch of proposals.
func (e *Extractor) ExtractAll(proposals []core.ProposalRecord) ([]core.PaymentRecord, Stats) {
	var (
		records []core.PaymentRecord
		stats   Stats
	)
	for _, p := range proposals {
		recs, s := e.Extract(p)
		records = append(records, recs...)
		stats.add(s)
	}
	return records, stats
}

// Extract yields zero or more payment records for one proposal.
func (e *Extractor) Extract(p core.ProposalRecord) ([]core.PaymentRecord, Stats) {
	stats := Stats{Proposals: 1}
	prefix := p.Network.Bech32Prefix()

	var records []core.PaymentRecord
	for _, msg := range p.Messages {
		stats.Messages++

		raws, matched := detect(msg, prefix)
		if !matched {
			stats.Unrecognized++
			slog.Debug("Unrecognized proposal message",
				"proposal_id", p.ID, "sub_unit", p.SubUnit.Label())
			continue
		}

		for _, raw := range raws {
			rec, ok := e.finish(p, raw)
			if !ok {
				stats.Dropped++
				continue
			}
			records = append(records, rec)
			stats.Payments++
		}
	}
	return records, stats
}

// finish validates a raw payment and fills in category, adjusted amount,
// symbol and USD value. Returns false when the payment must be dropped
// (missing recipient, self-payment, unparseable amount).
func (e *Extractor) finish(p core.ProposalRecord, raw rawPayment) (core.PaymentRecord, bool) {
	if raw.recipient == "" || raw.recipient == p.SubUnit.Address {
		return core.PaymentRecord{}, false
	}

	coin, err := core.ParseCoin(raw.amount, raw.denom)
	if err != nil {
		slog.Debug("Dropping payment with invalid amount",
			"proposal_id", p.ID, "amount", raw.amount, "denom", raw.denom, "error", err)
		return core.PaymentRecord{}, false
	}

	info := e.tokens.Lookup(coin.Denom)
	adjusted := coin.Adjusted(info.Decimals)

	rec := core.PaymentRecord{
		ProposalID:    p.ID,
		ProposalTitle: p.Title,
		SubUnit:       p.SubUnit,
		Network:       p.Network,
		Recipient:     raw.recipient,
		Category:      e.coreTeam.Classify(raw.recipient),
		Amount:        coin,
		Adjusted:      adjusted,
		Symbol:        info.Symbol,
		USDValue:      e.prices.Value(adjusted, info.Symbol, p.SubmittedAt),
		Kind:          raw.kind,
		ContractAddr:  raw.contract,
		PaidAt:        p.SubmittedAt,
	}
	if err := rec.Validate(); err != nil {
		return core.PaymentRecord{}, false
	}
	return rec, true
}

// detect matches one message payload against the known shapes. The second
// return is false when no shape (including the generic scan) produced
// anything to work with.
func detect(msg json.RawMessage, prefix string) ([]rawPayment, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return nil, false
	}

	if inner, ok := firstOf(fields, "bank", "bank_send"); ok {
		return decodeBank(inner), true
	}
	if inner, ok := fields["wasm"]; ok {
		return decodeWasm(inner), true
	}
	if inner, ok := fields["stargate"]; ok {
		return decodeStargate(inner, prefix), true
	}

	raws := decodeGeneric(msg, prefix)
	return raws, len(raws) > 0
}

func firstOf(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v, true
		}
	}
	return nil, false
}

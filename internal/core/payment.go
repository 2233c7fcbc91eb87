// Package core holds the plain data records the rest of the service works
// on: proposals as fetched from the indexer, payments derived from them,
// and the coin/amount handling shared by both.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Coin is a raw on-chain amount with its denomination. Amounts are base
// units (e.g. uosmo), always non-negative.
type Coin struct {
	Amount decimal.Decimal `json:"amount"`
	Denom  string          `json:"denom"`
}

// ParseCoin builds a Coin from the string amount used on the wire.
// Negative or non-numeric amounts are rejected so callers can drop the
// payment instead of fabricating a value.
func ParseCoin(amount, denom string) (Coin, error) {
	denom = strings.TrimSpace(denom)
	if denom == "" {
		return Coin{}, ErrEmptyDenom
	}
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Coin{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if d.IsNegative() {
		return Coin{}, fmt.Errorf("%w: negative %q", ErrInvalidAmount, amount)
	}
	return Coin{Amount: d, Denom: denom}, nil
}

// Adjusted scales the raw amount down by the token's decimals
// (e.g. 1500000 uosmo with 6 decimals -> 1.5).
func (c Coin) Adjusted(decimals int32) decimal.Decimal {
	if decimals <= 0 {
		return c.Amount
	}
	return c.Amount.Shift(-decimals)
}

func (c Coin) Validate() error {
	if strings.TrimSpace(c.Denom) == "" {
		return ErrEmptyDenom
	}
	if c.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// PaymentRecord is a single payment extracted from one proposal message.
// Every record traces back to exactly one ProposalRecord.
type PaymentRecord struct {
	ProposalID    int64             `json:"proposal_id"`
	ProposalTitle string            `json:"proposal_title,omitempty"`
	SubUnit       SubUnit           `json:"sub_unit"`
	Network       Network           `json:"network"`
	Recipient     string            `json:"recipient"`
	Category      RecipientCategory `json:"category"`
	Amount        Coin              `json:"amount"`
	Adjusted      decimal.Decimal   `json:"adjusted"`
	Symbol        string            `json:"symbol"`
	USDValue      decimal.Decimal   `json:"usd_value"`
	Kind          MessageKind       `json:"kind"`
	ContractAddr  string            `json:"contract_addr,omitempty"`
	PaidAt        time.Time         `json:"paid_at"`
}

func (p PaymentRecord) Validate() error {
	if strings.TrimSpace(p.Recipient) == "" {
		return ErrEmptyAddress
	}
	return p.Amount.Validate()
}

// Month returns the record's calendar time bucket as "YYYY-MM" in UTC.
func (p PaymentRecord) Month() string {
	if p.PaidAt.IsZero() {
		return ""
	}
	return p.PaidAt.UTC().Format("2006-01")
}

// Package prices holds the combined daily price table used for USD
// valuation of extracted payments.
package prices

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Entry is one daily price point for a token symbol.
type Entry struct {
	Date  string          `json:"date"`
	Token string          `json:"token"`
	Price decimal.Decimal `json:"price"`
}

// Table answers "what was TOKEN worth on DATE" with a closest-date
// fallback when the exact day is missing.
type Table struct {
	byToken map[string]map[string]decimal.Decimal
	dates   map[string][]time.Time // sorted ascending per token
}

func New(entries []Entry) *Table {
	t := &Table{
		byToken: make(map[string]map[string]decimal.Decimal),
		dates:   make(map[string][]time.Time),
	}
	for _, e := range entries {
		day, err := time.Parse(dateLayout, e.Date)
		if err != nil {
			continue
		}
		if t.byToken[e.Token] == nil {
			t.byToken[e.Token] = make(map[string]decimal.Decimal)
		}
		if _, dup := t.byToken[e.Token][e.Date]; !dup {
			t.dates[e.Token] = append(t.dates[e.Token], day)
		}
		t.byToken[e.Token][e.Date] = e.Price
	}
	for token := range t.dates {
		sort.Slice(t.dates[token], func(i, j int) bool { return t.dates[token][i].Before(t.dates[token][j]) })
	}
	return t
}

// LoadFile reads a combined daily prices JSON file ([{date, token, price}]).
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prices file: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode prices file: %w", err)
	}
	return New(entries), nil
}

// Lookup returns the price for token on day. If the exact date has no
// entry, the closest available date for that token is used.
func (t *Table) Lookup(token string, day time.Time) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	prices, ok := t.byToken[token]
	if !ok || len(prices) == 0 {
		return decimal.Zero, false
	}

	key := day.UTC().Format(dateLayout)
	if p, ok := prices[key]; ok {
		return p, true
	}

	dates := t.dates[token]
	closest := dates[0]
	best := absDays(day, closest)
	for _, d := range dates[1:] {
		if diff := absDays(day, d); diff < best {
			best = diff
			closest = d
		}
	}
	return prices[closest.Format(dateLayout)], true
}

// Value returns amount * price for the token on the given day, or zero
// when no price is known.
func (t *Table) Value(amount decimal.Decimal, token string, day time.Time) decimal.Decimal {
	price, ok := t.Lookup(token, day)
	if !ok {
		return decimal.Zero
	}
	return amount.Mul(price)
}

func absDays(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d
}

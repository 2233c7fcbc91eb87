// Package tokens maps on-chain denominations to display symbols and
// decimal counts, loaded from the Cosmostation chainlist asset file.
package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Info describes one token denomination.
type Info struct {
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// Registry resolves denom -> token info. Unknown denoms resolve to the
// denom itself with zero decimals, so raw amounts pass through unchanged.
type Registry struct {
	byDenom map[string]Info
}

func NewRegistry(byDenom map[string]Info) *Registry {
	if byDenom == nil {
		byDenom = make(map[string]Info)
	}
	return &Registry{byDenom: byDenom}
}

func (r *Registry) Len() int { return len(r.byDenom) }

// Lookup returns the token info for a denom, defaulting to the denom
// itself with 0 decimals when unknown.
func (r *Registry) Lookup(denom string) Info {
	if r == nil {
		return Info{Symbol: denom, Decimals: 0}
	}
	if info, ok := r.byDenom[denom]; ok {
		return info
	}
	return Info{Symbol: denom, Decimals: 0}
}

// asset mirrors one entry of the chainlist assets JSON.
type asset struct {
	Denom    string `json:"denom"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// LoadFromURL fetches the chainlist asset file and builds a registry.
func LoadFromURL(ctx context.Context, rawURL string) (*Registry, error) {
	httpc := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build token data request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch token data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch token data: unexpected status %d", resp.StatusCode)
	}

	return parse(resp.Body)
}

// LoadFromFile builds a registry from a local copy of the asset file.
func LoadFromFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token data file: %w", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (*Registry, error) {
	var assets []asset
	if err := json.NewDecoder(r).Decode(&assets); err != nil {
		return nil, fmt.Errorf("decode token data: %w", err)
	}

	byDenom := make(map[string]Info, len(assets))
	for _, a := range assets {
		if a.Denom == "" {
			continue
		}
		symbol := a.Symbol
		if symbol == "" {
			symbol = a.Denom
		}
		byDenom[a.Denom] = Info{Symbol: symbol, Decimals: a.Decimals}
	}
	return NewRegistry(byDenom), nil
}

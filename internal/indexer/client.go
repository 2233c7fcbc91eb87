// Package indexer is the HTTP client for the DAO indexer API. It fetches
// proposal data per network and contract address, paginating transparently
// and retrying transient failures with backoff.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"daoledger/internal/core"
)

var (
	// ErrNetwork marks unreachable-host, timeout and server-side failures,
	// surfaced after the retry budget is exhausted.
	ErrNetwork = errors.New("indexer: request failed")
	// ErrParse marks responses that are not valid structured data.
	ErrParse = errors.New("indexer: invalid response")
)

const defaultPageLimit = 100

// statusError lets the retry policy distinguish server-side failures
// (retryable) from client-side ones.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

type Client struct {
	baseURL   string
	network   core.Network
	httpc     *http.Client
	retry     retryPolicy
	pageLimit int
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithRetry overrides the retry budget and base delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = maxAttempts
		c.retry.BaseDelay = baseDelay
	}
}

// WithPageLimit overrides the pagination page size.
func WithPageLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.pageLimit = limit
		}
	}
}

func NewClient(baseURL string, network core.Network, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		network: network,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		retry: retryPolicy{
			MaxAttempts: 4,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Jitter:      100 * time.Millisecond,
		},
		pageLimit: defaultPageLimit,
	}
	c.retry.Classify = classify
	c.retry.OnRetry = func(attempt int, wait time.Duration, err error) {
		slog.Warn("Retrying indexer request", "attempt", attempt, "wait", wait, "error", err)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Network() core.Network { return c.network }

// classify: transport errors and 5xx are retryable, anything else is not.
func classify(err error) errClass {
	var se *statusError
	if errors.As(err, &se) {
		if se.code >= 500 {
			return retryable
		}
		return fatal
	}
	if errors.Is(err, ErrParse) {
		return fatal
	}
	return retryable
}

// get performs one retried GET and returns the response body.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := c.retry.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "daoledger/1.0")

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &statusError{code: resp.StatusCode}
		}

		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: GET %s: %v", ErrNetwork, rawURL, err)
	}
	return body, nil
}

func (c *Client) contractURL(address, method string, query url.Values) string {
	u := fmt.Sprintf("%s/%s/contract/%s/daoCore/%s", c.baseURL, c.network, address, method)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Proposals fetches all proposals for a sub-unit, paginating until a short
// page. An empty status fetches proposals in any state.
func (c *Client) Proposals(ctx context.Context, sub core.SubUnit, status string) ([]core.ProposalRecord, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	var records []core.ProposalRecord
	offset := 0
	for {
		query := url.Values{}
		if status != "" {
			query.Set("filter", status)
		}
		query.Set("limit", strconv.Itoa(c.pageLimit))
		query.Set("offset", strconv.Itoa(offset))

		body, err := c.get(ctx, c.contractURL(sub.Address, "allProposals", query))
		if err != nil {
			return nil, fmt.Errorf("fetch proposals for %s: %w", sub.Address, err)
		}

		items, err := sniffList(body, "proposals")
		if err != nil {
			return nil, fmt.Errorf("proposals for %s: %w", sub.Address, err)
		}

		for _, item := range items {
			rec, err := c.parseProposal(item, sub)
			if err != nil {
				slog.Warn("Skipping malformed proposal entry", "sub_unit", sub.Label(), "error", err)
				continue
			}
			records = append(records, rec)
		}

		if len(items) < c.pageLimit {
			return records, nil
		}
		offset += len(items)
	}
}

// proposalEnvelope mirrors one allProposals item.
type proposalEnvelope struct {
	ID        json.Number     `json:"id"`
	CreatedAt string          `json:"created_at"`
	Proposal  proposalPayload `json:"proposal"`
}

type proposalPayload struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	Msgs        []json.RawMessage `json:"msgs"`
	Expiration  struct {
		AtTime string `json:"at_time"`
	} `json:"expiration"`
}

func (c *Client) parseProposal(raw json.RawMessage, sub core.SubUnit) (core.ProposalRecord, error) {
	var env proposalEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return core.ProposalRecord{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	id, err := env.ID.Int64()
	if err != nil {
		return core.ProposalRecord{}, fmt.Errorf("%w: proposal id %q", ErrParse, env.ID.String())
	}

	return core.ProposalRecord{
		ID:          id,
		SubUnit:     sub,
		Network:     c.network,
		Status:      env.Proposal.Status,
		Title:       env.Proposal.Title,
		Description: env.Proposal.Description,
		Messages:    env.Proposal.Msgs,
		SubmittedAt: proposalDate(env),
	}, nil
}

// proposalDate recovers a timestamp for the proposal: created_at when the
// indexer provides it, otherwise seven days before the nanosecond expiration
// time, otherwise the fetch time.
func proposalDate(env proposalEnvelope) time.Time {
	if env.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, env.CreatedAt); err == nil {
			return t
		}
		// Some responses carry a date-only created_at.
		if t, err := time.Parse("2006-01-02", env.CreatedAt); err == nil {
			return t
		}
	}
	if raw := env.Proposal.Expiration.AtTime; raw != "" {
		if nanos, err := strconv.ParseInt(raw, 10, 64); err == nil && nanos > 0 {
			return time.Unix(0, nanos).UTC().Add(-7 * 24 * time.Hour)
		}
	}
	return time.Now().UTC()
}

// DAOInfo is the slice of dumpState this service cares about.
type DAOInfo struct {
	Name        string
	Description string
}

// Info fetches DAO metadata via dumpState. Failures degrade to an empty
// record: the name is cosmetic.
func (c *Client) Info(ctx context.Context, address string) DAOInfo {
	body, err := c.get(ctx, c.contractURL(address, "dumpState", nil))
	if err != nil {
		return DAOInfo{}
	}

	var state struct {
		Config struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"config"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return DAOInfo{}
	}
	return DAOInfo{Name: state.Config.Name, Description: state.Config.Description}
}

// ListSubDAOs fetches the sub-DAO list of a main DAO, resolving each
// sub-DAO's name via dumpState when available.
func (c *Client) ListSubDAOs(ctx context.Context, mainDAOAddress string) ([]core.SubUnit, error) {
	body, err := c.get(ctx, c.contractURL(mainDAOAddress, "listSubDaos", nil))
	if err != nil {
		return nil, fmt.Errorf("fetch sub-DAOs for %s: %w", mainDAOAddress, err)
	}

	items, err := sniffList(body, "subDaos")
	if err != nil {
		return nil, fmt.Errorf("sub-DAOs for %s: %w", mainDAOAddress, err)
	}

	var units []core.SubUnit
	for _, item := range items {
		var entry struct {
			Addr    string `json:"addr"`
			Address string `json:"address"`
			Name    string `json:"name"`
			Charter string `json:"charter"`
		}
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		addr := entry.Addr
		if addr == "" {
			addr = entry.Address
		}
		if addr == "" {
			continue
		}
		name := entry.Name
		if name == "" {
			name = entry.Charter
		}
		if name == "" {
			name = c.Info(ctx, addr).Name
		}
		units = append(units, core.SubUnit{Name: name, Address: addr})
	}
	return units, nil
}

// Members fetches the member addresses of a DAO, used to auto-populate the
// core-team address set.
func (c *Client) Members(ctx context.Context, address string) ([]string, error) {
	body, err := c.get(ctx, c.contractURL(address, "listMembers", nil))
	if err != nil {
		return nil, fmt.Errorf("fetch members for %s: %w", address, err)
	}

	items, err := sniffList(body, "members")
	if err != nil {
		return nil, fmt.Errorf("members for %s: %w", address, err)
	}

	var addrs []string
	for _, item := range items {
		var member struct {
			Addr    string `json:"addr"`
			Address string `json:"address"`
		}
		if err := json.Unmarshal(item, &member); err != nil {
			// Some endpoints return bare address strings.
			var s string
			if json.Unmarshal(item, &s) == nil && s != "" {
				addrs = append(addrs, s)
			}
			continue
		}
		if member.Addr != "" {
			addrs = append(addrs, member.Addr)
		} else if member.Address != "" {
			addrs = append(addrs, member.Address)
		}
	}
	return addrs, nil
}

// Ping checks that the indexer is reachable for the configured network.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, fmt.Sprintf("%s/%s/docs", c.baseURL, c.network))
	return err
}

// sniffList handles the indexer's response-shape variance: a bare array,
// an object keyed by the collection name, an object keyed by "data", or a
// single object (wrapped into a one-element list).
func sniffList(body []byte, key string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	for _, k := range []string{key, "data"} {
		inner, ok := wrapper[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &items); err == nil {
			return items, nil
		}
		// Single object under the key.
		return []json.RawMessage{inner}, nil
	}

	// Single object response.
	return []json.RawMessage{body}, nil
}

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	NetworkOsmosis  Network = "osmosis-1"
	NetworkJuno     Network = "juno-1"
	NetworkStargaze Network = "stargaze-1"
)

const (
	CategoryCoreTeam RecipientCategory = "core_team"
	CategoryExternal RecipientCategory = "external"
	CategoryUnknown  RecipientCategory = "unknown"
)

// Message kinds, in the order the extractor tries them.
const (
	KindBankSend    MessageKind = "bank_send"
	KindWasmExecute MessageKind = "wasm_execute"
	KindWasmFunds   MessageKind = "wasm_execute_funds"
	KindPayroll     MessageKind = "payroll_instantiate"
	KindStargate    MessageKind = "stargate"
	KindGeneric     MessageKind = "generic"
)

type (
	// Network identifies a supported chain the indexer can be queried for.
	Network string

	// RecipientCategory classifies who a payment went to.
	RecipientCategory string

	// MessageKind names the proposal message shape a payment was decoded from.
	MessageKind string

	// SubUnit is an organizational division (sub-DAO) tracked separately
	// for accounting.
	SubUnit struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	}

	// ProposalRecord is the raw unit fetched from the indexer. It is not
	// modified after fetching; Messages holds the proposal's message
	// payloads as opaque JSON.
	ProposalRecord struct {
		ID          int64             `json:"id"`
		SubUnit     SubUnit           `json:"sub_unit"`
		Network     Network           `json:"network"`
		Status      string            `json:"status"`
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Messages    []json.RawMessage `json:"msgs"`
		SubmittedAt time.Time         `json:"submitted_at"`
	}
)

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrEmptyAddress   = errors.New("empty address")
	ErrEmptyDenom     = errors.New("empty denomination")
	ErrInvalidAmount  = errors.New("invalid amount")
)

var networks = []Network{NetworkOsmosis, NetworkJuno, NetworkStargaze}

// ParseNetwork validates a network name against the supported set.
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.TrimSpace(s))
	for _, known := range networks {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
}

// Networks returns the supported network identifiers.
func Networks() []Network {
	out := make([]Network, len(networks))
	copy(out, networks)
	return out
}

func (n Network) Validate() error {
	_, err := ParseNetwork(string(n))
	return err
}

// Bech32Prefix returns the address prefix used on the network, for
// recognizing recipient addresses inside opaque payloads.
func (n Network) Bech32Prefix() string {
	switch n {
	case NetworkJuno:
		return "juno"
	case NetworkStargaze:
		return "stars"
	default:
		return "osmo"
	}
}

func (s SubUnit) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return ErrEmptyAddress
	}
	return nil
}

// Label returns the name if set, otherwise the address.
func (s SubUnit) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Address
}

// CoreTeamSet is the configured set of addresses recognized as internal
// recipients.
type CoreTeamSet struct {
	addrs map[string]struct{}
}

func NewCoreTeamSet(addresses []string) CoreTeamSet {
	set := CoreTeamSet{addrs: make(map[string]struct{}, len(addresses))}
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if a != "" {
			set.addrs[a] = struct{}{}
		}
	}
	return set
}

func (s CoreTeamSet) Len() int { return len(s.addrs) }

func (s CoreTeamSet) Contains(address string) bool {
	_, ok := s.addrs[address]
	return ok
}

// Classify maps a recipient address to its category. Addresses outside the
// configured set are external; an empty recipient is unknown.
func (s CoreTeamSet) Classify(recipient string) RecipientCategory {
	if strings.TrimSpace(recipient) == "" {
		return CategoryUnknown
	}
	if s.Contains(recipient) {
		return CategoryCoreTeam
	}
	return CategoryExternal
}

package extract

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"daoledger/internal/core"
)

// wireCoin is the {denom, amount} pair used across cosmos payloads.
type wireCoin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// decodeBank handles direct bank transfers, in both the cosmos form
// {"send": {"to_address": ..., "amount": [coins]}} and the flat shorthand
// {"to": ..., "amount": "...", "denom": "..."} seen in older payloads.
func decodeBank(inner json.RawMessage) []rawPayment {
	var msg struct {
		Send *struct {
			ToAddress string     `json:"to_address"`
			Amount    []wireCoin `json:"amount"`
		} `json:"send"`
		To        string          `json:"to"`
		ToAddress string          `json:"to_address"`
		Amount    json.RawMessage `json:"amount"`
		Denom     string          `json:"denom"`
	}
	if err := json.Unmarshal(inner, &msg); err != nil {
		return nil
	}

	if msg.Send != nil {
		var out []rawPayment
		for _, coin := range msg.Send.Amount {
			out = append(out, rawPayment{
				recipient: msg.Send.ToAddress,
				amount:    coin.Amount,
				denom:     coin.Denom,
				kind:      core.KindBankSend,
			})
		}
		return out
	}

	recipient := msg.To
	if recipient == "" {
		recipient = msg.ToAddress
	}
	if recipient == "" || len(msg.Amount) == 0 {
		return nil
	}

	// Flat form: amount is either a string with a separate denom field or
	// a coin list.
	var amountStr string
	if err := json.Unmarshal(msg.Amount, &amountStr); err == nil {
		return []rawPayment{{
			recipient: recipient,
			amount:    amountStr,
			denom:     msg.Denom,
			kind:      core.KindBankSend,
		}}
	}
	var coins []wireCoin
	if err := json.Unmarshal(msg.Amount, &coins); err != nil {
		return nil
	}
	var out []rawPayment
	for _, coin := range coins {
		out = append(out, rawPayment{
			recipient: recipient,
			amount:    coin.Amount,
			denom:     coin.Denom,
			kind:      core.KindBankSend,
		})
	}
	return out
}

// decodeWasm handles execute messages: the inner msg is base64-encoded
// JSON carrying cw20 transfers, payroll contract instantiations or
// arbitrary nested contract calls; funds attached to the execute go to the
// contract itself.
func decodeWasm(inner json.RawMessage) []rawPayment {
	var msg struct {
		Execute *struct {
			Contract     string          `json:"contract"`
			ContractAddr string          `json:"contract_addr"`
			Msg          json.RawMessage `json:"msg"`
			Funds        []wireCoin      `json:"funds"`
		} `json:"execute"`
	}
	if err := json.Unmarshal(inner, &msg); err != nil || msg.Execute == nil {
		return nil
	}

	contract := msg.Execute.Contract
	if contract == "" {
		contract = msg.Execute.ContractAddr
	}

	decoded := decodeWasmMsg(msg.Execute.Msg)
	out := decodeContractCall(decoded, contract)

	for _, coin := range msg.Execute.Funds {
		out = append(out, rawPayment{
			recipient: contract,
			amount:    coin.Amount,
			denom:     coin.Denom,
			kind:      core.KindWasmFunds,
			contract:  contract,
		})
	}
	return out
}

// decodeWasmMsg unwraps the base64 layer of an execute msg. Already-decoded
// objects pass through; undecodable msgs yield nil.
func decodeWasmMsg(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil
		}
		raw = decoded
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

// decodeContractCall extracts payments from a decoded execute msg.
func decodeContractCall(decoded map[string]json.RawMessage, contract string) []rawPayment {
	if len(decoded) == 0 {
		return nil
	}

	cw20Denom := "token"
	if contract != "" {
		cw20Denom = "cw20:" + contract
	}

	// cw20 transfer/send: {"transfer": {"recipient": ..., "amount": ...}}
	if inner, ok := firstOf(decoded, "transfer", "send"); ok {
		var xfer struct {
			Recipient string      `json:"recipient"`
			Contract  string      `json:"contract"`
			Amount    json.Number `json:"amount"`
		}
		if err := json.Unmarshal(inner, &xfer); err == nil {
			recipient := xfer.Recipient
			if recipient == "" {
				recipient = xfer.Contract
			}
			if recipient != "" && xfer.Amount.String() != "" {
				return []rawPayment{{
					recipient: recipient,
					amount:    xfer.Amount.String(),
					denom:     cw20Denom,
					kind:      core.KindWasmExecute,
					contract:  contract,
				}}
			}
		}
		return nil
	}

	// Vesting payroll contract: total owed to one recipient.
	if inner, ok := decoded["instantiate_native_payroll_contract"]; ok {
		return decodePayroll(inner, contract)
	}

	// Any other method: scan nested data for recipient/amount pairs.
	var out []rawPayment
	for _, methodData := range decoded {
		var data any
		if err := json.Unmarshal(methodData, &data); err != nil {
			continue
		}
		scanNested(data, contract, &out)
	}
	return out
}

func decodePayroll(inner json.RawMessage, contract string) []rawPayment {
	var payroll struct {
		InstantiateMsg struct {
			Recipient string          `json:"recipient"`
			Total     json.Number     `json:"total"`
			Denom     json.RawMessage `json:"denom"`
		} `json:"instantiate_msg"`
	}
	if err := json.Unmarshal(inner, &payroll); err != nil {
		return nil
	}
	im := payroll.InstantiateMsg
	if im.Recipient == "" || im.Total.String() == "" {
		return nil
	}

	// Denom is either {"native": "uosmo"} or a bare string.
	denom := ""
	var denomObj struct {
		Native string `json:"native"`
		Cw20   string `json:"cw20"`
	}
	if err := json.Unmarshal(im.Denom, &denomObj); err == nil {
		denom = denomObj.Native
		if denom == "" && denomObj.Cw20 != "" {
			denom = "cw20:" + denomObj.Cw20
		}
	}
	if denom == "" {
		_ = json.Unmarshal(im.Denom, &denom)
	}
	if denom == "" {
		return nil
	}

	return []rawPayment{{
		recipient: im.Recipient,
		amount:    im.Total.String(),
		denom:     denom,
		kind:      core.KindPayroll,
		contract:  contract,
	}}
}

// recipientKeys/amountKeys drive the nested contract-call scan.
var recipientKeys = []string{"recipient", "to", "beneficiary"}
var amountKeys = []string{"amount", "total", "value", "sum"}

var digitsRe = regexp.MustCompile(`^\d+$`)

// scanNested walks arbitrary contract data looking for a recipient key with
// an integer amount sibling.
func scanNested(data any, contract string, out *[]rawPayment) {
	switch v := data.(type) {
	case map[string]any:
		for _, rk := range recipientKeys {
			recipient, ok := v[rk].(string)
			if !ok || recipient == "" {
				continue
			}
			for _, ak := range amountKeys {
				amount := asDigits(v[ak])
				if amount == "" {
					continue
				}
				denom := "uosmo"
				if d, ok := v["denom"].(string); ok && d != "" {
					denom = d
				}
				*out = append(*out, rawPayment{
					recipient: recipient,
					amount:    amount,
					denom:     denom,
					kind:      core.KindWasmExecute,
					contract:  contract,
				})
				break
			}
		}
		for _, child := range v {
			scanNested(child, contract, out)
		}
	case []any:
		for _, item := range v {
			scanNested(item, contract, out)
		}
	}
}

func asDigits(v any) string {
	switch n := v.(type) {
	case string:
		if digitsRe.MatchString(n) {
			return n
		}
	case float64:
		if n >= 0 && n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	}
	return ""
}

// Stargate messages carry protobuf-encoded bytes; without the type registry
// the best available signal is address and amount patterns in the raw data.
var (
	patternMu sync.Mutex
	addrRes   = map[string]*regexp.Regexp{}
	amountRes = map[string]*regexp.Regexp{}
)

func patterns(prefix string) (*regexp.Regexp, *regexp.Regexp) {
	patternMu.Lock()
	defer patternMu.Unlock()
	addrRe, ok := addrRes[prefix]
	if !ok {
		addrRe = regexp.MustCompile(prefix + `1[a-z0-9]{38,58}`)
		addrRes[prefix] = addrRe
	}
	amtRe, ok := amountRes[prefix]
	if !ok {
		amtRe = regexp.MustCompile(`(\d+)(u[a-z]+)`)
		amountRes[prefix] = amtRe
	}
	return addrRe, amtRe
}

func decodeStargate(inner json.RawMessage, prefix string) []rawPayment {
	var msg struct {
		TypeURL string `json:"type_url"`
		Value   string `json:"value"`
	}
	if err := json.Unmarshal(inner, &msg); err != nil || msg.Value == "" {
		return nil
	}

	decoded, err := base64.StdEncoding.DecodeString(msg.Value)
	if err != nil {
		return nil
	}
	return scanText(string(decoded), prefix, core.KindStargate)
}

// decodeGeneric is the last-resort scan over the raw message JSON.
func decodeGeneric(msg json.RawMessage, prefix string) []rawPayment {
	return scanText(string(msg), prefix, core.KindGeneric)
}

// scanText pairs every address found in the text with the first amount
// found. Addresses matching the paying sub-unit are filtered later.
func scanText(text, prefix string, kind core.MessageKind) []rawPayment {
	addrRe, amtRe := patterns(prefix)

	addrs := addrRe.FindAllString(text, -1)
	amount := amtRe.FindStringSubmatch(text)
	if len(addrs) == 0 || amount == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(addrs))
	var out []rawPayment
	for _, addr := range addrs {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, rawPayment{
			recipient: addr,
			amount:    amount[1],
			denom:     amount[2],
			kind:      kind,
		})
	}
	return out
}

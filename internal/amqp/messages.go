package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RefreshMessage asks the worker to refetch one sub-unit's proposals and
// rebuild its payment records. The worker resolves the address against the
// configured sub-units, so the message stays small.
type RefreshMessage struct {
	JobID          string    `json:"job_id"`
	Network        string    `json:"network"`
	SubUnitName    string    `json:"sub_unit_name"`
	SubUnitAddress string    `json:"sub_unit_address"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewRefreshMessage(network, subUnitName, subUnitAddress, status string) *RefreshMessage {
	return &RefreshMessage{
		JobID:          uuid.NewString(),
		Network:        network,
		SubUnitName:    subUnitName,
		SubUnitAddress: subUnitAddress,
		Status:         status,
		Timestamp:      time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func RefreshMessageFromJSON(data []byte) (*RefreshMessage, error) {
	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

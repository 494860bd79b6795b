package pairing

import "encoding/json"

// RequestPayload is the plaintext JSON body of a PAIR_REQ message
// (spec.md Section 4.7 step 2).
type RequestPayload struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// AckPayload is the plaintext JSON body of a PAIR_ACK message (spec.md
// Section 4.7 step 3).
type AckPayload struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Marshal encodes p as the raw bytes that belong in Message.Payload.
func (p RequestPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ParseRequestPayload decodes a PAIR_REQ Message.Payload.
func ParseRequestPayload(data []byte) (RequestPayload, error) {
	var p RequestPayload
	err := json.Unmarshal(data, &p)
	return p, err
}

// Marshal encodes p as the raw bytes that belong in Message.Payload.
func (p AckPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ParseAckPayload decodes a PAIR_ACK Message.Payload.
func ParseAckPayload(data []byte) (AckPayload, error) {
	var p AckPayload
	err := json.Unmarshal(data, &p)
	return p, err
}

// Package message defines the wire envelope of spec.md Section 3: the
// {version, kind, payload, timestamp, checksum} tuple and its JSON codec
// (keys v, t, p, ts, cs). Encryption and signing live in pkg/session's
// CryptoContext; this package only shapes and checksums the envelope.
package message

import (
	"encoding/json"

	"github.com/speech2prompt/core/pkg/crypto"
)

// CurrentVersion is the protocol version stamped on every outbound message.
const CurrentVersion = 1

// Message is the unit of transport (spec.md Section 3). Payload holds
// whatever bytes belong on the wire for Kind: ciphertext-as-base64 for an
// encrypted kind, a raw JSON object for PAIR_REQ/PAIR_ACK, or the decimal
// timestamp string an ACK echoes.
type Message struct {
	Version   int
	Kind      Kind
	Payload   []byte
	Timestamp int64
	Checksum  string
}

// New builds a Message with the current protocol version and no checksum
// yet set; call Sign or let a CryptoContext stamp the checksum.
func New(kind Kind, payload []byte, timestamp int64) *Message {
	return &Message{
		Version:   CurrentVersion,
		Kind:      kind,
		Payload:   payload,
		Timestamp: timestamp,
	}
}

// Sign computes and stores m.Checksum over m's current fields and key.
// Used via CryptoContext.Sign for HEARTBEAT, the sign-only kind; encrypted
// kinds are signed as part of CryptoContext.SignAndEncrypt. PAIR_REQ,
// PAIR_ACK and ACK are never signed.
func (m *Message) Sign(key []byte) {
	m.Checksum = crypto.Checksum(m.Version, string(m.Kind), m.Payload, m.Timestamp, key)
}

// VerifyChecksum reports whether m.Checksum matches what Sign would have
// produced for the given key.
func (m *Message) VerifyChecksum(key []byte) bool {
	return crypto.VerifyChecksum(m.Version, string(m.Kind), m.Payload, m.Timestamp, key, m.Checksum)
}

// wireEnvelope is the JSON shape on the BLE wire: short keys to minimize
// bytes-per-chunk (spec.md Section 6).
type wireEnvelope struct {
	V  int    `json:"v"`
	T  string `json:"t"`
	P  string `json:"p"`
	TS int64  `json:"ts"`
	CS string `json:"cs"`
}

// Encode serializes m to its post-reassembly JSON form.
func (m *Message) Encode() ([]byte, error) {
	w := wireEnvelope{
		V:  m.Version,
		T:  string(m.Kind),
		P:  string(m.Payload),
		TS: m.Timestamp,
		CS: m.Checksum,
	}
	return json.Marshal(w)
}

// Decode parses the JSON form produced by Encode. It rejects an unknown
// kind with ErrUnknownKind; malformed JSON returns ErrMalformed.
func Decode(data []byte) (*Message, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ErrMalformed
	}

	k := Kind(w.T)
	if !k.IsValid() {
		return nil, ErrUnknownKind
	}

	return &Message{
		Version:   w.V,
		Kind:      k,
		Payload:   []byte(w.P),
		Timestamp: w.TS,
		Checksum:  w.CS,
	}, nil
}

package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// Session key derivation parameters (spec.md Section 4.1).
const (
	// SessionKeyIterations is the fixed PBKDF2 iteration count for deriveKey.
	SessionKeyIterations = 100000

	// SessionKeySize is the derived session key length in bytes (256 bits).
	SessionKeySize = 32
)

// protocolSalt is the process-wide fixed salt for session key derivation.
// It is a protocol constant, not a secret: changing it breaks every
// existing pairing, since the derived key would no longer match the one
// the peer derives from the same (pin, local_id, peer_id) triple.
var protocolSalt = []byte("speech2prompt/session-key/v1")

// DeriveKey derives the 32-byte session key from a pairing PIN and the two
// device identifiers, per spec.md Section 4.1 deriveKey().
//
// The three strings are concatenated, in order, as UTF-8 and run through
// PBKDF2-HMAC-SHA256 for SessionKeyIterations iterations against the fixed
// protocol salt. Argument order is load-bearing: both sides of a pairing
// must call DeriveKey with the same (pin, initiator_id, peer_id) order to
// land on the identical key.
func DeriveKey(pin, localDeviceID, peerDeviceID string) []byte {
	ikm := []byte(pin + localDeviceID + peerDeviceID)
	return pbkdf2.Key(ikm, protocolSalt, SessionKeyIterations, SessionKeySize, sha256.New)
}

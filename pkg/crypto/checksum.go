package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
)

// ChecksumSize is the length, in hex characters, of a Checksum result.
const ChecksumSize = 8

// Checksum computes the short integrity tag over a message's metadata and
// payload, per spec.md Section 4.1 checksum(). It hashes
// ascii(version) || kind || payload || ascii(timestamp) || key with
// SHA-256 and returns the first 4 bytes as 8 lowercase hex characters.
//
// This is distinct from the AES-GCM tag: it covers plaintext metadata
// (version, kind, timestamp) alongside whatever is currently in payload
// (ciphertext for encrypted kinds, plaintext JSON for PAIR_REQ/PAIR_ACK).
func Checksum(version int, kind string, payload []byte, timestamp int64, key []byte) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(version)))
	h.Write([]byte(kind))
	h.Write(payload)
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write(key)

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:4])
}

// VerifyChecksum recomputes the checksum and compares it against got in
// constant time.
func VerifyChecksum(version int, kind string, payload []byte, timestamp int64, key []byte, got string) bool {
	want := Checksum(version, kind, payload, timestamp, key)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

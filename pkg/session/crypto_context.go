// Package session implements CryptoContext, spec.md Section 4.4's owner of
// the one 32-byte shared key: sign/verify for the sign-only kind
// (HEARTBEAT), sign_and_encrypt/verify_and_decrypt for the secured kinds,
// and a Close that overwrites the key bytes. The bootstrap kinds (PAIR_REQ,
// PAIR_ACK) and ACK are never signed or encrypted.
//
// This is grounded on the teacher's pkg/session.SecureContext (mutex-guarded
// key material, a ZeroizeKeys-style close) generalized from Matter's
// I2R/R2I key pair down to speech2prompt's single symmetric key, and on
// pkg/crypto for the actual primitives.
package session

import (
	"sync"

	"github.com/speech2prompt/core/pkg/crypto"
	"github.com/speech2prompt/core/pkg/message"
)

// CryptoContext owns one 32-byte shared key for the lifetime of a pairing
// (or until reconnect derives a fresh one). All methods are safe for
// concurrent use; Close is idempotent.
type CryptoContext struct {
	mu     sync.Mutex
	key    []byte
	closed bool
}

// NewCryptoContext derives the shared key per spec.md Section 4.1
// deriveKey(pin, local_id, peer_id): PBKDF2-HMAC-SHA256 over
// pin||local_id||peer_id against the protocol-wide salt, 100000
// iterations, 32-byte output.
func NewCryptoContext(pin, localDeviceID, peerDeviceID string) *CryptoContext {
	return &CryptoContext{key: crypto.DeriveKey(pin, localDeviceID, peerDeviceID)}
}

// ImportKey builds a CryptoContext from a previously stored shared key
// (spec.md Section 3 CryptoContext, creation path (b)), used on silent
// reconnect when a PairedPeer record already exists.
func ImportKey(key []byte) (*CryptoContext, error) {
	if len(key) != crypto.SessionKeySize {
		return nil, ErrInvalidKey
	}
	owned := make([]byte, len(key))
	copy(owned, key)
	return &CryptoContext{key: owned}, nil
}

// Sign stamps m.Checksum in place, for kinds that are authenticated but
// never encrypted; Transport uses it for HEARTBEAT.
func (c *CryptoContext) Sign(m *message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	m.Sign(c.key)
	return nil
}

// Verify checks m.Checksum against the owned key without touching payload
// contents, for HEARTBEAT and other sign-only kinds.
func (c *CryptoContext) Verify(m *message.Message) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return m.VerifyChecksum(c.key), nil
}

// SignAndEncrypt replaces m.Payload with base64(nonce||ciphertext||tag)
// and stamps m.Checksum over the resulting ciphertext, encrypt-then-MAC
// (spec.md Section 4.6 send() step 1). The checksum therefore covers the
// wire payload, not the plaintext, so a tampered checksum is caught before
// decryption is ever attempted.
func (c *CryptoContext) SignAndEncrypt(m *message.Message, plaintext []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	blob, err := crypto.Encrypt(plaintext, c.key)
	if err != nil {
		return err
	}
	m.Payload = []byte(blob)
	m.Sign(c.key)
	return nil
}

// VerifyAndDecrypt checks m.Checksum first; only on success does it
// attempt to open the AES-GCM ciphertext in m.Payload. Ordering integrity
// before decryption means a forged or corrupted frame never reaches the
// AEAD at all (spec.md Section 4.6 deliver()).
func (c *CryptoContext) VerifyAndDecrypt(m *message.Message) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if !m.VerifyChecksum(c.key) {
		return nil, ErrIntegrityFailed
	}
	return crypto.Decrypt(string(m.Payload), c.key)
}

// ExportKey returns a copy of the owned key bytes, for a pairing finalizer
// to persist into a PairedPeer record. Returns nil if closed.
func (c *CryptoContext) ExportKey() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	owned := make([]byte, len(c.key))
	copy(owned, c.key)
	return owned
}

// Close overwrites the owned key bytes with zeroes. Subsequent operations
// return ErrClosed. Safe to call more than once.
func (c *CryptoContext) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for i := range c.key {
		c.key[i] = 0
	}
	c.closed = true
}

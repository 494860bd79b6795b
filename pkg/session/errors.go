package session

import "errors"

// ErrInvalidKey is returned when a key of the wrong length is supplied to
// ImportKey.
var ErrInvalidKey = errors.New("session: key must be exactly 32 bytes")

// ErrClosed is returned by any CryptoContext operation attempted after
// Close has zeroed its key.
var ErrClosed = errors.New("session: crypto context closed")

// ErrIntegrityFailed is returned by VerifyAndDecrypt when the checksum
// does not match; decryption is never attempted in this case.
var ErrIntegrityFailed = errors.New("session: checksum verification failed")

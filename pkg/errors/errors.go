// Package errors centralizes the shared error kinds of spec.md Section 7.
//
// Each subsystem package still keeps its own narrow errors.go for
// package-local sentinels; this package holds only the kinds that cross
// a package boundary and are meant to be inspected by the caller of
// Transport, the link manager, or the recognizer.
package errors

import "errors"

// Sentinel error kinds. Exported as values, not types, except where a
// kind needs an attached classification (RecognizerError).
var (
	// ErrProtocol indicates malformed JSON, an unknown message kind, or a
	// malformed pairing payload. Always a local drop; never fatal.
	ErrProtocol = errors.New("speech2prompt: protocol error")

	// ErrIntegrity indicates a checksum mismatch on an inbound message.
	// The frame is dropped; the connection stays up.
	ErrIntegrity = errors.New("speech2prompt: integrity error")

	// ErrDecrypt indicates an AES-GCM tag mismatch after a checksum that
	// already passed. This should not happen in normal operation and
	// forces a disconnect and session close.
	ErrDecrypt = errors.New("speech2prompt: decrypt error")

	// ErrAckTimeout indicates no ACK arrived within the per-send timeout.
	ErrAckTimeout = errors.New("speech2prompt: ack timeout")

	// ErrLink indicates a GATT write failure, service discovery failure,
	// or missing characteristic.
	ErrLink = errors.New("speech2prompt: link error")

	// ErrPairing indicates the peer rejected pairing, sent no device_id,
	// or the user cancelled. Terminal for the current attempt.
	ErrPairing = errors.New("speech2prompt: pairing error")

	// ErrClosed indicates an operation was attempted after the owning
	// component (CryptoContext, Transport, link) was closed.
	ErrClosed = errors.New("speech2prompt: closed")

	// ErrCancelled indicates an in-flight operation was cancelled by a
	// disconnect() or equivalent teardown.
	ErrCancelled = errors.New("speech2prompt: cancelled")
)

// RecognizerErrorClass discriminates transient recognizer errors (ignored,
// retried quickly) from real errors (surfaced, backed off) per spec.md
// Section 4.10.
type RecognizerErrorClass int

const (
	// RecognizerErrorTransient covers "no speech", "speech timeout", and
	// "client busy": restart immediately or after at most 1s, never
	// surfaced to the user.
	RecognizerErrorTransient RecognizerErrorClass = iota

	// RecognizerErrorReal covers permission, audio, network, server, and
	// unsupported-language failures: surfaced, backed off exponentially.
	RecognizerErrorReal

	// RecognizerErrorRateLimited covers "too many requests": a fixed 30s
	// delay regardless of attempt count.
	RecognizerErrorRateLimited
)

// RecognizerError wraps a platform recognizer error code with its
// classification.
type RecognizerError struct {
	Code  string
	Class RecognizerErrorClass
}

func (e *RecognizerError) Error() string {
	return "speech2prompt: recognizer error (" + e.Code + ")"
}

// IsTransient reports whether this error should be silently retried.
func (e *RecognizerError) IsTransient() bool {
	return e.Class == RecognizerErrorTransient
}

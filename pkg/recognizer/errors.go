package recognizer

import (
	stderrors "errors"

	serrors "github.com/speech2prompt/core/pkg/errors"
)

// ErrAlreadyRunning is returned by Start when the recognizer is not IDLE.
var ErrAlreadyRunning = stderrors.New("recognizer: already running")

// ErrNotRunning is returned by Stop when the recognizer is already IDLE.
var ErrNotRunning = stderrors.New("recognizer: not running")

// ErrLockedOut is surfaced after five consecutive real errors (spec.md
// Section 4.10): auto-restart stops entirely until Resume is called.
var ErrLockedOut = stderrors.New("recognizer: too many consecutive errors, user action required")

// classify maps a platform recognizer error code to a *serrors.RecognizerError
// per spec.md Section 4.10's table. Unknown codes classify as Real: an
// unrecognized failure is surfaced rather than silently retried.
func classify(code string) *serrors.RecognizerError {
	class := serrors.RecognizerErrorReal
	switch code {
	case "no_speech", "speech_timeout", "client_busy":
		class = serrors.RecognizerErrorTransient
	case "rate_limited", "too_many_requests":
		class = serrors.RecognizerErrorRateLimited
	}
	return &serrors.RecognizerError{Code: code, Class: class}
}

package link

import "errors"

// ErrServiceMissing is returned by connect() when the peer does not
// expose the three required characteristics (spec.md Section 4.5).
var ErrServiceMissing = errors.New("link: required service or characteristic missing")

// ErrTimeout names a link timeout. Manager does not return it: a
// connect() that runs out of time returns the adapter's or the
// context's own error.
var ErrTimeout = errors.New("link: timeout")

// ErrNotConnected names a send outside the CONNECTED state. Manager does
// not return it: SendRaw queues such a message instead.
var ErrNotConnected = errors.New("link: not connected")

// ErrQueueOverflow is surfaced (not returned) when the outbound queue
// drops a message during RECONNECTING, per spec.md Section 4.5.
var ErrQueueOverflow = errors.New("link: outbound queue overflow")

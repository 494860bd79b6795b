package pairing

import "errors"

// ErrNoPending is returned by HandlePairAck when no StartPairing call is
// outstanding for the given peer address.
var ErrNoPending = errors.New("pairing: no pairing in progress for this peer")

// ErrRejected is returned by HandlePairAck on status=ERROR or a missing
// device_id (spec.md Section 9 Open Question 1: a PAIR_ACK without
// device_id is always rejected, regardless of status).
var ErrRejected = errors.New("pairing: peer rejected pairing")

// Package identity generates the local_device_id of spec.md Section 4.7
// step 1: a stable, per-install 128-bit random identifier used when the
// platform has no stable ID of its own to offer.
package identity

import "github.com/google/uuid"

// GenerateDeviceID returns a fresh 128-bit random device identifier,
// formatted as a UUID string. Callers persist the result for reuse across
// restarts; this function itself has no notion of storage.
func GenerateDeviceID() string {
	return uuid.New().String()
}

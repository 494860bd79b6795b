package message

import "errors"

// ErrUnknownKind is returned by Decode when the wire `t` field is not one
// of the six defined kinds (spec.md Section 3).
var ErrUnknownKind = errors.New("message: unknown kind")

// ErrMalformed is returned by Decode when the envelope is not valid JSON.
// Missing fields are not rejected; they decode as zero values.
var ErrMalformed = errors.New("message: malformed envelope")

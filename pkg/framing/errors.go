package framing

import "errors"

// ErrBufferOverflow is returned by Reassembler.Feed when accumulating a
// chunk would exceed MaxReassemblyBytes (spec.md Open Question 3). The
// reassembler resets itself before returning this error.
var ErrBufferOverflow = errors.New("framing: reassembly buffer overflow")

// ErrMTUTooSmall is returned by Chunk when mtu leaves no room for the
// frame header plus at least one payload byte.
var ErrMTUTooSmall = errors.New("framing: mtu too small for header")

package transport

import (
	"github.com/speech2prompt/core/pkg/link"
	"github.com/speech2prompt/core/pkg/message"
)

// Link is the subset of *link.Manager Transport depends on. Declared as
// an interface, following the teacher's pattern of depending on narrow
// collaborator interfaces (pkg/discovery.MDNSServerFactory) rather than a
// concrete type, so tests can substitute an in-memory fake.
type Link interface {
	// SendRaw hands one already-encoded frame to the link layer, tagged
	// with its kind so a not-yet-reconnected queue can apply spec.md
	// Section 5's priority-aware overflow rule.
	SendRaw(kind message.Kind, data []byte) error
	Inbound() <-chan []byte
	StateChanges() <-chan link.ConnectionState
	Errors() <-chan error
	State() link.ConnectionState
	NotifyPairingResult(ok bool)
	Disconnect() error
}

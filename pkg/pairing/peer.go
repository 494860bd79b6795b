// Package pairing implements the pairing handshake and peer store of
// spec.md Section 4.7: PAIR_REQ/PAIR_ACK exchange, PIN-derived key
// installation, and the persisted PairedPeer record.
package pairing

import "time"

// PairedPeer is the persisted record of one completed pairing (spec.md
// Section 3). Uniqueness key is PeerAddress. SharedKey is expected to be
// stored at rest inside a platform-encrypted keystore; this package treats
// it as an opaque 32-byte value and never writes it to disk itself.
type PairedPeer struct {
	PeerAddress   string
	PeerName      string
	PeerDeviceID  string
	SharedKey     []byte
	PairedAt      time.Time
	LastConnected time.Time
}

// Keystore is the platform collaborator that persists PairedPeer records,
// following the teacher's pattern of naming a small platform-backed
// interface for the one piece of state that must survive a process
// restart (compare pkg/discovery.MDNSServerFactory).
type Keystore interface {
	// Get returns the stored peer for peerAddress, or ok=false if none.
	Get(peerAddress string) (PairedPeer, bool)

	// Put persists (or replaces) the record for peer.PeerAddress.
	Put(peer PairedPeer) error

	// Delete removes any stored record for peerAddress. Used by forget().
	Delete(peerAddress string) error
}

// MemoryKeystore is an in-process Keystore, useful for tests and for
// platforms that delegate real persistence to an outer layer.
type MemoryKeystore struct {
	peers map[string]PairedPeer
}

// NewMemoryKeystore returns an empty MemoryKeystore.
func NewMemoryKeystore() *MemoryKeystore {
	return &MemoryKeystore{peers: make(map[string]PairedPeer)}
}

func (k *MemoryKeystore) Get(peerAddress string) (PairedPeer, bool) {
	p, ok := k.peers[peerAddress]
	return p, ok
}

func (k *MemoryKeystore) Put(peer PairedPeer) error {
	k.peers[peer.PeerAddress] = peer
	return nil
}

func (k *MemoryKeystore) Delete(peerAddress string) error {
	delete(k.peers, peerAddress)
	return nil
}

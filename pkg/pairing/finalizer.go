package pairing

import (
	"sync"
	"time"

	"github.com/speech2prompt/core/pkg/logging"
	"github.com/speech2prompt/core/pkg/session"
)

// Sender is the collaborator Finalizer uses to put an unencrypted,
// unsigned PAIR_REQ on the wire. The link/transport layer implements this;
// pkg/pairing has no notion of framing or GATT itself.
type Sender interface {
	SendPairRequest(peerAddress string, payload RequestPayload) error
}

// pending tracks one in-flight StartPairing call awaiting its PAIR_ACK.
type pending struct {
	peerName      string
	localDeviceID string
	pin           string // empty when resuming from a stored shared key
	existing      *PairedPeer
}

// FinalizerConfig configures a Finalizer.
type FinalizerConfig struct {
	Keystore      Keystore
	Sender        Sender
	LoggerFactory logging.Factory
}

// Finalizer drives the pairing handshake of spec.md Section 4.7: sending
// PAIR_REQ when the link manager enters AWAITING_PAIRING, and completing
// or rejecting the pairing when a PAIR_ACK arrives.
type Finalizer struct {
	keystore Keystore
	sender   Sender
	log      logging.Logger

	mu      sync.Mutex
	pending map[string]pending
}

// NewFinalizer constructs a Finalizer.
func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	return &Finalizer{
		keystore: cfg.Keystore,
		sender:   cfg.Sender,
		log:      logging.Scoped(cfg.LoggerFactory, "pairing"),
		pending:  make(map[string]pending),
	}
}

// StartPairing begins the handshake for peerAddress (spec.md Section 4.7
// steps 1-2). pin is the user-entered PIN; it is ignored if a stored
// pairing already exists for peerAddress, in which case reconnection uses
// the stored shared key instead, per spec.md Section 4.7's closing note.
func (f *Finalizer) StartPairing(peerAddress, peerName, localDeviceID, pin string) error {
	f.mu.Lock()
	existing, hasExisting := f.keystore.Get(peerAddress)
	p := pending{peerName: peerName, localDeviceID: localDeviceID, pin: pin}
	if hasExisting {
		stored := existing
		p.existing = &stored
	}
	f.pending[peerAddress] = p
	f.mu.Unlock()

	f.log.Debugf("pairing: sending PAIR_REQ to %s", peerAddress)
	return f.sender.SendPairRequest(peerAddress, RequestPayload{
		DeviceID:   localDeviceID,
		DeviceName: peerName,
	})
}

// HandlePairAck completes or rejects the handshake for peerAddress (spec.md
// Section 4.7 steps 3-5). Any PAIR_ACK with an empty device_id is rejected
// with ErrRejected regardless of status, resolving Section 9 Open
// Question 1. On success it returns the installed CryptoContext and the
// PairedPeer record, already persisted to the Keystore.
func (f *Finalizer) HandlePairAck(peerAddress string, ack AckPayload) (*session.CryptoContext, PairedPeer, error) {
	f.mu.Lock()
	p, ok := f.pending[peerAddress]
	if ok {
		delete(f.pending, peerAddress)
	}
	f.mu.Unlock()

	if !ok {
		return nil, PairedPeer{}, ErrNoPending
	}

	if ack.DeviceID == "" || ack.Status != StatusOK {
		f.log.Warnf("pairing: rejected PAIR_ACK from %s (device_id=%q status=%q error=%q)",
			peerAddress, ack.DeviceID, ack.Status, ack.Error)
		return nil, PairedPeer{}, ErrRejected
	}

	var ctx *session.CryptoContext
	var err error
	if p.existing != nil {
		ctx, err = session.ImportKey(p.existing.SharedKey)
	} else {
		ctx = session.NewCryptoContext(p.pin, p.localDeviceID, ack.DeviceID)
	}
	if err != nil {
		return nil, PairedPeer{}, err
	}

	now := currentTime()
	peer := PairedPeer{
		PeerAddress:   peerAddress,
		PeerName:      p.peerName,
		PeerDeviceID:  ack.DeviceID,
		LastConnected: now,
	}
	if p.existing != nil {
		peer.SharedKey = p.existing.SharedKey
		peer.PairedAt = p.existing.PairedAt
	} else {
		peer.SharedKey = ctx.ExportKey()
		peer.PairedAt = now
	}

	if err := f.keystore.Put(peer); err != nil {
		return nil, PairedPeer{}, err
	}

	f.log.Infof("pairing: completed with %s (peer_device_id=%s)", peerAddress, ack.DeviceID)
	return ctx, peer, nil
}

// currentTime is a seam so tests can inject deterministic timestamps; the
// spec treats paired_at/last_connected as wall-clock but takes no view on
// the clock source.
var currentTime = time.Now

// Package transport implements spec.md Section 4.6: it wraps a Link, a
// session.CryptoContext, and the message codec into send()/deliver().
//
// Heartbeat emission and missed-ACK tracking live here rather than in
// pkg/link, even though spec.md Section 4.5 describes them under the
// link manager: answering a heartbeat's ACK and noticing a missed one
// both require decoding the message envelope, which only this layer can
// do. Transport calls link.Manager's Disconnect() when two consecutive
// heartbeats go unanswered. Disconnect leaves the link DISCONNECTED and
// cancels any reconnect in flight; no reconnect is started afterwards,
// so a new Connect call is what brings the link back.
package transport

import (
	"strconv"
	"sync"
	"time"

	"github.com/speech2prompt/core/pkg/config"
	serrors "github.com/speech2prompt/core/pkg/errors"
	"github.com/speech2prompt/core/pkg/link"
	"github.com/speech2prompt/core/pkg/logging"
	"github.com/speech2prompt/core/pkg/message"
	"github.com/speech2prompt/core/pkg/pairing"
	"github.com/speech2prompt/core/pkg/session"
)

// Delivered is a decoded, decrypted inbound message handed to the
// dispatch layer (spec.md Section 4.6 deliver()'s "publish to the
// inbound subscriber").
type Delivered struct {
	Kind    message.Kind
	Payload []byte
}

// Config configures a Transport.
type Config struct {
	Config        config.Config
	Link          Link
	Keystore      pairing.Keystore
	LocalDeviceID string
	LoggerFactory logging.Factory
}

// Transport is the send()/deliver() owner of spec.md Section 4.6.
type Transport struct {
	cfg           config.Config
	link          Link
	localDeviceID string
	finalizer     *pairing.Finalizer
	log           logging.Logger

	mu          sync.Mutex
	session     *session.CryptoContext
	peerAddress string
	// outstandingHeartbeats tracks every heartbeat timestamp sent but not
	// yet ACKed. HeartbeatInterval is normally shorter than
	// HeartbeatAckTimeout (config.go), so several heartbeats are in
	// flight at once; a single last-sent slot would let a fresh
	// heartbeat silently erase the record of an earlier one that never
	// got ACKed, masking the missed-heartbeat count entirely.
	outstandingHeartbeats map[int64]struct{}
	missedHeartbeats      int

	waiters *waiterTable
	inbound chan Delivered
	errorsC chan error
	done    chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Transport. The returned value implements
// pairing.Sender, so its own pairing.Finalizer is wired with itself as
// the sender (a PAIR_REQ is sent exactly like any other message, just
// never signed or encrypted).
func New(cfg Config) *Transport {
	t := &Transport{
		cfg:                   cfg.Config,
		link:                  cfg.Link,
		localDeviceID:         cfg.LocalDeviceID,
		log:                   logging.Scoped(cfg.LoggerFactory, "transport"),
		waiters:               newWaiterTable(),
		outstandingHeartbeats: make(map[int64]struct{}),
		inbound:               make(chan Delivered, 64),
		errorsC:               make(chan error, 16),
		done:                  make(chan struct{}),
	}
	t.finalizer = pairing.NewFinalizer(pairing.FinalizerConfig{
		Keystore:      cfg.Keystore,
		Sender:        t,
		LoggerFactory: cfg.LoggerFactory,
	})
	return t
}

// Start launches the deliver loop and the heartbeat timer. Safe to call
// once per Transport lifetime.
func (t *Transport) Start() {
	t.wg.Add(2)
	go t.deliverLoop()
	go t.heartbeatLoop()
}

// Stop halts both loops and releases the owned session key, if any.
func (t *Transport) Stop() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.wg.Wait()

	t.mu.Lock()
	sess := t.session
	t.session = nil
	t.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// Inbound returns decoded, decrypted messages in delivery order.
func (t *Transport) Inbound() <-chan Delivered {
	return t.inbound
}

// Errors returns transport-level errors: protocol errors, integrity
// failures, and anything the underlying Link surfaces.
func (t *Transport) Errors() <-chan error {
	return t.errorsC
}

// LinkStateChanges passes through the underlying Link's connection_state
// observable (spec.md Section 4.5), so a caller needs only a Transport to
// drive UI and StartPairing.
func (t *Transport) LinkStateChanges() <-chan link.ConnectionState {
	return t.link.StateChanges()
}

func (t *Transport) emitError(err error) {
	select {
	case t.errorsC <- err:
	default:
	}
}

func (t *Transport) nextTimestamp() int64 {
	return time.Now().UnixNano()
}

// StartPairing begins the handshake of spec.md Section 4.7 for
// peerAddress. pin is ignored when a stored pairing already exists; the
// finalizer re-derives the key from the stored shared key instead.
func (t *Transport) StartPairing(peerAddress, peerName, pin string) error {
	t.mu.Lock()
	t.peerAddress = peerAddress
	t.mu.Unlock()
	return t.finalizer.StartPairing(peerAddress, peerName, t.localDeviceID, pin)
}

// SendPairRequest implements pairing.Sender: Transport puts its own
// PAIR_REQ on the wire like any other message, unsigned and unencrypted
// because message.Kind.IsBootstrap() excludes it from Send's
// sign/encrypt step.
func (t *Transport) SendPairRequest(peerAddress string, payload pairing.RequestPayload) error {
	data, err := payload.Marshal()
	if err != nil {
		return err
	}
	// PAIR_REQ's eventual waiter will almost always time out: the peer
	// answers with PAIR_ACK, not ACK, and the real completion signal is
	// HandlePairAck via deliver(), not this call's return value.
	_, err = t.Send(message.KindPairReq, data)
	if err == serrors.ErrAckTimeout {
		return nil
	}
	return err
}

// Send implements spec.md Section 4.6 send(): it signs and/or encrypts
// payload per msg.kind, serializes to JSON, hands the bytes to the Link,
// and for non-ACK, non-HEARTBEAT kinds blocks for an ACK up to
// cfg.AckTimeout.
func (t *Transport) Send(kind message.Kind, payload []byte) (bool, error) {
	ts := t.nextTimestamp()
	m := message.New(kind, payload, ts)

	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()

	switch {
	case kind.IsBootstrap(), kind == message.KindAck:
		// never signed or encrypted (spec.md Section 4.7 steps 2-3).
	case kind == message.KindHeartbeat:
		if sess != nil {
			if err := sess.Sign(m); err != nil {
				return false, err
			}
		}
	default:
		if sess != nil {
			if err := sess.SignAndEncrypt(m, payload); err != nil {
				return false, err
			}
		}
	}

	data, err := m.Encode()
	if err != nil {
		return false, err
	}

	if kind == message.KindAck || kind == message.KindHeartbeat {
		return true, t.link.SendRaw(kind, data)
	}

	waitCh := t.waiters.register(ts)
	if err := t.link.SendRaw(kind, data); err != nil {
		t.waiters.cancel(ts)
		return false, err
	}

	select {
	case ok := <-waitCh:
		return ok, nil
	case <-time.After(t.cfg.AckTimeout):
		t.waiters.cancel(ts)
		return false, serrors.ErrAckTimeout
	}
}

func (t *Transport) deliverLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case raw, ok := <-t.link.Inbound():
			if !ok {
				return
			}
			m, err := message.Decode(raw)
			if err != nil {
				t.log.Warnf("transport: dropping malformed frame: %v", err)
				t.emitError(serrors.ErrProtocol)
				continue
			}
			t.deliver(m)
		case err := <-t.link.Errors():
			t.emitError(err)
		}
	}
}

// deliver implements spec.md Section 4.6 deliver().
func (t *Transport) deliver(m *message.Message) {
	switch m.Kind {
	case message.KindAck:
		t.handleAck(m)
	case message.KindPairAck:
		t.handlePairAck(m)
	case message.KindHeartbeat:
		reply := strconv.FormatInt(m.Timestamp, 10)
		go func() {
			if _, err := t.Send(message.KindAck, []byte(reply)); err != nil {
				t.log.Warnf("transport: failed to ack heartbeat: %v", err)
			}
		}()
	default:
		t.mu.Lock()
		sess := t.session
		t.mu.Unlock()
		if sess == nil {
			t.log.Warnf("transport: dropping %s with no session key installed", m.Kind)
			t.emitError(serrors.ErrProtocol)
			return
		}
		plaintext, err := sess.VerifyAndDecrypt(m)
		if err != nil {
			t.log.Warnf("transport: integrity failure on inbound %s: %v", m.Kind, err)
			t.emitError(serrors.ErrIntegrity)
			return
		}
		select {
		case t.inbound <- Delivered{Kind: m.Kind, Payload: plaintext}:
		default:
			t.log.Warnf("transport: inbound buffer full, dropping a %s message", m.Kind)
		}
	}
}

func (t *Transport) handleAck(m *message.Message) {
	ts, err := strconv.ParseInt(string(m.Payload), 10, 64)
	if err != nil {
		t.emitError(serrors.ErrProtocol)
		return
	}

	t.mu.Lock()
	if _, ok := t.outstandingHeartbeats[ts]; ok {
		delete(t.outstandingHeartbeats, ts)
		t.missedHeartbeats = 0
	}
	t.mu.Unlock()

	t.waiters.complete(ts, true)
}

func (t *Transport) handlePairAck(m *message.Message) {
	ack, err := pairing.ParseAckPayload(m.Payload)
	if err != nil {
		t.log.Warnf("transport: malformed PAIR_ACK: %v", err)
		t.link.NotifyPairingResult(false)
		return
	}

	t.mu.Lock()
	peerAddress := t.peerAddress
	t.mu.Unlock()

	ctx, peer, err := t.finalizer.HandlePairAck(peerAddress, ack)
	if err != nil {
		t.log.Warnf("transport: pairing with %s failed: %v", peerAddress, err)
		t.link.NotifyPairingResult(false)
		return
	}

	t.mu.Lock()
	old := t.session
	t.session = ctx
	t.mu.Unlock()
	if old != nil {
		old.Close()
	}

	t.log.Infof("transport: paired with %s (peer_device_id=%s)", peerAddress, peer.PeerDeviceID)
	t.link.NotifyPairingResult(true)
}

func (t *Transport) heartbeatLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if t.link.State() == link.StateConnected {
				t.sendHeartbeat()
			}
		}
	}
}

func (t *Transport) sendHeartbeat() {
	ts := t.nextTimestamp()

	t.mu.Lock()
	t.outstandingHeartbeats[ts] = struct{}{}
	sess := t.session
	t.mu.Unlock()

	m := message.New(message.KindHeartbeat, nil, ts)
	if sess != nil {
		if err := sess.Sign(m); err != nil {
			t.emitError(err)
			return
		}
	}
	data, err := m.Encode()
	if err != nil {
		t.emitError(err)
		return
	}
	if err := t.link.SendRaw(message.KindHeartbeat, data); err != nil {
		t.emitError(err)
		return
	}

	t.wg.Add(1)
	go t.awaitHeartbeatAck(ts)
}

func (t *Transport) awaitHeartbeatAck(ts int64) {
	defer t.wg.Done()
	select {
	case <-t.done:
		return
	case <-time.After(t.cfg.HeartbeatAckTimeout):
	}

	t.mu.Lock()
	if _, ok := t.outstandingHeartbeats[ts]; !ok {
		// Already ACKed by handleAck.
		t.mu.Unlock()
		return
	}
	delete(t.outstandingHeartbeats, ts)
	t.missedHeartbeats++
	missed := t.missedHeartbeats
	if missed >= t.cfg.MaxMissedHeartbeats {
		t.missedHeartbeats = 0
	}
	t.mu.Unlock()

	if missed < t.cfg.MaxMissedHeartbeats {
		return
	}

	t.log.Warnf("transport: %d consecutive missed heartbeat acks, forcing disconnect", missed)
	if err := t.link.Disconnect(); err != nil {
		t.emitError(err)
	}
}

package link

import (
	"context"
	"sync"
	"time"

	"github.com/speech2prompt/core/pkg/backoff"
	"github.com/speech2prompt/core/pkg/config"
	"github.com/speech2prompt/core/pkg/framing"
	"github.com/speech2prompt/core/pkg/logging"
	"github.com/speech2prompt/core/pkg/message"
)

// queuedMessage is one outbound frame waiting for a reconnect to flush,
// tagged with its kind so overflow can apply spec.md Section 5's
// priority rule instead of a blind FIFO drop.
type queuedMessage struct {
	kind message.Kind
	data []byte
}

// ManagerConfig configures a Manager, following the teacher's
// Config-struct-with-LoggerFactory-field convention
// (pkg/discovery.AdvertiserConfig).
type ManagerConfig struct {
	Config        config.Config
	Adapter       Adapter
	LoggerFactory logging.Factory
}

// Manager is the BLE central of spec.md Section 4.5. It owns GATT
// connect/scan/characteristics, the ConnectionState machine, chunked
// outbound writes, reconnect-with-backoff, and the bounded outbound
// queue used while RECONNECTING.
//
// Heartbeat emission and missed-ACK tracking are deliberately NOT owned
// here even though spec.md Section 4.5 describes them under the link
// manager: answering a heartbeat's ACK, and detecting a missed one,
// requires decoding the message envelope and consulting the session
// layer, both of which sit above Link in the dependency order of spec.md
// Section 2. pkg/transport owns the heartbeat timer and drives this
// Manager's SendRaw/Disconnect on its behalf; Manager still exposes
// the outbound queue depth (QueuedCount) that backpressure diagnostics want.
type Manager struct {
	cfg     config.Config
	adapter Adapter
	log     logging.Logger

	mu          sync.Mutex
	state       ConnectionState
	peerAddress string
	conn        Connection
	commandRX   Characteristic
	mtu         int
	reassembler *framing.Reassembler

	reconnectPolicy *backoff.Policy
	outboundQueue   []queuedMessage

	inbound chan []byte
	errorsC chan error
	stateC  chan ConnectionState
	done    chan struct{}
}

// NewManager constructs a Manager. cfg.Config should normally be
// config.Default().
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:             cfg.Config,
		adapter:         cfg.Adapter,
		log:             logging.Scoped(cfg.LoggerFactory, "link"),
		state:           StateDisconnected,
		reassembler:     framing.NewReassembler(cfg.Config.MaxReassemblyBytes),
		reconnectPolicy: backoff.NewPolicy(cfg.Config.ReconnectBackoffBase, cfg.Config.ReconnectBackoffCap, cfg.Config.MaxReconnectAttempts),
		inbound:         make(chan []byte, 64),
		errorsC:         make(chan error, 16),
		stateC:          make(chan ConnectionState, 16),
		done:            make(chan struct{}),
	}
}

// State returns the current ConnectionState.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StateChanges returns the connection_state observable of spec.md Section
// 4.5.
func (m *Manager) StateChanges() <-chan ConnectionState {
	return m.stateC
}

// Errors returns the error observable of spec.md Section 4.5.
func (m *Manager) Errors() <-chan error {
	return m.errorsC
}

// Inbound returns the stream of complete, reassembled message byte
// buffers, in arrival order (spec.md Section 4.5's inbound stream,
// pre-decode).
func (m *Manager) Inbound() <-chan []byte {
	return m.inbound
}

// QueuedCount returns the number of outbound messages waiting for a
// reconnect to flush (SPEC_FULL.md Section 12, grounded on
// gostt-writer.Client.QueueLen).
func (m *Manager) QueuedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outboundQueue)
}

func (m *Manager) setState(s ConnectionState) {
	m.state = s
	select {
	case m.stateC <- s:
	default:
	}
}

func (m *Manager) emitError(err error) {
	select {
	case m.errorsC <- err:
	default:
	}
}

// StartScan begins a bounded BLE scan filtered by ServiceUUID, deduping
// peers by address and keeping the latest RSSI seen. The scan stops when
// window elapses or ctx is cancelled (spec.md Section 4.5 start_scan()).
func (m *Manager) StartScan(ctx context.Context, window time.Duration) ([]PeerInfo, error) {
	if err := m.adapter.Enable(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.setState(StateScanning)
	m.mu.Unlock()

	scanCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	found, err := m.adapter.Scan(scanCtx, ServiceUUID)
	if err != nil {
		return nil, err
	}

	byAddress := make(map[string]PeerInfo, len(found))
	var order []string
	for _, p := range found {
		if _, seen := byAddress[p.Address]; !seen {
			order = append(order, p.Address)
		}
		byAddress[p.Address] = p
	}

	peers := make([]PeerInfo, 0, len(order))
	for _, addr := range order {
		peers = append(peers, byAddress[addr])
	}
	return peers, nil
}

// Connect initiates a GATT connection to peerAddress: negotiates MTU,
// discovers the three named characteristics, subscribes both notify
// characteristics, and transitions to CONNECTED or AWAITING_PAIRING
// depending on hasStoredKey (spec.md Section 4.5 connect()).
func (m *Manager) Connect(ctx context.Context, peerAddress string, hasStoredKey bool) error {
	m.mu.Lock()
	// A prior Disconnect() closes m.done permanently so any in-flight
	// reconnectLoop exits; reopen it here so a later unexpected drop on
	// this new connection can start a fresh reconnectLoop instead of
	// seeing an already-closed done and exiting immediately.
	select {
	case <-m.done:
		m.done = make(chan struct{})
	default:
	}
	m.setState(StateConnecting)
	m.mu.Unlock()

	conn, commandRX, mtu, err := m.dial(ctx, peerAddress)
	if err != nil {
		m.emitError(err)
		return err
	}

	m.mu.Lock()
	m.peerAddress = peerAddress
	m.conn = conn
	m.commandRX = commandRX
	m.mtu = mtu
	m.reassembler.Reset()
	if hasStoredKey {
		m.setState(StateConnected)
	} else {
		m.setState(StateAwaitingPairing)
	}
	m.mu.Unlock()

	conn.OnDisconnect(m.handleUnexpectedDisconnect)
	return nil
}

// dial performs the connect+MTU+discovery+subscribe sequence shared by
// Connect and the reconnect loop.
func (m *Manager) dial(ctx context.Context, peerAddress string) (Connection, Characteristic, int, error) {
	if err := m.adapter.Enable(); err != nil {
		return nil, nil, 0, err
	}

	conn, err := m.adapter.Connect(ctx, peerAddress)
	if err != nil {
		return nil, nil, 0, err
	}

	mtu, err := conn.NegotiateMTU(m.cfg.TargetMTU)
	if err != nil {
		_ = conn.Disconnect()
		return nil, nil, 0, err
	}
	if mtu < config.MinBLEMTU {
		mtu = config.MinBLEMTU
	}

	commandRX, err := conn.DiscoverCharacteristic(ServiceUUID, CommandRXCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return nil, nil, 0, ErrServiceMissing
	}
	responseTX, err := conn.DiscoverCharacteristic(ServiceUUID, ResponseTXCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return nil, nil, 0, ErrServiceMissing
	}
	status, err := conn.DiscoverCharacteristic(ServiceUUID, StatusCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return nil, nil, 0, ErrServiceMissing
	}

	if err := responseTX.Subscribe(m.onNotify); err != nil {
		_ = conn.Disconnect()
		return nil, nil, 0, err
	}
	if err := status.Subscribe(m.onNotify); err != nil {
		_ = conn.Disconnect()
		return nil, nil, 0, err
	}

	return conn, commandRX, mtu, nil
}

// onNotify feeds one inbound packet to the reassembler, publishing a
// complete message buffer to Inbound() once HAS_MORE=0 arrives.
func (m *Manager) onNotify(packet []byte) {
	complete, done, err := m.reassembler.Feed(packet)
	if err != nil {
		m.log.Warnf("link: reassembly error: %v", err)
		m.emitError(err)
		return
	}
	if !done {
		return
	}
	select {
	case m.inbound <- complete:
	default:
		m.log.Warnf("link: inbound buffer full, dropping a reassembled message")
	}
}

// NotifyPairingResult drives the AWAITING_PAIRING -> CONNECTED / FAILED
// transition once the layer above has validated (or rejected) a PAIR_ACK.
// Link itself has no notion of pairing payloads.
func (m *Manager) NotifyPairingResult(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwaitingPairing {
		return
	}
	if ok {
		m.setState(StateConnected)
	} else {
		m.setState(StateFailed)
	}
}

// SendRaw chunks data via pkg/framing and writes each packet to
// command_rx in order, pacing writes by InterChunkDelay (spec.md Section
// 4.5 send_raw()). The pairing bootstrap kinds (PAIR_REQ/PAIR_ACK) are
// also written directly while AWAITING_PAIRING. Otherwise, if not
// CONNECTED, the (kind, data) pair is queued (bounded FIFO) for delivery
// once a reconnect succeeds. On overflow,
// spec.md Section 5's priority rule applies: the oldest queued TEXT is
// dropped first, then the oldest queued HEARTBEAT; ACK, COMMAND, and the
// pairing bootstrap kinds are never dropped and take precedence in the
// queue. ErrQueueOverflow is surfaced whenever an eviction happens.
func (m *Manager) SendRaw(kind message.Kind, data []byte) error {
	m.mu.Lock()
	if m.state != StateConnected && !(m.state == StateAwaitingPairing && kind.IsBootstrap()) {
		if len(m.outboundQueue) >= m.cfg.OutboundQueueSize {
			before := len(m.outboundQueue)
			m.evictLowestPriority()
			if len(m.outboundQueue) < before {
				m.emitError(ErrQueueOverflow)
			}
		}
		m.outboundQueue = append(m.outboundQueue, queuedMessage{kind: kind, data: data})
		m.mu.Unlock()
		return nil
	}
	commandRX := m.commandRX
	mtu := m.mtu
	m.mu.Unlock()

	return m.writeChunked(commandRX, mtu, data)
}

// evictLowestPriority removes the oldest droppable entry from
// outboundQueue: the oldest TEXT if one is queued, else the oldest
// HEARTBEAT. ACK, COMMAND, and bootstrap kinds (PAIR_REQ/PAIR_ACK) are
// never evicted, so if the queue holds only those kinds this is a no-op
// and the queue grows past its nominal bound rather than drop one.
// Caller holds m.mu.
func (m *Manager) evictLowestPriority() {
	if m.evictFirstKind(message.KindText) {
		return
	}
	m.evictFirstKind(message.KindHeartbeat)
}

func (m *Manager) evictFirstKind(kind message.Kind) bool {
	for i, qm := range m.outboundQueue {
		if qm.kind == kind {
			m.outboundQueue = append(m.outboundQueue[:i], m.outboundQueue[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) writeChunked(commandRX Characteristic, mtu int, data []byte) error {
	packets, err := framing.Chunk(data, mtu)
	if err != nil {
		return err
	}
	for i, p := range packets {
		if err := commandRX.Write(p); err != nil {
			return ErrServiceMissing
		}
		if i < len(packets)-1 {
			time.Sleep(m.cfg.InterChunkDelay)
		}
	}
	return nil
}

// Disconnect cancels any in-flight reconnect, closes the GATT connection,
// and resets to StateDisconnected (spec.md Section 4.5 disconnect(), and
// the "any -> disconnect() -> DISCONNECTED" table row).
func (m *Manager) Disconnect() error {
	select {
	case <-m.done:
	default:
		close(m.done)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.conn != nil {
		err = m.conn.Disconnect()
	}
	m.conn = nil
	m.commandRX = nil
	if n := len(m.outboundQueue); n > 0 {
		m.log.Warnf("link: disconnect discarding %d queued outbound messages", n)
	}
	m.outboundQueue = nil
	m.reassembler.Reset()
	m.setState(StateDisconnected)
	return err
}

// handleUnexpectedDisconnect is registered with Connection.OnDisconnect
// and drives CONNECTED -> RECONNECTING -> {CONNECTED, DISCONNECTED}.
func (m *Manager) handleUnexpectedDisconnect() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.setState(StateReconnecting)
	peerAddress := m.peerAddress
	m.mu.Unlock()

	m.log.Warnf("link: lost connection to %s, reconnecting", peerAddress)
	go m.reconnectLoop(peerAddress)
}

func (m *Manager) reconnectLoop(peerAddress string) {
	for {
		select {
		case <-m.done:
			return
		default:
		}

		delay, ok := m.reconnectPolicy.Next()
		if !ok {
			m.mu.Lock()
			m.setState(StateDisconnected)
			m.mu.Unlock()
			return
		}

		select {
		case <-m.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, commandRX, mtu, err := m.dial(ctx, peerAddress)
		cancel()
		if err != nil {
			m.log.Warnf("link: reconnect attempt %d failed: %v", m.reconnectPolicy.Attempt(), err)
			continue
		}

		m.mu.Lock()
		m.conn = conn
		m.commandRX = commandRX
		m.mtu = mtu
		m.reassembler.Reset()
		m.setState(StateConnected)
		queued := m.outboundQueue
		m.outboundQueue = nil
		m.mu.Unlock()

		conn.OnDisconnect(m.handleUnexpectedDisconnect)
		m.reconnectPolicy.Reset()

		for _, qm := range queued {
			if err := m.writeChunked(commandRX, mtu, qm.data); err != nil {
				m.log.Warnf("link: failed to flush queued %s message: %v", qm.kind, err)
			}
		}
		return
	}
}

package link

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/speech2prompt/core/pkg/config"
	"github.com/speech2prompt/core/pkg/message"
)

type fakeCharacteristic struct {
	mu       sync.Mutex
	writes   [][]byte
	onNotify func([]byte)
}

func (c *fakeCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *fakeCharacteristic) Subscribe(onNotify func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotify = onNotify
	return nil
}

func (c *fakeCharacteristic) deliver(data []byte) {
	c.mu.Lock()
	fn := c.onNotify
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

type fakeConnection struct {
	mu            sync.Mutex
	mtu           int
	chars         map[string]*fakeCharacteristic
	onDisconnect  func()
	disconnected  bool
}

func newFakeConnection(mtu int) *fakeConnection {
	return &fakeConnection{
		mtu: mtu,
		chars: map[string]*fakeCharacteristic{
			CommandRXCharUUID:   {},
			ResponseTXCharUUID:  {},
			StatusCharUUID:      {},
		},
	}
}

func (c *fakeConnection) NegotiateMTU(target int) (int, error) {
	return c.mtu, nil
}

func (c *fakeConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	ch, ok := c.chars[charUUID]
	if !ok {
		return nil, ErrServiceMissing
	}
	return ch, nil
}

func (c *fakeConnection) OnDisconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

func (c *fakeConnection) Disconnect() error {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConnection) dropUnexpectedly() {
	c.mu.Lock()
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeAdapter struct {
	mu       sync.Mutex
	enabled  bool
	peers    []PeerInfo
	connFunc func(address string) (*fakeConnection, error)
}

func (a *fakeAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
	return nil
}

func (a *fakeAdapter) Scan(ctx context.Context, serviceUUID string) ([]PeerInfo, error) {
	return a.peers, nil
}

func (a *fakeAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	if a.connFunc != nil {
		return a.connFunc(address)
	}
	return newFakeConnection(512), nil
}

func newTestManager(adapter *fakeAdapter) *Manager {
	return NewManager(ManagerConfig{
		Config:  config.Default(),
		Adapter: adapter,
	})
}

func TestConnectTransitionsToAwaitingPairingWithoutStoredKey(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(adapter)

	if err := m.Connect(context.Background(), "addr-1", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := m.State(); got != StateAwaitingPairing {
		t.Fatalf("State() = %v, want AwaitingPairing", got)
	}
}

func TestConnectTransitionsToConnectedWithStoredKey(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(adapter)

	if err := m.Connect(context.Background(), "addr-1", true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := m.State(); got != StateConnected {
		t.Fatalf("State() = %v, want Connected", got)
	}
}

func TestConnectFailsOnMissingCharacteristic(t *testing.T) {
	adapter := &fakeAdapter{
		connFunc: func(address string) (*fakeConnection, error) {
			conn := newFakeConnection(512)
			delete(conn.chars, ResponseTXCharUUID)
			return conn, nil
		},
	}
	m := newTestManager(adapter)

	err := m.Connect(context.Background(), "addr-1", true)
	if err != ErrServiceMissing {
		t.Fatalf("got %v, want ErrServiceMissing", err)
	}
}

func TestSendRawChunksAndWritesInOrder(t *testing.T) {
	adapter := &fakeAdapter{
		connFunc: func(address string) (*fakeConnection, error) {
			return newFakeConnection(config.MinBLEMTU), nil
		},
	}
	m := newTestManager(adapter)
	if err := m.Connect(context.Background(), "addr-1", true); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	m.cfg.InterChunkDelay = 0
	commandRX := m.commandRX.(*fakeCharacteristic)
	m.mu.Unlock()

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := m.SendRaw(message.KindText, payload); err != nil {
		t.Fatalf("SendRaw: %v", err)
	}

	commandRX.mu.Lock()
	writes := commandRX.writes
	commandRX.mu.Unlock()

	if len(writes) < 2 {
		t.Fatalf("expected multiple chunks for a 100-byte payload at default MTU, got %d", len(writes))
	}
	for i, w := range writes {
		isLast := i == len(writes)-1
		hasMore := w[0]&0x80 != 0
		if isLast && hasMore {
			t.Fatal("final packet should not carry HAS_MORE")
		}
		if !isLast && !hasMore {
			t.Fatalf("packet %d should carry HAS_MORE", i)
		}
	}
	var joined []byte
	for _, w := range writes {
		joined = append(joined, w[1:]...)
	}
	if string(joined) != string(payload) {
		t.Fatal("chunk bodies concatenated in write order do not reproduce the payload")
	}
}

func TestSendRawQueuesWhenNotConnected(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(adapter)

	if err := m.SendRaw(message.KindText, []byte("hello")); err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	if got := m.QueuedCount(); got != 1 {
		t.Fatalf("QueuedCount() = %d, want 1", got)
	}
}

// TestSendRawOverflowDropsTextBeforeAckOrCommand reproduces spec.md
// Section 5's priority rule: when the bounded outbound queue overflows
// while disconnected, the oldest TEXT is evicted first, never an ACK or
// COMMAND, even though the TEXT was queued after the ACK.
func TestSendRawOverflowDropsTextBeforeAckOrCommand(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(adapter)
	m.cfg.OutboundQueueSize = 2

	if err := m.SendRaw(message.KindAck, []byte("ack-1")); err != nil {
		t.Fatal(err)
	}
	if err := m.SendRaw(message.KindText, []byte("text-1")); err != nil {
		t.Fatal(err)
	}
	// Queue is now full (ACK, TEXT). A third enqueue must evict the TEXT,
	// not the ACK, even though the ACK is older.
	if err := m.SendRaw(message.KindCommand, []byte("cmd-1")); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	queue := append([]queuedMessage(nil), m.outboundQueue...)
	m.mu.Unlock()

	if len(queue) != 2 {
		t.Fatalf("queue = %+v, want len 2", queue)
	}
	for _, qm := range queue {
		if qm.kind == message.KindText {
			t.Fatalf("TEXT survived overflow, queue = %+v", queue)
		}
	}
	kinds := map[message.Kind]bool{}
	for _, qm := range queue {
		kinds[qm.kind] = true
	}
	if !kinds[message.KindAck] || !kinds[message.KindCommand] {
		t.Fatalf("expected ACK and COMMAND to both survive, queue = %+v", queue)
	}
}

// TestSendRawOverflowFallsBackToHeartbeatWhenNoTextQueued confirms
// HEARTBEAT is the second-priority eviction target once no TEXT remains.
func TestSendRawOverflowFallsBackToHeartbeatWhenNoTextQueued(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(adapter)
	m.cfg.OutboundQueueSize = 2

	if err := m.SendRaw(message.KindHeartbeat, []byte("hb-1")); err != nil {
		t.Fatal(err)
	}
	if err := m.SendRaw(message.KindAck, []byte("ack-1")); err != nil {
		t.Fatal(err)
	}
	if err := m.SendRaw(message.KindCommand, []byte("cmd-1")); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	queue := append([]queuedMessage(nil), m.outboundQueue...)
	m.mu.Unlock()

	for _, qm := range queue {
		if qm.kind == message.KindHeartbeat {
			t.Fatalf("HEARTBEAT survived overflow once it was the only droppable entry, queue = %+v", queue)
		}
	}
}

func TestInboundReassemblesNotifications(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(adapter)
	if err := m.Connect(context.Background(), "addr-1", true); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	fc := conn.(*fakeConnection)
	responseTX := fc.chars[ResponseTXCharUUID]

	responseTX.deliver([]byte{0x80, 'h', 'e'})
	responseTX.deliver([]byte{0x00, 'l', 'l', 'o'})

	select {
	case got := <-m.Inbound():
		if string(got) != "hello" {
			t.Fatalf("reassembled = %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reassembled message")
	}
}

func TestNotifyPairingResultTransitions(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(adapter)
	if err := m.Connect(context.Background(), "addr-1", false); err != nil {
		t.Fatal(err)
	}
	if got := m.State(); got != StateAwaitingPairing {
		t.Fatalf("State() = %v, want AwaitingPairing", got)
	}

	m.NotifyPairingResult(true)
	if got := m.State(); got != StateConnected {
		t.Fatalf("State() after NotifyPairingResult(true) = %v, want Connected", got)
	}
}

func TestDisconnectResetsState(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(adapter)
	if err := m.Connect(context.Background(), "addr-1", true); err != nil {
		t.Fatal(err)
	}
	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got := m.State(); got != StateDisconnected {
		t.Fatalf("State() = %v, want Disconnected", got)
	}
}

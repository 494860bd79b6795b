// Package link implements the BLE central of spec.md Section 4.5: scan,
// connect, GATT characteristic subscription, MTU negotiation, chunked
// writes, and reconnect with backoff. Heartbeat liveness lives in
// pkg/transport.
//
// The collaborator interfaces below are directly grounded on
// other_examples/chaz8081-gostt-writer's internal/ble package — a real
// ESP32 BLE keyboard-injection client that is near-exact prior art for
// this spec — renamed and reshaped from its single write/notify
// characteristic pair to spec.md's three named characteristics
// (command_rx write, response_tx notify, status notify).
package link

import "context"

// PeerInfo describes one discovered BLE peer, emitted by Adapter.Scan.
type PeerInfo struct {
	Address string
	Name    string
	RSSI    int
}

// Characteristic is a single GATT characteristic: writable, or
// notify-subscribable, depending on the characteristic.
type Characteristic interface {
	// Write sends data on a write characteristic (e.g. command_rx).
	Write(data []byte) error

	// Subscribe registers a callback for a notify characteristic (e.g.
	// response_tx, status). The callback fires once per inbound packet.
	Subscribe(onNotify func(data []byte)) error
}

// Connection is an established GATT connection to one peer.
type Connection interface {
	// NegotiateMTU requests target and returns the MTU the peer granted,
	// never below the BLE default of 23 (spec.md Section 4.5 connect()).
	NegotiateMTU(target int) (int, error)

	// DiscoverCharacteristic locates one characteristic by service and
	// characteristic UUID, failing with ErrServiceMissing if absent.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)

	// OnDisconnect registers a callback fired when the link drops
	// unexpectedly (not via a caller-initiated Disconnect).
	OnDisconnect(fn func())

	// Disconnect closes the GATT connection.
	Disconnect() error
}

// Adapter is the platform's BLE central radio.
type Adapter interface {
	// Enable powers on the BLE radio if it is not already on.
	Enable() error

	// Scan discovers peers advertising serviceUUID until ctx is done.
	Scan(ctx context.Context, serviceUUID string) ([]PeerInfo, error)

	// Connect establishes a GATT connection to the peer at address.
	Connect(ctx context.Context, address string) (Connection, error)
}

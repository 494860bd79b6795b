// Package faketest is an in-memory stand-in for a BLE peripheral, used to
// exercise link.Manager end to end without real BLE hardware. It is
// grounded on the teacher's pkg/transport/pipe.go in-memory pipe idea
// (struct-level loopback instead of a net.Conn), adapted to speech2prompt's
// Adapter/Connection/Characteristic capability interfaces instead of a
// raw byte pipe.
package faketest

import (
	"context"
	"sync"

	"github.com/speech2prompt/core/pkg/link"
)

// Characteristic is an in-memory GATT characteristic. Write calls WriteFn
// if set; Subscribe records the notify callback so test code (or a Peer)
// can push bytes back with Notify.
type Characteristic struct {
	mu       sync.Mutex
	onNotify func(data []byte)
	WriteFn  func(data []byte) error
}

func (c *Characteristic) Write(data []byte) error {
	if c.WriteFn != nil {
		return c.WriteFn(data)
	}
	return nil
}

func (c *Characteristic) Subscribe(onNotify func(data []byte)) error {
	c.mu.Lock()
	c.onNotify = onNotify
	c.mu.Unlock()
	return nil
}

// Notify delivers one packet to whatever subscribed.
func (c *Characteristic) Notify(data []byte) {
	c.mu.Lock()
	fn := c.onNotify
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// Connection is an in-memory GATT connection exposing the three named
// characteristics a link.Manager discovers.
type Connection struct {
	MTU        int
	CommandRX  *Characteristic
	ResponseTX *Characteristic
	Status     *Characteristic

	mu           sync.Mutex
	onDisconnect func()
	disconnected bool
}

func (c *Connection) NegotiateMTU(target int) (int, error) {
	if target < c.MTU {
		return target, nil
	}
	return c.MTU, nil
}

func (c *Connection) DiscoverCharacteristic(serviceUUID, charUUID string) (link.Characteristic, error) {
	switch charUUID {
	case link.CommandRXCharUUID:
		return c.CommandRX, nil
	case link.ResponseTXCharUUID:
		return c.ResponseTX, nil
	case link.StatusCharUUID:
		return c.Status, nil
	default:
		return nil, link.ErrServiceMissing
	}
}

func (c *Connection) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	return nil
}

// SimulateLinkLoss fires the registered OnDisconnect callback, as a real
// Adapter would on an unexpected radio drop (spec.md Section 4.5
// CONNECTED -> RECONNECTING).
func (c *Connection) SimulateLinkLoss() {
	c.mu.Lock()
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Adapter is an in-memory link.Adapter backed by a single fixed peer
// connection, for tests that don't exercise multi-peer scanning.
type Adapter struct {
	Peers      []link.PeerInfo
	Conn       *Connection
	ConnectErr error
}

func (a *Adapter) Enable() error { return nil }

func (a *Adapter) Scan(ctx context.Context, serviceUUID string) ([]link.PeerInfo, error) {
	return a.Peers, nil
}

func (a *Adapter) Connect(ctx context.Context, address string) (link.Connection, error) {
	if a.ConnectErr != nil {
		return nil, a.ConnectErr
	}
	return a.Conn, nil
}

package faketest

import (
	"strconv"
	"sync"
	"time"

	"github.com/speech2prompt/core/pkg/crypto"
	"github.com/speech2prompt/core/pkg/framing"
	"github.com/speech2prompt/core/pkg/message"
	"github.com/speech2prompt/core/pkg/pairing"
	"github.com/speech2prompt/core/pkg/session"
)

// Peer is a scripted BLE peripheral counterpart for integration tests: it
// answers PAIR_REQ with a PAIR_ACK (deriving the same shared key
// out-of-band, since this is a test fixture that already knows the PIN),
// ACKs every other message after verifying and decrypting it, and ACKs
// HEARTBEATs. Received plaintext is recorded in order for assertions.
type Peer struct {
	DeviceID string
	PIN      string

	conn        *Connection
	reassembler *framing.Reassembler

	mu       sync.Mutex
	cryptoCtx *session.CryptoContext
	received  []Received
}

// Received is one decoded, decrypted inbound message the Peer observed.
type Received struct {
	Kind    message.Kind
	Payload []byte
}

// NewPeer wires a Peer to conn's command_rx write path.
func NewPeer(conn *Connection, deviceID, pin string, maxReassemblyBytes int) *Peer {
	p := &Peer{
		DeviceID:    deviceID,
		PIN:         pin,
		conn:        conn,
		reassembler: framing.NewReassembler(maxReassemblyBytes),
	}
	conn.CommandRX.WriteFn = p.handleWrite
	return p
}

// Received returns a snapshot of every message the peer has processed.
func (p *Peer) Received() []Received {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Received, len(p.received))
	copy(out, p.received)
	return out
}

func (p *Peer) handleWrite(data []byte) error {
	complete, done, err := p.reassembler.Feed(data)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	return p.handleMessage(complete)
}

func (p *Peer) handleMessage(raw []byte) error {
	m, err := message.Decode(raw)
	if err != nil {
		return err
	}

	switch m.Kind {
	case message.KindPairReq:
		return p.handlePairReq(m)
	case message.KindHeartbeat:
		return p.reply(message.KindAck, []byte(strconv.FormatInt(m.Timestamp, 10)))
	default:
		return p.handleSecured(m)
	}
}

func (p *Peer) handlePairReq(m *message.Message) error {
	req, err := pairing.ParseRequestPayload(m.Payload)
	if err != nil {
		return err
	}

	// Same (pin, initiator_id, peer_id) triple the central fed into its
	// own deriveKey call, so both sides land on the identical 32-byte key.
	key := crypto.DeriveKey(p.PIN, req.DeviceID, p.DeviceID)
	ctx, err := session.ImportKey(key)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.cryptoCtx = ctx
	p.mu.Unlock()

	ack := pairing.AckPayload{DeviceID: p.DeviceID, Status: pairing.StatusOK}
	payload, err := ack.Marshal()
	if err != nil {
		return err
	}
	return p.sendRaw(message.KindPairAck, payload, nil)
}

func (p *Peer) handleSecured(m *message.Message) error {
	p.mu.Lock()
	ctx := p.cryptoCtx
	p.mu.Unlock()
	if ctx == nil {
		return nil
	}

	plaintext, err := ctx.VerifyAndDecrypt(m)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.received = append(p.received, Received{Kind: m.Kind, Payload: plaintext})
	p.mu.Unlock()

	return p.reply(message.KindAck, []byte(strconv.FormatInt(m.Timestamp, 10)))
}

// reply secures a Message the same way Transport.Send does (bootstrap
// kinds and ACK untouched, HEARTBEAT signed, everything else signed and
// encrypted), and writes it onto response_tx chunk by chunk.
func (p *Peer) reply(kind message.Kind, payload []byte) error {
	return p.sendRaw(kind, payload, payload)
}

func (p *Peer) sendRaw(kind message.Kind, payload, plaintext []byte) error {
	ts := time.Now().UnixNano()
	m := message.New(kind, payload, ts)

	p.mu.Lock()
	ctx := p.cryptoCtx
	p.mu.Unlock()

	switch {
	case kind.IsBootstrap(), kind == message.KindAck:
	case kind == message.KindHeartbeat:
		if ctx != nil {
			if err := ctx.Sign(m); err != nil {
				return err
			}
		}
	default:
		if ctx != nil {
			if err := ctx.SignAndEncrypt(m, plaintext); err != nil {
				return err
			}
		}
	}

	data, err := m.Encode()
	if err != nil {
		return err
	}

	packets, err := framing.Chunk(data, p.conn.MTU)
	if err != nil {
		return err
	}
	for _, pkt := range packets {
		p.conn.ResponseTX.Notify(pkt)
	}
	return nil
}

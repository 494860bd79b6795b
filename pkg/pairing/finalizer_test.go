package pairing

import "testing"

type fakeSender struct {
	lastPeerAddress string
	lastPayload     RequestPayload
}

func (s *fakeSender) SendPairRequest(peerAddress string, payload RequestPayload) error {
	s.lastPeerAddress = peerAddress
	s.lastPayload = payload
	return nil
}

func TestFreshPairingCompletes(t *testing.T) {
	ks := NewMemoryKeystore()
	sender := &fakeSender{}
	f := NewFinalizer(FinalizerConfig{Keystore: ks, Sender: sender})

	if err := f.StartPairing("addr-1", "Desktop", "local-A", "123456"); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}
	if sender.lastPeerAddress != "addr-1" || sender.lastPayload.DeviceID != "local-A" {
		t.Fatalf("unexpected PAIR_REQ sent: %+v", sender.lastPayload)
	}

	ctx, peer, err := f.HandlePairAck("addr-1", AckPayload{DeviceID: "peer-B", Status: StatusOK})
	if err != nil {
		t.Fatalf("HandlePairAck: %v", err)
	}
	defer ctx.Close()

	if peer.PeerDeviceID != "peer-B" || peer.PeerAddress != "addr-1" {
		t.Fatalf("unexpected peer record: %+v", peer)
	}
	if len(peer.SharedKey) != 32 {
		t.Fatalf("SharedKey length = %d, want 32", len(peer.SharedKey))
	}

	stored, ok := ks.Get("addr-1")
	if !ok || stored.PeerDeviceID != "peer-B" {
		t.Fatal("pairing was not persisted to the keystore")
	}
}

func TestRejectsAckWithoutDeviceID(t *testing.T) {
	ks := NewMemoryKeystore()
	sender := &fakeSender{}
	f := NewFinalizer(FinalizerConfig{Keystore: ks, Sender: sender})

	if err := f.StartPairing("addr-1", "Desktop", "local-A", "123456"); err != nil {
		t.Fatal(err)
	}

	_, _, err := f.HandlePairAck("addr-1", AckPayload{DeviceID: "", Status: StatusOK})
	if err != ErrRejected {
		t.Fatalf("got %v, want ErrRejected", err)
	}
}

func TestRejectsAckWithErrorStatus(t *testing.T) {
	ks := NewMemoryKeystore()
	sender := &fakeSender{}
	f := NewFinalizer(FinalizerConfig{Keystore: ks, Sender: sender})

	if err := f.StartPairing("addr-1", "Desktop", "local-A", "123456"); err != nil {
		t.Fatal(err)
	}

	_, _, err := f.HandlePairAck("addr-1", AckPayload{DeviceID: "peer-B", Status: StatusError, Error: "denied"})
	if err != ErrRejected {
		t.Fatalf("got %v, want ErrRejected", err)
	}
}

func TestReconnectUsesStoredSharedKeyNotPin(t *testing.T) {
	ks := NewMemoryKeystore()
	storedKey := make([]byte, 32)
	for i := range storedKey {
		storedKey[i] = byte(i + 1)
	}
	if err := ks.Put(PairedPeer{PeerAddress: "addr-1", PeerDeviceID: "peer-B", SharedKey: storedKey}); err != nil {
		t.Fatal(err)
	}

	sender := &fakeSender{}
	f := NewFinalizer(FinalizerConfig{Keystore: ks, Sender: sender})

	if err := f.StartPairing("addr-1", "Desktop", "local-A", "" /* no PIN on reconnect */); err != nil {
		t.Fatal(err)
	}

	ctx, peer, err := f.HandlePairAck("addr-1", AckPayload{DeviceID: "peer-B", Status: StatusOK})
	if err != nil {
		t.Fatalf("HandlePairAck: %v", err)
	}
	defer ctx.Close()

	if string(peer.SharedKey) != string(storedKey) {
		t.Fatal("reconnect should reuse the stored shared key, not derive a new one")
	}
}

func TestHandlePairAckWithoutStartReturnsErrNoPending(t *testing.T) {
	ks := NewMemoryKeystore()
	sender := &fakeSender{}
	f := NewFinalizer(FinalizerConfig{Keystore: ks, Sender: sender})

	_, _, err := f.HandlePairAck("addr-unknown", AckPayload{DeviceID: "x", Status: StatusOK})
	if err != ErrNoPending {
		t.Fatalf("got %v, want ErrNoPending", err)
	}
}

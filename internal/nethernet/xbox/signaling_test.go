package xbox

import (
	"testing"

	"beacon/internal/nethernet"
)

func newTestSignaling() *Signaling {
	return &Signaling{
		networkID: 1,
		out:       make(chan wsOutgoing, 8),
		closed:    make(chan struct{}),
		signals:   make(chan nethernet.Signal, 8),
	}
}

func TestHandleIncomingSignal(t *testing.T) {
	s := newTestSignaling()
	from := "999"
	msg := "CONNECTREQUEST 1 sdp-offer-data"
	s.handleIncoming(wsIncoming{Type: uint8(wsMessageSignal), From: &from, Message: &msg})

	select {
	case sig := <-s.signals:
		if sig.Type != nethernet.SignalTypeOffer || sig.ConnectionID != 1 || sig.Data != "sdp-offer-data" {
			t.Fatalf("unexpected signal: %+v", sig)
		}
		if sig.NetworkID != "999" {
			t.Fatalf("expected network id 999, got %q", sig.NetworkID)
		}
	default:
		t.Fatal("expected a signal to be queued")
	}
}

func TestHandleIncomingInitCachesCredentials(t *testing.T) {
	s := newTestSignaling()
	msg := `{"TurnAuthServers":[{"Username":"user1","Password":"pass1","Urls":["turn:example.com:3478"]}]}`
	s.handleIncoming(wsIncoming{Type: uint8(wsMessageInit), Message: &msg})

	creds := s.Credentials()
	if creds == nil {
		t.Fatal("expected credentials to be cached")
	}
	if len(creds.IceServers) != 1 || creds.IceServers[0].Username != "user1" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
	if creds.ExpirationSeconds != 3600 {
		t.Fatalf("expected expiration 3600, got %d", creds.ExpirationSeconds)
	}
}

func TestHandleIncomingHeartbeatIgnored(t *testing.T) {
	s := newTestSignaling()
	s.handleIncoming(wsIncoming{Type: uint8(wsMessageHeartbeat)})

	select {
	case sig := <-s.signals:
		t.Fatalf("expected no signal from heartbeat, got %+v", sig)
	default:
	}
	if s.Credentials() != nil {
		t.Fatal("expected no credentials from heartbeat")
	}
}

func TestSignalEnqueuesOutgoing(t *testing.T) {
	s := newTestSignaling()
	sig := nethernet.Signal{Type: nethernet.SignalTypeAnswer, ConnectionID: 5, Data: "sdp-answer", NetworkID: "42"}
	if err := s.Signal(sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case out := <-s.out:
		if out.To == nil || *out.To != "42" {
			t.Fatalf("expected To=42, got %+v", out.To)
		}
		if out.Message == nil || *out.Message != sig.String() {
			t.Fatalf("expected message %q, got %+v", sig.String(), out.Message)
		}
	default:
		t.Fatal("expected outgoing message to be queued")
	}
}

package nethernet

import "testing"

func TestParseSignalRoundTrip(t *testing.T) {
	s := Signal{Type: SignalTypeOffer, ConnectionID: 42, Data: "v=0 sdp..."}
	parsed, err := ParseSignal(s.String(), "net-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Type != s.Type || parsed.ConnectionID != s.ConnectionID || parsed.Data != s.Data {
		t.Fatalf("got %+v want %+v", parsed, s)
	}
	if parsed.NetworkID != "net-1" {
		t.Fatalf("expected network id to be set from envelope, got %q", parsed.NetworkID)
	}
}

func TestParseSignalRejectsMalformed(t *testing.T) {
	if _, err := ParseSignal("ONLYONEWORD", "x"); err != ErrInvalidSignalFormat {
		t.Fatalf("expected format error, got %v", err)
	}
	if _, err := ParseSignal("TYPE notanumber data", "x"); err != ErrInvalidSignalFormat {
		t.Fatalf("expected format error for bad connection id, got %v", err)
	}
}

func TestNewErrorSignalEncodesCode(t *testing.T) {
	sig := NewErrorSignal(7, "net-1", SignalErrorNegotiationTimeout)
	if sig.Type != SignalTypeError {
		t.Fatalf("expected error type, got %s", sig.Type)
	}
	if sig.Data != "2" {
		t.Fatalf("expected code 2, got %s", sig.Data)
	}
}

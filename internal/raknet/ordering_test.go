package raknet

import "testing"

func TestOrderingBufferDeliversInOrder(t *testing.T) {
	o := NewOrderingChannels()
	// Scenario: on channel 0, receive ordered indices 2,0,1 -> delivery 0,1,2.
	var delivered []string
	if out := o.HandleOrdered(0, NewSequence24(2), []byte("c")); out != nil {
		t.Fatalf("index 2 should buffer, not deliver: %v", out)
	}
	out := o.HandleOrdered(0, NewSequence24(0), []byte("a"))
	for _, p := range out {
		delivered = append(delivered, string(p))
	}
	out = o.HandleOrdered(0, NewSequence24(1), []byte("b"))
	for _, p := range out {
		delivered = append(delivered, string(p))
	}
	want := []string{"a", "b", "c"}
	if len(delivered) != len(want) {
		t.Fatalf("got %v want %v", delivered, want)
	}
	for i := range want {
		if delivered[i] != want[i] {
			t.Fatalf("got %v want %v", delivered, want)
		}
	}
}

func TestSequencedDropsStale(t *testing.T) {
	o := NewOrderingChannels()
	if _, ok := o.HandleSequenced(0, NewSequence24(5), []byte("x")); !ok {
		t.Fatalf("expected first sequenced packet delivered")
	}
	if _, ok := o.HandleSequenced(0, NewSequence24(3), []byte("y")); ok {
		t.Fatalf("expected stale sequenced packet dropped")
	}
	if _, ok := o.HandleSequenced(0, NewSequence24(6), []byte("z")); !ok {
		t.Fatalf("expected newer sequenced packet delivered")
	}
}

func TestOrderingChannelsIndependent(t *testing.T) {
	o := NewOrderingChannels()
	out := o.HandleOrdered(1, NewSequence24(0), []byte("first-on-channel-1"))
	if len(out) != 1 {
		t.Fatalf("channel 1 should be independent of channel 0's state: %v", out)
	}
}

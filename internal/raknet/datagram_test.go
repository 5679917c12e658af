package raknet

import "testing"

func TestEncapsulatedPacketRoundTrip(t *testing.T) {
	cases := []*EncapsulatedPacket{
		{Reliability: Unreliable, Payload: []byte("hello")},
		{Reliability: Reliable, MessageIndex: NewSequence24(7), Payload: []byte("world")},
		{
			Reliability:  ReliableOrdered,
			MessageIndex: NewSequence24(1),
			OrderedIndex: NewSequence24(2),
			OrderChannel: 3,
			Payload:      []byte("ordered"),
		},
		{
			Reliability:    ReliableSequenced,
			MessageIndex:   NewSequence24(9),
			SequencedIndex: NewSequence24(4),
			OrderedIndex:   NewSequence24(4),
			OrderChannel:   0,
			Payload:        []byte("sequenced"),
		},
		{
			Reliability:  ReliableOrdered,
			MessageIndex: NewSequence24(100),
			OrderedIndex: NewSequence24(1),
			OrderChannel: 0,
			Split:        &SplitInfo{ID: 42, Count: 5, Index: 2},
			Payload:      []byte("fragment"),
		},
	}

	for i, want := range cases {
		b := NewBitStreamWriter()
		want.Encode(b)
		if b.Len() != want.GetSize() {
			t.Fatalf("case %d: GetSize() = %d, encoded = %d", i, want.GetSize(), b.Len())
		}

		got, err := DecodeEncapsulatedPacket(NewBitStream(b.Bytes()))
		if err != nil {
			t.Fatalf("case %d: decode error: %v", i, err)
		}
		if got.Reliability != want.Reliability {
			t.Fatalf("case %d: reliability mismatch", i)
		}
		if string(got.Payload) != string(want.Payload) {
			t.Fatalf("case %d: payload mismatch: got %q want %q", i, got.Payload, want.Payload)
		}
		if want.Split != nil {
			if got.Split == nil || *got.Split != *want.Split {
				t.Fatalf("case %d: split mismatch: got %+v want %+v", i, got.Split, want.Split)
			}
		}
	}
}

func TestDataDatagramRoundTrip(t *testing.T) {
	packets := []*EncapsulatedPacket{
		{Reliability: Unreliable, Payload: []byte("a")},
		{Reliability: Reliable, MessageIndex: NewSequence24(1), Payload: []byte("bb")},
	}
	raw := EncodeDataDatagram(0, NewSequence24(555), packets)
	if raw[0]&FlagValid == 0 {
		t.Fatalf("expected VALID flag set")
	}
	seq, got, err := DecodeDataDatagram(raw[1:])
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if seq != NewSequence24(555) {
		t.Fatalf("sequence mismatch: got %d", seq)
	}
	if len(got) != 2 || string(got[0].Payload) != "a" || string(got[1].Payload) != "bb" {
		t.Fatalf("payload mismatch: %+v", got)
	}
}

func TestCoalesceRangesGapScenario(t *testing.T) {
	// Scenario: receive sequences 0,1,2,5 -> ACK ranges {0..2,5..5}.
	ranges := CoalesceRanges([]Sequence24{0, 1, 2, 5})
	want := []SequenceRange{{Start: 0, End: 2}, {Start: 5, End: 5}}
	if len(ranges) != len(want) {
		t.Fatalf("got %d ranges, want %d: %+v", len(ranges), len(want), ranges)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Fatalf("range %d: got %+v want %+v", i, ranges[i], want[i])
		}
	}
}

func TestCoalesceRangesMissingGap(t *testing.T) {
	// The corresponding NAK range for the gap in the scenario above is {3..4}.
	missing := CoalesceRanges([]Sequence24{3, 4})
	if len(missing) != 1 || missing[0] != (SequenceRange{Start: 3, End: 4}) {
		t.Fatalf("got %+v", missing)
	}
}

func TestAckNackWireRoundTrip(t *testing.T) {
	ranges := []SequenceRange{{Start: 0, End: 2}, {Start: 5, End: 5}}
	b := NewBitStreamWriter()
	EncodeAckNack(b, ranges)
	got, err := DecodeAckNack(NewBitStream(b.Bytes()))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got) != 2 || got[0] != ranges[0] || got[1] != ranges[1] {
		t.Fatalf("got %+v want %+v", got, ranges)
	}
}

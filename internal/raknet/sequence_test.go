package raknet

import "testing"

func TestSequenceNextPrev(t *testing.T) {
	a := NewSequence24(12345)
	if a.Next().Prev() != a {
		t.Fatalf("Next().Prev() != a: got %d want %d", a.Next().Prev(), a)
	}
}

func TestSequenceWrap(t *testing.T) {
	top := NewSequence24(seq24Mask)
	if top.Next() != 0 {
		t.Fatalf("expected wrap to 0, got %d", top.Next())
	}
	if Sequence24(0).Prev() != Sequence24(seq24Mask) {
		t.Fatalf("expected wrap to mask, got %d", Sequence24(0).Prev())
	}
}

func TestSequenceDistanceRange(t *testing.T) {
	cases := []Sequence24{0, 1, 1000, seq24Mask / 2, seq24Mask - 1, seq24Mask}
	for _, a := range cases {
		for _, b := range cases {
			d := a.Distance(b)
			if d < -seq24Half || d >= seq24Half {
				t.Fatalf("distance out of range: %d -> %d = %d", a, b, d)
			}
			if a.Add(d) != b {
				t.Fatalf("a.Add(distance) != b: %d.Add(%d) = %d, want %d", a, d, a.Add(d), b)
			}
		}
	}
}

func TestSequenceLess(t *testing.T) {
	if !NewSequence24(5).Less(NewSequence24(6)) {
		t.Fatalf("expected 5 < 6")
	}
	if NewSequence24(6).Less(NewSequence24(5)) {
		t.Fatalf("expected 6 !< 5")
	}
	// Wraparound: the sequence just before 0 is "less than" 0.
	if !Sequence24(seq24Mask).Less(0) {
		t.Fatalf("expected mask < 0 across wraparound")
	}
}

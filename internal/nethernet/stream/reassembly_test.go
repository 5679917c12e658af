package stream

import (
	"bytes"
	"testing"
	"time"
)

func TestFeedSingleFragmentMessage(t *testing.T) {
	r := NewReassembler()
	msg, done, err := r.Feed([]byte{0, 'h', 'i'}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Fatal("expected message to be complete")
	}
	if string(msg) != "hi" {
		t.Fatalf("got %q want hi", msg)
	}
}

func TestFeedMultiFragmentMessage(t *testing.T) {
	r := NewReassembler()
	now := time.Now()

	if _, done, err := r.Feed(append([]byte{2}, "abc"...), now); err != nil || done {
		t.Fatalf("unexpected first fragment result: done=%v err=%v", done, err)
	}
	if _, done, err := r.Feed(append([]byte{1}, "def"...), now); err != nil || done {
		t.Fatalf("unexpected second fragment result: done=%v err=%v", done, err)
	}
	msg, done, err := r.Feed(append([]byte{0}, "ghi"...), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Fatal("expected final fragment to complete the message")
	}
	if string(msg) != "abcdefghi" {
		t.Fatalf("got %q want abcdefghi", msg)
	}
}

func TestFeedRejectsOutOfOrderSegment(t *testing.T) {
	r := NewReassembler()
	now := time.Now()

	if _, _, err := r.Feed(append([]byte{3}, "abc"...), now); err != nil {
		t.Fatalf("unexpected error opening buffer: %v", err)
	}
	// Should be 2 next; send 5 to violate the monotonic decrement.
	_, done, err := r.Feed(append([]byte{5}, "def"...), now)
	if err != ErrOutOfOrderSegment {
		t.Fatalf("expected ErrOutOfOrderSegment, got %v", err)
	}
	if done {
		t.Fatal("expected no delivery on violation")
	}

	// Reassembler should be reset: a fresh single-fragment message works.
	msg, done, err := r.Feed([]byte{0, 'o', 'k'}, now)
	if err != nil || !done || string(msg) != "ok" {
		t.Fatalf("expected clean recovery, got msg=%q done=%v err=%v", msg, done, err)
	}
}

func TestFeedRejectsTimeout(t *testing.T) {
	r := NewReassembler()
	r.Timeout = 10 * time.Millisecond
	start := time.Now()

	if _, _, err := r.Feed(append([]byte{1}, "abc"...), start); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	later := start.Add(time.Second)
	_, done, err := r.Feed(append([]byte{0}, "def"...), later)
	if err != ErrReassemblyTimeout {
		t.Fatalf("expected ErrReassemblyTimeout, got %v", err)
	}
	if done {
		t.Fatal("expected no delivery on timeout")
	}
}

func TestFeedRejectsOverflow(t *testing.T) {
	r := NewReassembler()
	r.MaxSize = 1024
	now := time.Now()

	if _, _, err := r.Feed(append([]byte{1}, make([]byte, 513)...), now); err != nil {
		t.Fatalf("unexpected error opening buffer: %v", err)
	}
	_, done, err := r.Feed(append([]byte{0}, make([]byte, 600)...), now)
	if err != ErrReassemblyOverflow {
		t.Fatalf("expected ErrReassemblyOverflow, got %v", err)
	}
	if done {
		t.Fatal("expected no delivery on overflow")
	}

	// Buffer must be reset: next single-fragment message delivers cleanly.
	msg, done, err := r.Feed([]byte{0, 'x'}, now)
	if err != nil || !done || string(msg) != "x" {
		t.Fatalf("expected clean recovery, got msg=%q done=%v err=%v", msg, done, err)
	}
}

func TestSegmentRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 150000)
	fragments := Segment(data, 65536)
	if len(fragments) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(fragments))
	}

	r := NewReassembler()
	now := time.Now()
	var result []byte
	for i, frag := range fragments {
		msg, done, err := r.Feed(frag, now)
		if err != nil {
			t.Fatalf("unexpected error on fragment %d: %v", i, err)
		}
		if done {
			result = msg
		}
	}
	if !bytes.Equal(result, data) {
		t.Fatalf("reassembled data does not match original (len got=%d want=%d)", len(result), len(data))
	}
}

func TestSegmentEmptyMessage(t *testing.T) {
	fragments := Segment(nil, 65536)
	if len(fragments) != 1 || fragments[0][0] != 0 {
		t.Fatalf("expected single terminator fragment, got %+v", fragments)
	}
	r := NewReassembler()
	msg, done, err := r.Feed(fragments[0], time.Now())
	if err != nil || !done || len(msg) != 0 {
		t.Fatalf("expected empty message delivered, got msg=%q done=%v err=%v", msg, done, err)
	}
}

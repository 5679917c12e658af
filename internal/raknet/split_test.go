package raknet

import (
	"bytes"
	"testing"
	"time"
)

func TestSplitAssemblerReassemblesInOrder(t *testing.T) {
	a := newSplitAssembler(8192, 4096, 30*time.Second)
	now := time.Now()

	payload := bytes.Repeat([]byte{0xAB}, 5000)
	chunks := SplitPayload(payload, 1200, 1)
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks for 5000 bytes at 1200/chunk, got %d", len(chunks))
	}

	var reassembled *EncapsulatedPacket
	for i, chunk := range chunks {
		frag := &EncapsulatedPacket{
			Reliability:  ReliableOrdered,
			MessageIndex: NewSequence24(uint32(i)),
			OrderedIndex: NewSequence24(0),
			OrderChannel: 0,
			Split:        &SplitInfo{ID: 1, Count: uint32(len(chunks)), Index: uint32(i)},
			Payload:      chunk,
		}
		out, done, err := a.Add(now, frag)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if done {
			reassembled = out
		}
	}
	if reassembled == nil {
		t.Fatalf("split never completed")
	}
	if !bytes.Equal(reassembled.Payload, payload) {
		t.Fatalf("reassembled payload mismatch: got %d bytes want %d", len(reassembled.Payload), len(payload))
	}
}

func TestSplitAssemblerOutOfOrderFragments(t *testing.T) {
	a := newSplitAssembler(8192, 4096, 30*time.Second)
	now := time.Now()
	payload := []byte("abcdefghij")
	chunks := SplitPayload(payload, 5, 7)

	frag1 := &EncapsulatedPacket{Reliability: Reliable, Split: &SplitInfo{ID: 7, Count: 2, Index: 1}, Payload: chunks[1]}
	if _, done, err := a.Add(now, frag1); err != nil || done {
		t.Fatalf("expected incomplete after first (out-of-order) fragment: done=%v err=%v", done, err)
	}
	frag0 := &EncapsulatedPacket{Reliability: Reliable, Split: &SplitInfo{ID: 7, Count: 2, Index: 0}, Payload: chunks[0]}
	out, done, err := a.Add(now, frag0)
	if err != nil || !done {
		t.Fatalf("expected completion after second fragment: done=%v err=%v", done, err)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("got %q want %q", out.Payload, payload)
	}
}

func TestSplitAssemblerEvictsExpired(t *testing.T) {
	a := newSplitAssembler(8192, 4096, 10*time.Millisecond)
	now := time.Now()
	frag := &EncapsulatedPacket{Reliability: Reliable, Split: &SplitInfo{ID: 9, Count: 2, Index: 0}, Payload: []byte("x")}
	if _, _, err := a.Add(now, frag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evicted := a.EvictExpired(now.Add(time.Second))
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
}

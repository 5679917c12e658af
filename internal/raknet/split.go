package raknet

import (
	"errors"
	"time"
)

var (
	ErrTooManySplitParts   = errors.New("raknet: split part count exceeds max_split_parts")
	ErrTooManyConcurrentSplits = errors.New("raknet: too many concurrent split assemblies")
)

// splitBuffer accumulates the fragments of one logical payload identified
// by a split ID. The reliability/ordering header is captured from the
// first fragment seen; all fragments of one split share it except for
// MessageIndex, which is per-fragment and not meaningful after reassembly.
type splitBuffer struct {
	count    uint32
	parts    [][]byte
	received int
	created  time.Time
	header   EncapsulatedPacket
}

// splitAssembler reassembles fragmented EncapsulatedPacket payloads, bounded
// on both the number of parts a single split may have and the number of
// concurrently in-flight splits, with an age-based eviction policy.
type splitAssembler struct {
	maxParts    uint32
	maxConcurrent int
	timeout     time.Duration

	buffers map[uint16]*splitBuffer
}

func newSplitAssembler(maxParts uint32, maxConcurrent int, timeout time.Duration) *splitAssembler {
	return &splitAssembler{
		maxParts:      maxParts,
		maxConcurrent: maxConcurrent,
		timeout:       timeout,
		buffers:       make(map[uint16]*splitBuffer),
	}
}

// Add feeds one fragment into the assembler. It returns the reassembled
// EncapsulatedPacket and true once the final fragment of a split arrives,
// or nil,false if the split is still incomplete. The returned packet's
// Split field is cleared and Payload holds the concatenated bytes.
func (a *splitAssembler) Add(now time.Time, fragment *EncapsulatedPacket) (*EncapsulatedPacket, bool, error) {
	info := *fragment.Split
	if info.Count > a.maxParts {
		return nil, false, ErrTooManySplitParts
	}
	buf, ok := a.buffers[info.ID]
	if !ok {
		if len(a.buffers) >= a.maxConcurrent {
			a.evictOldest()
			if len(a.buffers) >= a.maxConcurrent {
				return nil, false, ErrTooManyConcurrentSplits
			}
		}
		buf = &splitBuffer{
			count:   info.Count,
			parts:   make([][]byte, info.Count),
			created: now,
			header:  *fragment,
		}
		a.buffers[info.ID] = buf
	}
	if buf.parts[info.Index] == nil {
		buf.parts[info.Index] = fragment.Payload
		buf.received++
	}
	if buf.received < int(buf.count) {
		return nil, false, nil
	}

	total := 0
	for _, p := range buf.parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range buf.parts {
		out = append(out, p...)
	}
	delete(a.buffers, info.ID)

	result := buf.header
	result.Split = nil
	result.Payload = out
	return &result, true, nil
}

// EvictExpired drops any split buffer older than the configured timeout.
func (a *splitAssembler) EvictExpired(now time.Time) int {
	evicted := 0
	for id, buf := range a.buffers {
		if now.Sub(buf.created) > a.timeout {
			delete(a.buffers, id)
			evicted++
		}
	}
	return evicted
}

func (a *splitAssembler) evictOldest() {
	var oldestID uint16
	var oldestTime time.Time
	first := true
	for id, buf := range a.buffers {
		if first || buf.created.Before(oldestTime) {
			oldestID = id
			oldestTime = buf.created
			first = false
		}
	}
	if !first {
		delete(a.buffers, oldestID)
	}
}

// SplitPayload divides payload into consecutive chunks of at most chunkSize
// bytes (a non-positive chunkSize returns payload whole). splitID is not
// used; the caller wraps each chunk in an EncapsulatedPacket carrying the
// split ID, giving each fragment its own MessageIndex.
func SplitPayload(payload []byte, chunkSize int, splitID uint16) [][]byte {
	if chunkSize <= 0 {
		return [][]byte{payload}
	}
	var chunks [][]byte
	for len(payload) > 0 {
		n := chunkSize
		if n > len(payload) {
			n = len(payload)
		}
		chunks = append(chunks, payload[:n])
		payload = payload[n:]
	}
	return chunks
}

package raknet

import (
	"container/heap"
	"errors"
	"net"
	"sort"
	"sync"
	"time"
)

var (
	ErrQueueFull  = errors.New("raknet: outbound queue full")
	ErrSessionClosed = errors.New("raknet: session closed")
)

// SessionState is the coarse lifecycle state of a peer session.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateConnected
	StateStale
	StateClosed
)

// SessionTunables bounds the various queues and timeouts a Session enforces.
// Defaults mirror the reference implementation's constants.
type SessionTunables struct {
	AckQueueCapacity      int
	SplitTimeout          time.Duration
	MaxSplitParts         uint32
	MaxConcurrentSplits   int
	MaxIncomingAckQueue   int
	MaxQueuedReliableBytes int
	SessionTimeout        time.Duration
	SessionStale          time.Duration
	RetransmitBase        time.Duration
	RetransmitCeiling     time.Duration
	ReliableWindowSize    int32
}

// DefaultTunables returns the tunable set used when a caller doesn't
// override anything.
func DefaultTunables() SessionTunables {
	return SessionTunables{
		AckQueueCapacity:       1024,
		SplitTimeout:           30 * time.Second,
		MaxSplitParts:          8192,
		MaxConcurrentSplits:    4096,
		MaxIncomingAckQueue:    4096,
		MaxQueuedReliableBytes: 4 * 1024 * 1024,
		SessionTimeout:         30 * time.Second,
		SessionStale:           10 * time.Second,
		RetransmitBase:         200 * time.Millisecond,
		RetransmitCeiling:      3 * time.Second,
		ReliableWindowSize:     1 << 16,
	}
}

// Session is the per-peer RakNet reliability/ordering/fragmentation engine.
// It owns no socket; callers feed it decoded datagrams via
// ProcessDatagramSequence/HandleDataPayload/HandleAckPayload/HandleNackPayload
// and drive it forward with OnTick, sending whatever byte slices OnTick
// returns and receiving whatever HandleDataPayload returns.
type Session struct {
	mu sync.Mutex

	Addr net.Addr
	GUID uint64
	MTU  int
	State SessionState

	tunables SessionTunables

	createdAt    time.Time
	lastActivity time.Time

	// Outgoing allocators.
	nextMessageIndex Sequence24
	nextSplitID      uint16
	outSequenced     [NumOrderingChannels]Sequence24
	outOrdered       [NumOrderingChannels]Sequence24
	queuedReliableBytes int

	outbound      *outboundQueue
	congestion    *slidingWindow
	nextOutSeq    Sequence24
	sentDatagrams map[Sequence24]*sentRecord
	recovery      recoveryHeap

	// Incoming reliability/ordering state.
	datagramReadIndex Sequence24
	pendingAcks       []Sequence24
	pendingNaks       []SequenceRange
	seen              *reliableWindow
	ordering          *OrderingChannels
	splits            *splitAssembler
}

// NewSession constructs a Session for a newly-handshaked peer.
func NewSession(addr net.Addr, guid uint64, mtu int, tunables SessionTunables) *Session {
	now := time.Now()
	return &Session{
		Addr:          addr,
		GUID:          guid,
		MTU:           mtu,
		State:         StateConnecting,
		tunables:      tunables,
		createdAt:     now,
		lastActivity:  now,
		outbound:      newOutboundQueue(),
		congestion:    newSlidingWindow(),
		sentDatagrams: make(map[Sequence24]*sentRecord),
		seen:          newReliableWindow(tunables.ReliableWindowSize),
		ordering:      NewOrderingChannels(),
		splits:        newSplitAssembler(tunables.MaxSplitParts, tunables.MaxConcurrentSplits, tunables.SplitTimeout),
	}
}

// GetSafePayloadSize returns the largest encapsulated-packet payload that
// fits in one datagram without fragmentation, given UDP/IP overhead.
func (s *Session) GetSafePayloadSize() int {
	const udpIPOverhead = 28
	const datagramHeader = 4 // flags + 24-bit sequence
	const maxEncapHeader = 1 + 2 + 3 + 3 + 3 + 1 + 4 + 2 + 4
	safe := s.MTU - udpIPOverhead - datagramHeader - maxEncapHeader
	if safe < 0 {
		return 0
	}
	return safe
}

// QueuePacket enqueues payload for delivery under the given reliability,
// ordering channel, and priority. Large payloads are fragmented
// automatically. Returns ErrQueueFull if the session's queued-reliable-bytes
// budget would be exceeded.
func (s *Session) QueuePacket(payload []byte, reliability Reliability, channel byte, priority Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateClosed {
		return ErrSessionClosed
	}

	if reliability.IsReliable() {
		if s.queuedReliableBytes+len(payload) > s.tunables.MaxQueuedReliableBytes {
			return ErrQueueFull
		}
	}

	var orderedIdx, sequencedIdx Sequence24
	if reliability.IsOrdered() {
		orderedIdx = s.outOrdered[channel]
		s.outOrdered[channel] = s.outOrdered[channel].Next()
	}
	if reliability.IsSequenced() {
		sequencedIdx = s.outSequenced[channel]
		s.outSequenced[channel] = s.outSequenced[channel].Next()
	}

	safeSize := s.GetSafePayloadSize()
	if safeSize <= 0 || len(payload) <= safeSize {
		pkt := &EncapsulatedPacket{
			Reliability:    reliability,
			OrderedIndex:   orderedIdx,
			SequencedIndex: sequencedIdx,
			OrderChannel:   channel,
			Payload:        payload,
		}
		s.assignMessageIndex(pkt)
		s.outbound.Push(priority, pkt, time.Now())
		if reliability.IsReliable() {
			s.queuedReliableBytes += len(payload)
		}
		return nil
	}

	chunks := SplitPayload(payload, safeSize, s.nextSplitID)
	splitID := s.nextSplitID
	s.nextSplitID++
	for i, chunk := range chunks {
		pkt := &EncapsulatedPacket{
			Reliability:    reliability,
			OrderedIndex:   orderedIdx,
			SequencedIndex: sequencedIdx,
			OrderChannel:   channel,
			Split:          &SplitInfo{ID: splitID, Count: uint32(len(chunks)), Index: uint32(i)},
			Payload:        chunk,
		}
		s.assignMessageIndex(pkt)
		s.outbound.Push(priority, pkt, time.Now())
		if reliability.IsReliable() {
			s.queuedReliableBytes += len(chunk)
		}
	}
	return nil
}

func (s *Session) assignMessageIndex(pkt *EncapsulatedPacket) {
	if !pkt.Reliability.IsReliable() {
		return
	}
	pkt.MessageIndex = s.nextMessageIndex
	s.nextMessageIndex = s.nextMessageIndex.Next()
}

// ProcessDatagramSequence updates the ACK/NAK state machine for an arriving
// datagram sequence number, Cloudburst-style: contiguous arrivals extend the
// ack watermark, gaps enqueue NAK ranges for the missing span.
func (s *Session) ProcessDatagramSequence(seq Sequence24) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()

	switch {
	case seq.Less(s.datagramReadIndex):
		s.pushAck(seq)
	case seq == s.datagramReadIndex:
		s.pushAck(seq)
		s.datagramReadIndex = s.datagramReadIndex.Next()
	default:
		s.pushNakRange(s.datagramReadIndex, seq.Prev())
		s.pushAck(seq)
		s.datagramReadIndex = seq.Next()
	}
}

func (s *Session) pushAck(seq Sequence24) {
	s.pendingAcks = append(s.pendingAcks, seq)
	if len(s.pendingAcks) > s.tunables.AckQueueCapacity {
		overflow := len(s.pendingAcks) - s.tunables.AckQueueCapacity
		s.pendingAcks = s.pendingAcks[overflow:]
	}
}

func (s *Session) pushNakRange(start, end Sequence24) {
	length := start.Distance(end) + 1
	cur := start
	remaining := length
	for remaining > 0 {
		chunk := remaining
		if chunk > MaxAckSequences-1 {
			chunk = MaxAckSequences - 1
		}
		rangeEnd := cur.Add(chunk - 1)
		s.pendingNaks = append(s.pendingNaks, SequenceRange{Start: cur, End: rangeEnd})
		cur = rangeEnd.Next()
		remaining -= chunk
	}
	if len(s.pendingNaks) > s.tunables.AckQueueCapacity {
		overflow := len(s.pendingNaks) - s.tunables.AckQueueCapacity
		s.pendingNaks = s.pendingNaks[overflow:]
	}
}

// PendingAckRanges returns (and does not clear) the coalesced outgoing ACK
// ranges, for inspection/testing.
func (s *Session) PendingAckRanges() []SequenceRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]Sequence24(nil), s.pendingAcks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	return CoalesceRanges(sorted)
}

// PendingNakRanges returns (and does not clear) the outgoing NAK ranges.
func (s *Session) PendingNakRanges() []SequenceRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SequenceRange(nil), s.pendingNaks...)
}

// HandleDataPayload runs each encapsulated packet (reassembling split
// fragments first, and dropping split buffers older than SplitTimeout)
// through the reliability/ordering/dedup pipeline and returns
// user-visible payloads in delivery order.
func (s *Session) HandleDataPayload(packets []*EncapsulatedPacket, now time.Time) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now

	var delivered [][]byte
	for _, pkt := range packets {
		if pkt.Split != nil {
			s.splits.EvictExpired(now)
			reassembled, done, err := s.splits.Add(now, pkt)
			if err != nil {
				return delivered, err
			}
			if !done {
				continue
			}
			pkt = reassembled
		}

		if pkt.Reliability.IsReliable() {
			if !s.seen.CheckAndMark(pkt.MessageIndex) {
				continue // duplicate from retransmission
			}
		}

		switch {
		case pkt.Reliability.IsOrdered() && !pkt.Reliability.IsSequenced():
			for _, payload := range s.ordering.HandleOrdered(pkt.OrderChannel, pkt.OrderedIndex, pkt.Payload) {
				delivered = append(delivered, payload)
			}
		case pkt.Reliability.IsSequenced():
			if payload, ok := s.ordering.HandleSequenced(pkt.OrderChannel, pkt.OrderedIndex, pkt.Payload); ok {
				delivered = append(delivered, payload)
			}
		default:
			delivered = append(delivered, pkt.Payload)
		}
	}
	return delivered, nil
}

// HandleAckPayload removes acknowledged datagrams from the retransmission
// tracker and advances the congestion controller.
func (s *Session) HandleAckPayload(ranges []SequenceRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	for seq, rec := range s.sentDatagrams {
		if RangesContain(ranges, seq) {
			delete(s.sentDatagrams, seq)
			s.removeFromRecoveryHeap(rec)
			s.congestion.OnAck()
			s.releaseReliableBudget(rec.packets)
		}
	}
}

// HandleNackPayload requeues the payloads of any datagram covered by ranges
// for retransmission.
func (s *Session) HandleNackPayload(ranges []SequenceRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	for seq, rec := range s.sentDatagrams {
		if RangesContain(ranges, seq) {
			delete(s.sentDatagrams, seq)
			s.removeFromRecoveryHeap(rec)
			s.congestion.OnLoss()
			for _, p := range rec.packets {
				s.outbound.Push(PriorityHigh, p, time.Now())
			}
		}
	}
}

func (s *Session) removeFromRecoveryHeap(rec *sentRecord) {
	for i, r := range s.recovery {
		if r == rec {
			heap.Remove(&s.recovery, i)
			return
		}
	}
}

func (s *Session) releaseReliableBudget(packets []*EncapsulatedPacket) {
	for _, p := range packets {
		if p.Reliability.IsReliable() {
			s.queuedReliableBytes -= len(p.Payload)
		}
	}
	if s.queuedReliableBytes < 0 {
		s.queuedReliableBytes = 0
	}
}

// OnTick advances time for this session and returns the raw UDP payloads
// (ack datagrams, nak datagrams, data datagrams, retransmissions) that
// should be sent now.
func (s *Session) OnTick(now time.Time) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out [][]byte

	if len(s.pendingAcks) > 0 {
		sorted := append([]Sequence24(nil), s.pendingAcks...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
		ranges := CoalesceRanges(sorted)
		out = append(out, s.encodeAckNackDatagram(FlagACK, ranges))
		s.pendingAcks = s.pendingAcks[:0]
	}
	if len(s.pendingNaks) > 0 {
		out = append(out, s.encodeAckNackDatagram(FlagNAK, s.pendingNaks))
		s.pendingNaks = s.pendingNaks[:0]
	}

	for len(s.recovery) > 0 && !s.recovery[0].nextSend.After(now) {
		rec := heap.Pop(&s.recovery).(*sentRecord)
		if _, stillSent := s.sentDatagrams[rec.seq]; !stillSent {
			continue
		}
		delete(s.sentDatagrams, rec.seq)
		s.congestion.OnLoss()
		for _, p := range rec.packets {
			s.outbound.Push(PriorityHigh, p, now)
		}
	}

	budget := s.GetSafePayloadSize()
	for {
		if budget <= 0 {
			break
		}
		var batch []*EncapsulatedPacket
		used := 0
		anyReliable := false
		for s.outbound.Len() > 0 {
			item, ok := s.outbound.PopNext()
			if !ok {
				break
			}
			sz := item.packet.GetSize()
			if used+sz > budget && len(batch) > 0 {
				// Put it back for the next datagram.
				s.outbound.Push(item.priority, item.packet, item.enqueuedAt)
				break
			}
			batch = append(batch, item.packet)
			used += sz
			if item.packet.Reliability.IsReliable() {
				anyReliable = true
			}
		}
		if len(batch) == 0 {
			break
		}
		if anyReliable && !s.congestion.CanSend() {
			for _, p := range batch {
				s.outbound.Push(PriorityHigh, p, now)
			}
			break
		}
		seq := s.nextOutSeq
		s.nextOutSeq = s.nextOutSeq.Next()
		out = append(out, EncodeDataDatagram(0, seq, batch))

		if anyReliable {
			rec := &sentRecord{
				seq:      seq,
				sentAt:   now,
				nextSend: now.Add(s.tunables.RetransmitBase),
				packets:  batch,
			}
			s.sentDatagrams[seq] = rec
			heap.Push(&s.recovery, rec)
			s.congestion.OnSend()
		}
	}

	return out
}

func (s *Session) encodeAckNackDatagram(flag byte, ranges []SequenceRange) []byte {
	b := NewBitStreamWriter()
	b.WriteByte(flag)
	EncodeAckNack(b, ranges)
	return b.Bytes()
}

// Close marks the session closed; further QueuePacket calls fail.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateClosed
}

// IdleFor reports how long it has been since any activity was observed.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// reliableWindow suppresses duplicate deliveries of reliable packets caused
// by retransmission, using a bounded sliding window of recently seen
// message indices.
type reliableWindow struct {
	seen map[Sequence24]struct{}
	low  Sequence24
	size int32
}

func newReliableWindow(size int32) *reliableWindow {
	return &reliableWindow{seen: make(map[Sequence24]struct{}), size: size}
}

// CheckAndMark returns true if idx has not been seen before (and records
// it), false if it is a duplicate or has already fallen out of the window.
func (w *reliableWindow) CheckAndMark(idx Sequence24) bool {
	if idx.Less(w.low) {
		return false
	}
	if _, ok := w.seen[idx]; ok {
		return false
	}
	w.seen[idx] = struct{}{}
	if d := w.low.Distance(idx); d > w.size {
		newLow := idx.Add(-w.size)
		for k := range w.seen {
			if k.Less(newLow) {
				delete(w.seen, k)
			}
		}
		w.low = newLow
	}
	return true
}

package raknet

import (
	"container/heap"
	"time"
)

// Priority identifies one of four outbound priority classes. Lower numeric
// values drain first; NumPriorities classes are weighted exponentially so
// high-priority traffic (acks, handshake control) can't be starved by bulk
// traffic, but bulk traffic is still bounded from starving entirely.
type Priority byte

const (
	PriorityImmediate Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	NumPriorities
)

// priorityWeights are exponentially spaced so PriorityImmediate drains
// roughly 8x as often as PriorityLow under contention, without ever
// reducing a lower class's weight to zero.
var priorityWeights = [NumPriorities]int{8, 4, 2, 1}

// outboundItem is one payload waiting to be packed into a datagram.
type outboundItem struct {
	priority    Priority
	enqueuedAt  time.Time
	packet      *EncapsulatedPacket
	seq         uint64 // monotonic insertion sequence, for FIFO within a class
}

// outboundQueue is a priority queue over pending outbound encapsulated
// packets. It drains in weighted round-robin order across priority
// classes, oldest-first within a class.
type outboundQueue struct {
	items    []outboundItem
	nextSeq  uint64
	credits  [NumPriorities]int
}

func newOutboundQueue() *outboundQueue {
	q := &outboundQueue{}
	q.resetCredits()
	return q
}

func (q *outboundQueue) resetCredits() {
	q.credits = priorityWeights
}

func (q *outboundQueue) Len() int { return len(q.items) }

func (q *outboundQueue) Push(priority Priority, p *EncapsulatedPacket, now time.Time) {
	q.items = append(q.items, outboundItem{priority: priority, enqueuedAt: now, packet: p, seq: q.nextSeq})
	q.nextSeq++
}

// PopNext removes and returns the next item to send, honoring weighted
// priority draining. Returns false if the queue is empty.
func (q *outboundQueue) PopNext() (outboundItem, bool) {
	if len(q.items) == 0 {
		return outboundItem{}, false
	}
	for attempt := 0; attempt < int(NumPriorities)+1; attempt++ {
		best := -1
		for i, it := range q.items {
			if q.credits[it.priority] <= 0 {
				continue
			}
			if best == -1 || it.priority < q.items[best].priority ||
				(it.priority == q.items[best].priority && it.seq < q.items[best].seq) {
				best = i
			}
		}
		if best >= 0 {
			item := q.items[best]
			q.items = append(q.items[:best], q.items[best+1:]...)
			q.credits[item.priority]--
			return item, true
		}
		q.resetCredits()
	}
	// All credits exhausted across a full reset cycle with items still
	// present (pathological weights): fall back to strict oldest-first.
	oldest := 0
	for i := range q.items {
		if q.items[i].seq < q.items[oldest].seq {
			oldest = i
		}
	}
	item := q.items[oldest]
	q.items = append(q.items[:oldest], q.items[oldest+1:]...)
	return item, true
}

// sentRecord tracks one in-flight reliable datagram awaiting ACK.
type sentRecord struct {
	seq      Sequence24
	sentAt   time.Time
	nextSend time.Time
	packets  []*EncapsulatedPacket
	retries  int
}

// slidingWindow is a simple additive-increase/multiplicative-decrease
// congestion controller bounding how many unacknowledged reliable
// datagrams may be in flight at once.
type slidingWindow struct {
	cwnd       float64
	minCwnd    float64
	maxCwnd    float64
	inFlight   int
}

func newSlidingWindow() *slidingWindow {
	return &slidingWindow{cwnd: 4, minCwnd: 2, maxCwnd: 2048}
}

func (w *slidingWindow) CanSend() bool {
	return float64(w.inFlight) < w.cwnd
}

func (w *slidingWindow) OnSend() { w.inFlight++ }

func (w *slidingWindow) OnAck() {
	if w.inFlight > 0 {
		w.inFlight--
	}
	w.cwnd += 1 / w.cwnd
	if w.cwnd > w.maxCwnd {
		w.cwnd = w.maxCwnd
	}
}

func (w *slidingWindow) OnLoss() {
	if w.inFlight > 0 {
		w.inFlight--
	}
	w.cwnd /= 2
	if w.cwnd < w.minCwnd {
		w.cwnd = w.minCwnd
	}
}

// retransmitBackoff returns the next retransmit deadline given a base RTO
// and retry count, exponential with a ceiling.
func retransmitBackoff(base time.Duration, retries int, ceiling time.Duration) time.Duration {
	d := base
	for i := 0; i < retries; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

// recoveryHeap is a min-heap of sentRecord ordered by nextSend deadline,
// used to find the next datagram due for retransmission without scanning
// the whole map every tick.
type recoveryHeap []*sentRecord

func (h recoveryHeap) Len() int            { return len(h) }
func (h recoveryHeap) Less(i, j int) bool  { return h[i].nextSend.Before(h[j].nextSend) }
func (h recoveryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *recoveryHeap) Push(x interface{}) { *h = append(*h, x.(*sentRecord)) }
func (h *recoveryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ = heap.Interface(&recoveryHeap{})

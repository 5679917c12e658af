package raknet

import "container/heap"

// NumOrderingChannels is the number of independent ordering channels a
// session maintains, matching the conventional RakNet channel count.
const NumOrderingChannels = 32

type orderedItem struct {
	index   Sequence24
	payload []byte
}

// orderedHeap is a min-heap of buffered out-of-order arrivals for one
// channel, ordered by wrap-aware distance so reassembly drains in the
// correct sequence even across a 24-bit wraparound.
type orderedHeap []orderedItem

func (h orderedHeap) Len() int            { return len(h) }
func (h orderedHeap) Less(i, j int) bool  { return h[i].index.Less(h[j].index) }
func (h orderedHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *orderedHeap) Push(x interface{}) { *h = append(*h, x.(orderedItem)) }
func (h *orderedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type orderingChannel struct {
	expectedNext  Sequence24
	lastSequenced Sequence24
	haveSequenced bool
	buffered      orderedHeap
}

// OrderingChannels tracks the reassembly state of every ordering channel for
// one session: ReliableOrdered packets are buffered until contiguous,
// *Sequenced packets are delivered immediately but dropped if stale.
type OrderingChannels struct {
	channels [NumOrderingChannels]orderingChannel
}

func NewOrderingChannels() *OrderingChannels {
	return &OrderingChannels{}
}

// HandleOrdered processes a ReliableOrdered (or ReliableOrderedWithAckReceipt)
// arrival and returns, in delivery order, every payload now ready for the
// application: the packet itself if it was next, plus any buffered
// successors that become contiguous as a result.
func (o *OrderingChannels) HandleOrdered(channel byte, index Sequence24, payload []byte) [][]byte {
	c := &o.channels[channel]
	if index != c.expectedNext {
		if index.Less(c.expectedNext) {
			// Stale duplicate (already delivered); discard.
			return nil
		}
		heap.Push(&c.buffered, orderedItem{index: index, payload: payload})
		return nil
	}

	out := [][]byte{payload}
	c.expectedNext = c.expectedNext.Next()
	for len(c.buffered) > 0 && c.buffered[0].index == c.expectedNext {
		item := heap.Pop(&c.buffered).(orderedItem)
		out = append(out, item.payload)
		c.expectedNext = c.expectedNext.Next()
	}
	return out
}

// HandleSequenced processes an Unreliable/ReliableSequenced arrival. It
// returns the payload and true if it should be delivered, or nil,false if
// it is stale relative to the highest index already observed on this
// channel.
func (o *OrderingChannels) HandleSequenced(channel byte, orderIndex Sequence24, payload []byte) ([]byte, bool) {
	c := &o.channels[channel]
	if c.haveSequenced && orderIndex.LessEqual(c.lastSequenced) {
		return nil, false
	}
	c.lastSequenced = orderIndex
	c.haveSequenced = true
	return payload, true
}

// BufferedCount returns how many out-of-order packets are currently
// buffered on channel, for diagnostics/metrics.
func (o *OrderingChannels) BufferedCount(channel byte) int {
	return len(o.channels[channel].buffered)
}

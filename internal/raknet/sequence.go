package raknet

// Sequence24 is a 24-bit monotonic counter used for datagram sequence
// numbers and the various reliability indices. It wraps at 2^24 and all
// comparisons are distance-aware so that wraparound never looks like a
// huge jump backwards.
type Sequence24 uint32

const seq24Mask = 0x00FFFFFF
const seq24Half = 0x00800000

// NewSequence24 masks v down to 24 bits.
func NewSequence24(v uint32) Sequence24 {
	return Sequence24(v & seq24Mask)
}

// Next returns the sequence following s, wrapping at 2^24.
func (s Sequence24) Next() Sequence24 {
	return Sequence24((uint32(s) + 1) & seq24Mask)
}

// Prev returns the sequence preceding s, wrapping at 2^24.
func (s Sequence24) Prev() Sequence24 {
	return Sequence24((uint32(s) - 1) & seq24Mask)
}

// Add returns s advanced by n (n may be negative), wrapping at 2^24.
func (s Sequence24) Add(n int32) Sequence24 {
	return Sequence24((uint32(int64(s)+int64(n)) & seq24Mask))
}

// Distance returns the signed distance from s to other in [-2^23, 2^23),
// i.e. other == s.Add(distance).
func (s Sequence24) Distance(other Sequence24) int32 {
	d := (int32(other) - int32(s)) & seq24Mask
	if d >= seq24Half {
		d -= seq24Mask + 1
	}
	return d
}

// Less reports whether s comes strictly before other in wraparound order.
func (s Sequence24) Less(other Sequence24) bool {
	return s.Distance(other) > 0
}

// LessEqual reports whether s comes at or before other in wraparound order.
func (s Sequence24) LessEqual(other Sequence24) bool {
	return s == other || s.Less(other)
}

func (s Sequence24) Uint32() uint32 { return uint32(s) }

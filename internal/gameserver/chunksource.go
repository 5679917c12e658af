package gameserver

import "beacon/internal/chunks"

// FlatChunkSource encodes every column as the same minimal placeholder
// payload (see encodeFlatColumn), with no world simulation behind it. This deployment's world layer is
// intentionally out of scope; FlatChunkSource exists so the chunk
// streamer and its load-queue/viewer-set bookkeeping have something
// concrete to push over the wire end to end.
type FlatChunkSource struct {
	payload []byte
}

// NewFlatChunkSource builds a source that returns the same encoded column
// for every coordinate.
func NewFlatChunkSource() *FlatChunkSource {
	return &FlatChunkSource{payload: encodeFlatColumn()}
}

// Encode implements chunks.Source.
func (f *FlatChunkSource) Encode(_ chunks.Coord) ([]byte, error) {
	return f.payload, nil
}

// encodeFlatColumn builds a two-byte placeholder: sub-chunk format version
// 9 followed by a single zero byte. It carries no sub-chunk index and no
// block palette entries.
func encodeFlatColumn() []byte {
	const subChunkFormatVersion = 9
	return []byte{subChunkFormatVersion, 0x00}
}

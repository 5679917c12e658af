package raknet

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by Read* helpers when the underlying buffer
// does not contain enough bytes for the requested field.
var ErrShortBuffer = errors.New("raknet: short buffer")

// BitStream is a small cursor-based byte buffer reader/writer used to build
// and parse the wire formats in this package. Despite the name it operates
// on whole bytes; fields that are conceptually bit-packed (reliability +
// split flags) are handled a byte at a time by the caller.
type BitStream struct {
	buf []byte
	pos int
}

// NewBitStream wraps an existing byte slice for reading.
func NewBitStream(buf []byte) *BitStream {
	return &BitStream{buf: buf}
}

// NewBitStreamWriter returns an empty BitStream ready for writing.
func NewBitStreamWriter() *BitStream {
	return &BitStream{buf: make([]byte, 0, 128)}
}

func (b *BitStream) Bytes() []byte { return b.buf }
func (b *BitStream) Len() int      { return len(b.buf) }
func (b *BitStream) Remaining() int {
	return len(b.buf) - b.pos
}
func (b *BitStream) Pos() int { return b.pos }

func (b *BitStream) WriteByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *BitStream) WriteBytes(v []byte) {
	b.buf = append(b.buf, v...)
}

func (b *BitStream) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *BitStream) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// WriteUint24 writes the low 24 bits of v, big-endian.
func (b *BitStream) WriteUint24(v uint32) {
	b.buf = append(b.buf, byte(v>>16), byte(v>>8), byte(v))
}

func (b *BitStream) ReadByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

func (b *BitStream) ReadBytes(n int) ([]byte, error) {
	if b.Remaining() < n {
		return nil, ErrShortBuffer
	}
	v := b.buf[b.pos : b.pos+n]
	b.pos += n
	return v, nil
}

func (b *BitStream) ReadUint16() (uint16, error) {
	v, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(v), nil
}

func (b *BitStream) ReadUint32() (uint32, error) {
	v, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v), nil
}

// ReadUint24 reads 3 big-endian bytes into the low 24 bits of a uint32.
func (b *BitStream) ReadUint24() (uint32, error) {
	v, err := b.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(v[0])<<16 | uint32(v[1])<<8 | uint32(v[2]), nil
}

// Package bedrock implements the game-packet session layer that rides on
// top of a raknet.Session: batching, compression, encryption, and the
// typed handshake state machine.
package bedrock

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/google/uuid"
)

var (
	ErrVarIntTooLarge  = errors.New("bedrock: varint too large")
	ErrVarLongTooLarge = errors.New("bedrock: varlong too large")
)

// Writer accumulates little-endian-encoded Bedrock protocol fields.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{buf: make([]byte, 0, 256)} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) Uint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) Uint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) Uint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

// VarUint32 writes v as LEB128, 7 bits per byte, matching the reference
// wire format's var_u32.
func (w *Writer) VarUint32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			w.buf = append(w.buf, b|0x80)
		} else {
			w.buf = append(w.buf, b)
			return
		}
	}
}

// VarInt32 zigzag-encodes v then writes it as VarUint32.
func (w *Writer) VarInt32(v int32) {
	w.VarUint32(uint32((v << 1) ^ (v >> 31)))
}

// VarUint64 writes v as LEB128.
func (w *Writer) VarUint64(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			w.buf = append(w.buf, b|0x80)
		} else {
			w.buf = append(w.buf, b)
			return
		}
	}
}

// VarInt64 zigzag-encodes v then writes it as VarUint64.
func (w *Writer) VarInt64(v int64) {
	w.VarUint64(uint64((v << 1) ^ (v >> 63)))
}

// String writes a var_u32-length-prefixed UTF-8 string.
func (w *Writer) String(s string) {
	w.VarUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// RawBytes writes raw bytes with no length prefix.
func (w *Writer) RawBytes(b []byte) { w.buf = append(w.buf, b...) }

// UUID writes a UUID as 16 raw bytes.
func (w *Writer) UUID(u uuid.UUID) { w.buf = append(w.buf, u[:]...) }

// Reader parses little-endian-encoded Bedrock protocol fields from a fixed
// buffer, tracking a read cursor.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, io.ErrUnexpectedEOF
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *Reader) Uint8() (uint8, error) {
	v, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	return v != 0, err
}

func (r *Reader) Uint16() (uint16, error) {
	v, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(v), nil
}

func (r *Reader) Uint32() (uint32, error) {
	v, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v), nil
}

func (r *Reader) Uint64() (uint64, error) {
	v, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v), nil
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// VarUint32 reads a LEB128-encoded uint32, erroring if more than 5 groups
// of 7 bits are needed (matches the reference's max-shift-35 overflow
// check).
func (r *Reader) VarUint32() (uint32, error) {
	var v uint32
	for shift := uint(0); ; shift += 7 {
		if shift >= 35 {
			return 0, ErrVarIntTooLarge
		}
		b, err := r.Uint8()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

func (r *Reader) VarInt32() (int32, error) {
	v, err := r.VarUint32()
	if err != nil {
		return 0, err
	}
	return int32(v>>1) ^ -int32(v&1), nil
}

// VarUint64 reads a LEB128-encoded uint64, erroring past 10 groups of 7
// bits (max-shift-70, matching the reference's VarLong bound).
func (r *Reader) VarUint64() (uint64, error) {
	var v uint64
	for shift := uint(0); ; shift += 7 {
		if shift >= 70 {
			return 0, ErrVarLongTooLarge
		}
		b, err := r.Uint8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

func (r *Reader) VarInt64() (int64, error) {
	v, err := r.VarUint64()
	if err != nil {
		return 0, err
	}
	return int64(v>>1) ^ -int64(v&1), nil
}

// String reads a var_u32-length-prefixed UTF-8 string.
func (r *Reader) String() (string, error) {
	n, err := r.VarUint32()
	if err != nil {
		return "", err
	}
	v, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (r *Reader) RawBytes(n int) ([]byte, error) { return r.take(n) }

func (r *Reader) UUID() (uuid.UUID, error) {
	v, err := r.take(16)
	if err != nil {
		return uuid.UUID{}, err
	}
	var u uuid.UUID
	copy(u[:], v)
	return u, nil
}


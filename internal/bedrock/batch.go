package bedrock

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
)

// GamePacketTag is the leading byte of every raw or batched Bedrock frame.
const GamePacketTag = 0xFE

// CompressionAlgorithm tags the byte immediately following GamePacketTag,
// resolving which of the two shapes described by the wire format a given
// frame uses.
type CompressionAlgorithm byte

const (
	CompressionDeflate CompressionAlgorithm = 0x00
	CompressionNone    CompressionAlgorithm = 0xFF
)

var (
	ErrNotAGamePacket      = errors.New("bedrock: missing game packet tag")
	ErrBatchTooLarge       = errors.New("bedrock: decompressed batch exceeds max_decompressed_batch_size")
	ErrUnknownCompression  = errors.New("bedrock: unknown compression algorithm tag")
	ErrEmptyBatch          = errors.New("bedrock: empty batch")
)

// PacketEntry is one typed payload inside a batch.
type PacketEntry struct {
	PacketID     uint16 // 10 bits
	FromSubclient byte  // 2 bits
	ToSubclient   byte  // 2 bits
	Body          []byte
}

func encodeHeader(e PacketEntry) uint32 {
	return (uint32(e.ToSubclient&0x3) << 12) | (uint32(e.FromSubclient&0x3) << 10) | uint32(e.PacketID&0x3FF)
}

func decodeHeader(h uint32) (packetID uint16, from, to byte) {
	return uint16(h & 0x3FF), byte((h >> 10) & 0x3), byte((h >> 12) & 0x3)
}

// CompressionSettings controls how EncodeBatch treats a set of entries.
type CompressionSettings struct {
	Enabled                 bool
	Level                   int
	ThresholdBytes          int
	MaxDecompressedBatch    int
}

// DefaultCompressionSettings matches the reference transport's defaults:
// compression on, zlib level 7, no size threshold (threshold=0 compresses
// everything), 4 MiB decompressed-batch cap.
func DefaultCompressionSettings() CompressionSettings {
	return CompressionSettings{Enabled: true, Level: 7, ThresholdBytes: 0, MaxDecompressedBatch: 4 * 1024 * 1024}
}

// EncodeEntries concatenates entries into [varu32 len][varu32 header][body]*,
// with no GamePacketTag or compression applied yet.
func EncodeEntries(entries []PacketEntry) []byte {
	w := NewWriter()
	for _, e := range entries {
		inner := NewWriter()
		inner.VarUint32(encodeHeader(e))
		inner.RawBytes(e.Body)
		w.VarUint32(uint32(len(inner.Bytes())))
		w.RawBytes(inner.Bytes())
	}
	return w.Bytes()
}

// DecodeEntries parses the concatenation EncodeEntries produces.
func DecodeEntries(raw []byte) ([]PacketEntry, error) {
	r := NewReader(raw)
	var entries []PacketEntry
	for r.Remaining() > 0 {
		innerLen, err := r.VarUint32()
		if err != nil {
			return nil, err
		}
		body, err := r.RawBytes(int(innerLen))
		if err != nil {
			return nil, err
		}
		inner := NewReader(body)
		header, err := inner.VarUint32()
		if err != nil {
			return nil, err
		}
		id, from, to := decodeHeader(header)
		entries = append(entries, PacketEntry{
			PacketID:      id,
			FromSubclient: from,
			ToSubclient:   to,
			Body:          append([]byte(nil), body[inner.pos:]...),
		})
	}
	return entries, nil
}

// EncodeBatch builds a full `0xFE`-tagged batch frame from entries,
// compressing with raw deflate when enabled and the uncompressed size
// meets the configured threshold.
func EncodeBatch(entries []PacketEntry, settings CompressionSettings) ([]byte, error) {
	raw := EncodeEntries(entries)

	out := make([]byte, 0, len(raw)+2)
	out = append(out, GamePacketTag)

	if settings.Enabled && len(raw) >= settings.ThresholdBytes {
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, settings.Level)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(raw); err != nil {
			return nil, err
		}
		if err := fw.Close(); err != nil {
			return nil, err
		}
		out = append(out, byte(CompressionDeflate))
		out = append(out, buf.Bytes()...)
		return out, nil
	}

	out = append(out, byte(CompressionNone))
	out = append(out, raw...)
	return out, nil
}

// DecodeBatch reverses EncodeBatch, refusing to inflate past
// MaxDecompressedBatch bytes.
func DecodeBatch(frame []byte, settings CompressionSettings) ([]PacketEntry, error) {
	if len(frame) < 2 || frame[0] != GamePacketTag {
		return nil, ErrNotAGamePacket
	}
	algo := CompressionAlgorithm(frame[1])
	payload := frame[2:]

	switch algo {
	case CompressionNone:
		return DecodeEntries(payload)
	case CompressionDeflate:
		fr := flate.NewReader(bytes.NewReader(payload))
		defer fr.Close()
		limited := io.LimitReader(fr, int64(settings.MaxDecompressedBatch)+1)
		raw, err := io.ReadAll(limited)
		if err != nil {
			return nil, err
		}
		if len(raw) > settings.MaxDecompressedBatch {
			return nil, ErrBatchTooLarge
		}
		return DecodeEntries(raw)
	default:
		return nil, ErrUnknownCompression
	}
}

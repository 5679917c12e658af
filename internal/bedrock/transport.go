package bedrock

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

var ErrChecksumMismatch = errors.New("bedrock: encrypted frame checksum mismatch")

const checksumLen = 8

// EncryptionState holds the AES-256-CTR keystream derived once from the
// shared secret at the end of the key-exchange handshake. Unlike a
// per-message nonce scheme, the CTR keystream is continuous across the
// whole session: the cipher.Stream advances its own internal counter as
// bytes are XORed through it, so encrypt/decrypt calls must happen in
// network order on each side.
type EncryptionState struct {
	sendStream cipher.Stream
	recvStream cipher.Stream
	key        []byte
	sendCount  uint64
	recvCount  uint64
}

// NewEncryptionState derives an EncryptionState from a 32-byte shared secret
// (the output of the ECDH exchange run over the client/server public keys).
// The low 12 bytes of the secret seed the IV; the high 4 bytes carry a
// big-endian counter initialized to 2, matching the reference transport
// (0 and 1 are reserved by the handshake tokens that derive the secret).
func NewEncryptionState(secret []byte) (*EncryptionState, error) {
	block, err := aes.NewCipher(secret[:32])
	if err != nil {
		return nil, err
	}
	var iv [16]byte
	copy(iv[:12], secret[:12])
	binary.BigEndian.PutUint32(iv[12:], 2)

	sendBlock, err := aes.NewCipher(secret[:32])
	if err != nil {
		return nil, err
	}
	return &EncryptionState{
		sendStream: cipher.NewCTR(block, iv[:]),
		recvStream: cipher.NewCTR(sendBlock, iv[:]),
		key:        append([]byte(nil), secret[:32]...),
	}, nil
}

// checksum reproduces the reference transport's SHA256(counter_le ||
// payload || key)[0:8], where payload excludes the leading unencrypted
// packet-header byte.
func checksum(counter uint64, payload, key []byte) []byte {
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], counter)
	h := sha256.New()
	h.Write(ctr[:])
	h.Write(payload)
	h.Write(key)
	return h.Sum(nil)[:checksumLen]
}

// Encrypt leaves frame[0] (the packet header byte) in the clear, appends a
// checksum over the remainder, then encrypts everything from index 1
// onward in place against the continuous send keystream.
func (s *EncryptionState) Encrypt(frame []byte) []byte {
	if len(frame) == 0 {
		return frame
	}
	sum := checksum(s.sendCount, frame[1:], s.key)
	s.sendCount++

	out := make([]byte, len(frame)+checksumLen)
	out[0] = frame[0]
	copy(out[1:], frame[1:])
	copy(out[len(frame):], sum)

	s.sendStream.XORKeyStream(out[1:], out[1:])
	return out
}

// Decrypt reverses Encrypt: it decrypts frame[1:] against the continuous
// receive keystream, then verifies the trailing checksum before stripping
// it off.
func (s *EncryptionState) Decrypt(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return frame, nil
	}
	if len(frame) < 1+checksumLen {
		return nil, ErrChecksumMismatch
	}

	out := make([]byte, len(frame))
	out[0] = frame[0]
	s.recvStream.XORKeyStream(out[1:], frame[1:])

	checksumStart := len(out) - checksumLen
	theirSum := out[checksumStart:]

	wantSum := checksum(s.recvCount, out[1:checksumStart], s.key)
	s.recvCount++

	if !bytes.Equal(theirSum, wantSum) {
		return nil, ErrChecksumMismatch
	}
	return out[:checksumStart], nil
}

package bedrock

// Transport composes batching, compression and encryption into the shape
// the handshake state machine speaks in: whole outgoing frames in, whole
// incoming frames out. It does not own a socket; callers hand it raw
// datagram payloads (as delivered by a raknet.Session) and get back wire
// frames to queue for send.
type Transport struct {
	Compression CompressionSettings
	Encryption  *EncryptionState // nil until the handshake derives a shared secret
}

// NewTransport returns a Transport with compression disabled and no
// encryption, matching the state before RequestNetworkSettings completes.
func NewTransport() *Transport {
	return &Transport{Compression: CompressionSettings{Enabled: false}}
}

// EnableCompression switches on batch compression once NetworkSettings has
// been exchanged.
func (t *Transport) EnableCompression(threshold int, level int) {
	t.Compression = CompressionSettings{
		Enabled:              true,
		Level:                level,
		ThresholdBytes:       threshold,
		MaxDecompressedBatch: DefaultCompressionSettings().MaxDecompressedBatch,
	}
}

// EnableEncryption switches on AES-256-CTR encryption once the handshake's
// key exchange has produced a shared secret.
func (t *Transport) EnableEncryption(secret []byte) error {
	enc, err := NewEncryptionState(secret)
	if err != nil {
		return err
	}
	t.Encryption = enc
	return nil
}

// EncodeRaw frames a single unbatched packet (only RequestNetworkSettings
// and NetworkSettings travel this way, before compression parameters
// exist), encrypting it if encryption is already active.
func (t *Transport) EncodeRaw(packetID uint16, body []byte) []byte {
	w := NewWriter()
	w.VarUint32(uint32(packetID))
	w.RawBytes(body)
	frame := w.Bytes()
	if t.Encryption != nil {
		frame = t.Encryption.Encrypt(frame)
	}
	return frame
}

// DecodeRaw reverses EncodeRaw.
func (t *Transport) DecodeRaw(frame []byte) (uint16, []byte, error) {
	if t.Encryption != nil {
		var err error
		frame, err = t.Encryption.Decrypt(frame)
		if err != nil {
			return 0, nil, err
		}
	}
	r := NewReader(frame)
	id, err := r.VarUint32()
	if err != nil {
		return 0, nil, err
	}
	body, err := r.RawBytes(r.Remaining())
	if err != nil {
		return 0, nil, err
	}
	return uint16(id), body, nil
}

// EncodeBatch frames entries as a 0xFE batch, compressing per Compression
// and encrypting if Encryption is active.
func (t *Transport) EncodeBatch(entries []PacketEntry) ([]byte, error) {
	frame, err := EncodeBatch(entries, t.Compression)
	if err != nil {
		return nil, err
	}
	if t.Encryption != nil {
		frame = t.Encryption.Encrypt(frame)
	}
	return frame, nil
}

// DecodeIncoming decrypts frame if needed, then dispatches on the leading
// byte: a 0xFE tag means a batch, anything else a raw single packet.
func (t *Transport) DecodeIncoming(frame []byte) (entries []PacketEntry, rawID uint16, rawBody []byte, err error) {
	if t.Encryption != nil {
		frame, err = t.Encryption.Decrypt(frame)
		if err != nil {
			return nil, 0, nil, err
		}
	}
	if len(frame) > 0 && frame[0] == GamePacketTag {
		entries, err = DecodeBatch(frame, t.Compression)
		return entries, 0, nil, err
	}
	id, body, err := t.decodeRawFrame(frame)
	return nil, id, body, err
}

func (t *Transport) decodeRawFrame(frame []byte) (uint16, []byte, error) {
	r := NewReader(frame)
	id, err := r.VarUint32()
	if err != nil {
		return 0, nil, err
	}
	body, err := r.RawBytes(r.Remaining())
	if err != nil {
		return 0, nil, err
	}
	return uint16(id), body, nil
}

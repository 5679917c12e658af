package raknet

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Offline message IDs, exchanged before a Session exists: unconnected
// ping/pong for discovery, and the two-phase open-connection handshake
// that negotiates MTU before a Session is created.
const (
	IDUnconnectedPing            byte = 0x01
	IDUnconnectedPong            byte = 0x1C
	IDOpenConnectionRequest1     byte = 0x05
	IDOpenConnectionReply1       byte = 0x06
	IDOpenConnectionRequest2     byte = 0x07
	IDOpenConnectionReply2       byte = 0x08
	IDIncompatibleProtocol       byte = 0x19
	IDNoFreeIncomingConnections  byte = 0x14
	IDAlreadyConnected           byte = 0x12
)

// OfflineMagic is the fixed 16-byte marker every offline message carries,
// distinguishing RakNet control traffic from session-scoped datagrams.
var OfflineMagic = [16]byte{
	0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe, 0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78,
}

var ErrBadMagic = errors.New("raknet: bad offline message magic")
var ErrBadOfflineMessage = errors.New("raknet: malformed offline message")

func writeMagic(b *BitStream) {
	b.WriteBytes(OfflineMagic[:])
}

func checkMagic(b *BitStream) error {
	magic, err := b.ReadBytes(16)
	if err != nil {
		return err
	}
	if !bytes.Equal(magic, OfflineMagic[:]) {
		return ErrBadMagic
	}
	return nil
}

// EncodeUnconnectedPong builds the server's reply to an unconnected ping,
// carrying a MOTD-style status string used by LAN discovery and the
// Bedrock server-list ping.
func EncodeUnconnectedPong(pingTime int64, guid uint64, motd string) []byte {
	b := NewBitStreamWriter()
	b.WriteByte(IDUnconnectedPong)
	b.WriteUint64(uint64(pingTime))
	b.WriteUint64(guid)
	writeMagic(b)
	b.WriteUint16(uint16(len(motd)))
	b.WriteBytes([]byte(motd))
	return b.Bytes()
}

// DecodeUnconnectedPing parses an unconnected ping's echo'd timestamp.
func DecodeUnconnectedPing(raw []byte) (pingTime int64, clientGUID uint64, err error) {
	b := NewBitStream(raw)
	t, err := b.ReadUint64()
	if err != nil {
		return 0, 0, err
	}
	if err := checkMagic(b); err != nil {
		return 0, 0, err
	}
	guid, err := b.ReadUint64()
	if err != nil {
		return 0, 0, err
	}
	return int64(t), guid, nil
}

// EncodeOpenConnectionReply1 answers OPEN_CONNECTION_REQUEST_1, echoing the
// server GUID and proposed MTU so the client can pick its final MTU.
func EncodeOpenConnectionReply1(serverGUID uint64, mtu uint16) []byte {
	b := NewBitStreamWriter()
	b.WriteByte(IDOpenConnectionReply1)
	writeMagic(b)
	b.WriteUint64(serverGUID)
	b.WriteByte(0) // no security/cookie support
	b.WriteUint16(mtu)
	return b.Bytes()
}

// DecodeOpenConnectionRequest1 reads the protocol version; the MTU itself
// is inferred by the caller from the size of the raw UDP datagram (the
// request is padded with zero bytes up to the client's candidate MTU).
func DecodeOpenConnectionRequest1(raw []byte) (protocolVersion byte, err error) {
	b := NewBitStream(raw)
	if err := checkMagic(b); err != nil {
		return 0, err
	}
	return b.ReadByte()
}

// OpenConnectionRequest2 is the client's MTU-confirming second handshake
// message, naming the server address it dialed and its own GUID.
type OpenConnectionRequest2 struct {
	ServerAddress string
	ServerPort    uint16
	MTU           uint16
	ClientGUID    uint64
}

// DecodeOpenConnectionRequest2 parses the confirmed MTU and client GUID.
func DecodeOpenConnectionRequest2(raw []byte) (*OpenConnectionRequest2, error) {
	b := NewBitStream(raw)
	if err := checkMagic(b); err != nil {
		return nil, err
	}
	// Server address (IPv4-style encoded, version byte + 4 octets + port).
	ver, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	if ver != 4 {
		return nil, ErrBadOfflineMessage
	}
	octets, err := b.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	port, err := b.ReadUint16()
	if err != nil {
		return nil, err
	}
	mtu, err := b.ReadUint16()
	if err != nil {
		return nil, err
	}
	guid, err := b.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &OpenConnectionRequest2{
		ServerAddress: ipv4String(octets),
		ServerPort:    port,
		MTU:           mtu,
		ClientGUID:    guid,
	}, nil
}

func ipv4String(octets []byte) string {
	return string([]byte{
		'0' + octets[0]/100, '0' + (octets[0]/10)%10, '0' + octets[0]%10, '.',
		'0' + octets[1]/100, '0' + (octets[1]/10)%10, '0' + octets[1]%10, '.',
		'0' + octets[2]/100, '0' + (octets[2]/10)%10, '0' + octets[2]%10, '.',
		'0' + octets[3]/100, '0' + (octets[3]/10)%10, '0' + octets[3]%10,
	})
}

// EncodeOpenConnectionReply2 finalizes the handshake: after this exchange
// the listener creates a Session using the negotiated MTU.
func EncodeOpenConnectionReply2(serverGUID uint64, clientAddrOctets [4]byte, clientPort uint16, mtu uint16) []byte {
	b := NewBitStreamWriter()
	b.WriteByte(IDOpenConnectionReply2)
	writeMagic(b)
	b.WriteUint64(serverGUID)
	b.WriteByte(4)
	b.WriteBytes(clientAddrOctets[:])
	b.WriteUint16(clientPort)
	b.WriteUint16(mtu)
	b.WriteByte(0) // no encrypted-handshake extension
	return b.Bytes()
}

// small helper, kept local: BitStream doesn't have a 64-bit writer/reader
// in bitstream.go since the RakNet session framing never needed one; the
// offline handshake does (timestamps, GUIDs).
func (b *BitStream) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *BitStream) ReadUint64() (uint64, error) {
	v, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

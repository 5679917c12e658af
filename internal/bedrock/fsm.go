package bedrock

import (
	"crypto/ecdsa"
	"errors"
)

// ProtocolVersion is the client protocol version this session layer
// negotiates. Clients presenting a different version are rejected during
// RequestNetworkSettings.
const ProtocolVersion = 766

var ErrProtocolMismatch = errors.New("bedrock: client protocol version mismatch")

// The handshake progresses through a fixed sequence of typed states, each
// consuming the previous one by value and producing the next: a client (or
// test) cannot call a state's methods out of order because the previous
// state's value no longer exists once consumed. This mirrors the
// session-layer's state machine, generalized from a client-only flow to
// the server's mirror image of it.

// Handshake is the state immediately after the RakNet session opens.
type Handshake struct {
	Transport *Transport
}

// NewHandshake begins the typed handshake over an already-open transport.
func NewHandshake(t *Transport) Handshake {
	return Handshake{Transport: t}
}

// AcceptNetworkSettings validates the client's requested protocol version,
// switches on batch compression, and returns the NetworkSettings reply to
// send raw (unbatched, since compression isn't active until the client
// receives this packet).
func (h Handshake) AcceptNetworkSettings(req RequestNetworkSettings, threshold int, level int) (Login, []byte, error) {
	if req.ClientProtocol != ProtocolVersion {
		return Login{}, nil, ErrProtocolMismatch
	}
	reply := NetworkSettings{CompressionThreshold: uint16(threshold), CompressionAlgorithm: 0}
	frame := h.Transport.EncodeRaw(IDNetworkSettings, reply.Encode())
	h.Transport.EnableCompression(threshold, level)
	return Login{Transport: h.Transport}, frame, nil
}

// Login is the state waiting for the client's Login packet.
type Login struct {
	Transport *Transport
}

// LoginConfig controls how AcceptLogin validates the presented chain.
type LoginConfig struct {
	OnlineMode     bool
	CandidateRoots []*ecdsa.PublicKey
}

// AcceptLogin parses and verifies the login chain, deriving the validated
// identity. It does not enable encryption: that happens once a caller
// has derived the shared secret from the identity's public key via ECDH
// and calls SecurePending.BeginEncryption.
func (l Login) AcceptLogin(pkt LoginPacket, cfg LoginConfig) (SecurePending, ValidatedIdentity, error) {
	chain, err := ParseLoginChain([]byte(pkt.IdentityJSON))
	if err != nil {
		return SecurePending{}, ValidatedIdentity{}, err
	}
	roots := cfg.CandidateRoots
	if !cfg.OnlineMode {
		roots = nil
	}
	identity, err := ValidateChain(chain, roots)
	if err != nil {
		return SecurePending{}, ValidatedIdentity{}, err
	}
	return SecurePending{Transport: l.Transport}, identity, nil
}

// SecurePending waits for the client to acknowledge the encryption
// handshake token before login completes.
type SecurePending struct {
	Transport *Transport
}

// BeginEncryption enables AES-256-CTR encryption on the transport using
// the shared secret derived via ECDH over the server's ephemeral key and
// the client's identityPublicKey, and returns the ServerToClientHandshake
// frame to send (encrypted, since encryption switches on before this
// frame is written, matching the reference transport's ordering).
func (s SecurePending) BeginEncryption(secret []byte, jwtToken string) (SecurePending, []byte, error) {
	if err := s.Transport.EnableEncryption(secret); err != nil {
		return s, nil, err
	}
	pkt := ServerToClientHandshake{Token: jwtToken}
	frame, err := s.Transport.EncodeBatch([]PacketEntry{{PacketID: IDServerToClientHandshake, Body: pkt.Encode()}})
	return s, frame, err
}

// AwaitClientHandshake consumes the client's ClientToServerHandshake
// acknowledgement and returns the PlayStatus(LoginSuccess) frame plus the
// ResourcePacksInfo frame that follows it.
func (s SecurePending) AwaitClientHandshake() (ResourcePacks, []byte, error) {
	loginSuccess := PlayStatusPacket{Status: PlayStatusLoginSuccess}
	info := ResourcePacksInfo{MustAccept: false}
	frame, err := s.Transport.EncodeBatch([]PacketEntry{
		{PacketID: IDPlayStatus, Body: loginSuccess.Encode()},
		{PacketID: IDResourcePacksInfo, Body: info.Encode()},
	})
	return ResourcePacks{Transport: s.Transport}, frame, err
}

// ResourcePacks negotiates pack acceptance. This deployment ships no packs,
// so the only valid client responses are HaveAllPacks then Completed.
type ResourcePacks struct {
	Transport *Transport
}

// ErrUnexpectedPackResponse is returned when a client reports a resource
// pack status other than HaveAllPacks or Completed; this deployment never
// sends packs so Refused/SendPacks are not meaningful replies to see.
var ErrUnexpectedPackResponse = errors.New("bedrock: unexpected resource pack response status")

// AcceptHaveAllPacks handles the client's HaveAllPacks response, replying
// with the (empty) pack stack and remaining in ResourcePacks to await
// Completed.
func (r ResourcePacks) AcceptHaveAllPacks(resp ResourcePackClientResponse) ([]byte, error) {
	if resp.Status != ResourcePackResponseHaveAllPacks {
		return nil, ErrUnexpectedPackResponse
	}
	stack := ResourcePackStack{MustAccept: false}
	return r.Transport.EncodeBatch([]PacketEntry{{PacketID: IDResourcePackStack, Body: stack.Encode()}})
}

// AcceptCompleted handles the client's Completed response and transitions
// to StartGame.
func (r ResourcePacks) AcceptCompleted(resp ResourcePackClientResponse) (StartGame, error) {
	if resp.Status != ResourcePackResponseCompleted {
		return StartGame{}, ErrUnexpectedPackResponse
	}
	return StartGame{Transport: r.Transport}, nil
}

// StartGame sends the world bootstrap sequence and waits for the client to
// request a chunk radius and confirm it is initialized.
type StartGame struct {
	Transport *Transport
}

// StartGameParams are the world-bootstrap fields the caller supplies; the
// FSM itself holds no world state.
type StartGameParams struct {
	RuntimeEntityID uint64
	Gamemode        int32
	SpawnX, SpawnY, SpawnZ float32
	WorldSeed       int64
	DefaultRadius   int32
	LevelID         string
	WorldName       string
}

// SendWorld emits StartGame followed by an empty ItemRegistry, the two
// packets a client waits for before requesting its chunk radius.
func (g StartGame) SendWorld(p StartGameParams) ([]byte, error) {
	start := StartGamePacket{
		RuntimeEntityID: p.RuntimeEntityID,
		PlayerGamemode:  p.Gamemode,
		PlayerPositionX: p.SpawnX,
		PlayerPositionY: p.SpawnY,
		PlayerPositionZ: p.SpawnZ,
		WorldSeed:       p.WorldSeed,
		ChunkRadius:     p.DefaultRadius,
		LevelID:         p.LevelID,
		WorldName:       p.WorldName,
	}
	return g.Transport.EncodeBatch([]PacketEntry{
		{PacketID: IDStartGame, Body: start.Encode()},
		{PacketID: IDItemRegistry, Body: ItemRegistry{}.Encode()},
	})
}

// AcceptChunkRadius replies to the client's requested view distance,
// clamping it, and announces the initial chunk publisher window centered
// on the spawn position.
func (g StartGame) AcceptChunkRadius(req RequestChunkRadius, maxRadius int32, center [3]int32) (Play, []byte, error) {
	radius := req.ChunkRadius
	if radius > maxRadius {
		radius = maxRadius
	}
	if radius < 1 {
		radius = 1
	}
	update := ChunkRadiusUpdate{ChunkRadius: radius}
	publish := NetworkChunkPublisherUpdate{X: center[0], Y: center[1], Z: center[2], Radius: uint32(radius)}
	frame, err := g.Transport.EncodeBatch([]PacketEntry{
		{PacketID: IDChunkRadiusUpdate, Body: update.Encode()},
		{PacketID: IDNetworkChunkPublisherUpdate, Body: publish.Encode()},
	})
	return Play{Transport: g.Transport}, frame, err
}

// AwaitInitialized consumes SetLocalPlayerAsInitialized and returns the
// PlayStatus(PlayerSpawn) frame that finally admits the player to Play.
func (g StartGame) AwaitInitialized(_ SetLocalPlayerAsInitialized) ([]byte, error) {
	spawn := PlayStatusPacket{Status: PlayStatusPlayerSpawn}
	return g.Transport.EncodeBatch([]PacketEntry{{PacketID: IDPlayStatus, Body: spawn.Encode()}})
}

// Play is the terminal state: ordinary game packets flow freely from here,
// framed and (when enabled) compressed/encrypted by Transport, with no
// further FSM transitions.
type Play struct {
	Transport *Transport
}

// Send batches and frames entries for this connection's current transport
// settings.
func (p Play) Send(entries []PacketEntry) ([]byte, error) {
	return p.Transport.EncodeBatch(entries)
}

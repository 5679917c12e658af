package bedrock

// Packet IDs for the subset of the Bedrock game protocol this session layer
// understands. Entries with other IDs are kept as PacketEntry values with
// their body left unparsed.
const (
	IDLogin                      uint16 = 1
	IDPlayStatus                 uint16 = 2
	IDServerToClientHandshake    uint16 = 3
	IDClientToServerHandshake    uint16 = 4
	IDDisconnect                 uint16 = 5
	IDResourcePacksInfo          uint16 = 6
	IDResourcePackStack          uint16 = 7
	IDResourcePackClientResponse uint16 = 8
	IDStartGame                  uint16 = 11
	IDLevelChunk                 uint16 = 58
	IDItemRegistry               uint16 = 16
	IDNetworkChunkPublisherUpdate uint16 = 121
	IDRequestChunkRadius         uint16 = 69
	IDChunkRadiusUpdate          uint16 = 70
	IDSetLocalPlayerAsInitialized uint16 = 113
	IDNetworkSettings            uint16 = 143
	IDRequestNetworkSettings     uint16 = 193
)

// PlayStatus mirrors the status codes carried by the PlayStatus packet.
type PlayStatus int32

const (
	PlayStatusLoginSuccess             PlayStatus = 0
	PlayStatusFailedClient             PlayStatus = 1
	PlayStatusFailedSpawn              PlayStatus = 2
	PlayStatusPlayerSpawn              PlayStatus = 3
	PlayStatusFailedInvalidTenant      PlayStatus = 4
	PlayStatusFailedVanillaEdu         PlayStatus = 5
	PlayStatusFailedIncompatiblePack   PlayStatus = 6
	PlayStatusFailedServerFull         PlayStatus = 7
)

// ResourcePackResponseStatus mirrors ResourcePackClientResponse's status
// field.
type ResourcePackResponseStatus byte

const (
	ResourcePackResponseRefused        ResourcePackResponseStatus = 1
	ResourcePackResponseSendPacks      ResourcePackResponseStatus = 2
	ResourcePackResponseHaveAllPacks   ResourcePackResponseStatus = 3
	ResourcePackResponseCompleted      ResourcePackResponseStatus = 4
)

// RequestNetworkSettings is the first packet a client sends, always raw
// (never batched or compressed): it negotiates the protocol version before
// compression parameters exist.
type RequestNetworkSettings struct {
	ClientProtocol int32
}

func (p RequestNetworkSettings) Encode() []byte {
	w := NewWriter()
	w.Uint32(uint32(p.ClientProtocol))
	return w.Bytes()
}

func DecodeRequestNetworkSettings(body []byte) (RequestNetworkSettings, error) {
	r := NewReader(body)
	v, err := r.Uint32()
	if err != nil {
		return RequestNetworkSettings{}, err
	}
	return RequestNetworkSettings{ClientProtocol: int32(v)}, nil
}

// NetworkSettings is the server's raw reply, carrying the compression
// parameters the rest of the session will use.
type NetworkSettings struct {
	CompressionThreshold uint16
	CompressionAlgorithm uint16
}

func (p NetworkSettings) Encode() []byte {
	w := NewWriter()
	w.Uint16(p.CompressionThreshold)
	w.Uint16(p.CompressionAlgorithm)
	return w.Bytes()
}

func DecodeNetworkSettings(body []byte) (NetworkSettings, error) {
	r := NewReader(body)
	threshold, err := r.Uint16()
	if err != nil {
		return NetworkSettings{}, err
	}
	algo, err := r.Uint16()
	if err != nil {
		return NetworkSettings{}, err
	}
	return NetworkSettings{CompressionThreshold: threshold, CompressionAlgorithm: algo}, nil
}

// LoginPacket carries the authentication chain and client data JWT.
type LoginPacket struct {
	ProtocolVersion int32
	IdentityJSON    string
	ClientDataJWT   string
}

func (p LoginPacket) Encode() []byte {
	w := NewWriter()
	w.Uint32(uint32(p.ProtocolVersion))
	w.String(p.IdentityJSON)
	w.String(p.ClientDataJWT)
	return w.Bytes()
}

func DecodeLogin(body []byte) (LoginPacket, error) {
	r := NewReader(body)
	proto, err := r.Uint32()
	if err != nil {
		return LoginPacket{}, err
	}
	identity, err := r.String()
	if err != nil {
		return LoginPacket{}, err
	}
	clientData, err := r.String()
	if err != nil {
		return LoginPacket{}, err
	}
	return LoginPacket{ProtocolVersion: int32(proto), IdentityJSON: identity, ClientDataJWT: clientData}, nil
}

// PlayStatusPacket reports login/spawn progress.
type PlayStatusPacket struct {
	Status PlayStatus
}

func (p PlayStatusPacket) Encode() []byte {
	w := NewWriter()
	w.Uint32(uint32(p.Status))
	return w.Bytes()
}

func DecodePlayStatus(body []byte) (PlayStatusPacket, error) {
	r := NewReader(body)
	v, err := r.Uint32()
	if err != nil {
		return PlayStatusPacket{}, err
	}
	return PlayStatusPacket{Status: PlayStatus(v)}, nil
}

// ServerToClientHandshake carries the server's JWT requesting the client
// derive the shared encryption secret.
type ServerToClientHandshake struct {
	Token string
}

func (p ServerToClientHandshake) Encode() []byte {
	w := NewWriter()
	w.String(p.Token)
	return w.Bytes()
}

func DecodeServerToClientHandshake(body []byte) (ServerToClientHandshake, error) {
	r := NewReader(body)
	tok, err := r.String()
	if err != nil {
		return ServerToClientHandshake{}, err
	}
	return ServerToClientHandshake{Token: tok}, nil
}

// ClientToServerHandshake is an empty acknowledgement that the client has
// switched on encryption.
type ClientToServerHandshake struct{}

func (ClientToServerHandshake) Encode() []byte { return nil }

// ResourcePacksInfo announces the server's resource pack manifest. This
// deployment carries no packs, so every list is empty.
type ResourcePacksInfo struct {
	MustAccept bool
}

func (p ResourcePacksInfo) Encode() []byte {
	w := NewWriter()
	w.Bool(p.MustAccept)
	w.Bool(false) // has scripts
	w.Bool(false) // force server packs
	w.Uint16(0)   // behavior pack count
	w.Uint16(0)   // resource pack count
	return w.Bytes()
}

// ResourcePackStack finalizes pack order; empty here since no packs exist.
type ResourcePackStack struct {
	MustAccept bool
}

func (p ResourcePackStack) Encode() []byte {
	w := NewWriter()
	w.Bool(p.MustAccept)
	w.Uint32(0) // behavior pack count
	w.Uint32(0) // resource pack count
	w.String("*")
	w.Bool(false) // experiments previously toggled
	return w.Bytes()
}

// ResourcePackClientResponse is the client's reply while negotiating packs.
type ResourcePackClientResponse struct {
	Status          ResourcePackResponseStatus
	ResourcePackIDs []string
}

func DecodeResourcePackClientResponse(body []byte) (ResourcePackClientResponse, error) {
	r := NewReader(body)
	status, err := r.Uint8()
	if err != nil {
		return ResourcePackClientResponse{}, err
	}
	count, err := r.Uint16()
	if err != nil {
		return ResourcePackClientResponse{}, err
	}
	ids := make([]string, 0, count)
	for i := uint16(0); i < count; i++ {
		s, err := r.String()
		if err != nil {
			return ResourcePackClientResponse{}, err
		}
		ids = append(ids, s)
	}
	return ResourcePackClientResponse{Status: ResourcePackResponseStatus(status), ResourcePackIDs: ids}, nil
}

// StartGamePacket is the large world-bootstrap packet. Only the fields the
// session layer and chunk streamer actually consume are modeled; the rest
// of the real packet's many world-settings fields are out of scope.
type StartGamePacket struct {
	RuntimeEntityID  uint64
	PlayerGamemode   int32
	PlayerPositionX  float32
	PlayerPositionY  float32
	PlayerPositionZ  float32
	WorldSeed        int64
	ChunkRadius      int32
	LevelID          string
	WorldName        string
}

func (p StartGamePacket) Encode() []byte {
	w := NewWriter()
	w.VarUint64(p.RuntimeEntityID)
	w.VarUint64(p.RuntimeEntityID)
	w.VarInt32(p.PlayerGamemode)
	w.Float32(p.PlayerPositionX)
	w.Float32(p.PlayerPositionY)
	w.Float32(p.PlayerPositionZ)
	w.VarInt64(p.WorldSeed)
	w.VarInt32(p.ChunkRadius)
	w.String(p.LevelID)
	w.String(p.WorldName)
	return w.Bytes()
}

// ItemRegistry enumerates the item palette. Empty in this deployment: no
// custom items are registered.
type ItemRegistry struct{}

func (ItemRegistry) Encode() []byte {
	w := NewWriter()
	w.VarUint32(0)
	return w.Bytes()
}

// LevelChunkPacket carries one chunk column's serialized payload. Real
// clients expect biome/block-palette sub-chunk data here; this deployment's
// world layer has nothing behind it, so Payload is whatever the caller's
// chunk source produced (a placeholder column for the minimal ECS layer).
type LevelChunkPacket struct {
	X, Z    int32
	Payload []byte
}

func (p LevelChunkPacket) Encode() []byte {
	w := NewWriter()
	w.VarInt32(p.X)
	w.VarInt32(p.Z)
	w.VarUint32(uint32(len(p.Payload)))
	w.RawBytes(p.Payload)
	return w.Bytes()
}

func DecodeLevelChunk(body []byte) (LevelChunkPacket, error) {
	r := NewReader(body)
	x, err := r.VarInt32()
	if err != nil {
		return LevelChunkPacket{}, err
	}
	z, err := r.VarInt32()
	if err != nil {
		return LevelChunkPacket{}, err
	}
	n, err := r.VarUint32()
	if err != nil {
		return LevelChunkPacket{}, err
	}
	payload, err := r.RawBytes(int(n))
	if err != nil {
		return LevelChunkPacket{}, err
	}
	return LevelChunkPacket{X: x, Z: z, Payload: payload}, nil
}

// RequestChunkRadius is the client's requested view distance.
type RequestChunkRadius struct {
	ChunkRadius int32
}

func DecodeRequestChunkRadius(body []byte) (RequestChunkRadius, error) {
	r := NewReader(body)
	v, err := r.VarInt32()
	if err != nil {
		return RequestChunkRadius{}, err
	}
	return RequestChunkRadius{ChunkRadius: v}, nil
}

// ChunkRadiusUpdate is the server's (possibly clamped) answer.
type ChunkRadiusUpdate struct {
	ChunkRadius int32
}

func (p ChunkRadiusUpdate) Encode() []byte {
	w := NewWriter()
	w.VarInt32(p.ChunkRadius)
	return w.Bytes()
}

// NetworkChunkPublisherUpdate tells the client which chunks are currently
// published around a center position.
type NetworkChunkPublisherUpdate struct {
	X, Y, Z int32
	Radius  uint32
}

func (p NetworkChunkPublisherUpdate) Encode() []byte {
	w := NewWriter()
	w.VarInt32(p.X)
	w.VarInt32(p.Y)
	w.VarInt32(p.Z)
	w.VarUint32(p.Radius)
	w.VarUint32(0) // saved chunk count
	return w.Bytes()
}

// SetLocalPlayerAsInitialized is the client's final readiness signal before
// entering Play.
type SetLocalPlayerAsInitialized struct {
	RuntimeEntityID uint64
}

func DecodeSetLocalPlayerAsInitialized(body []byte) (SetLocalPlayerAsInitialized, error) {
	r := NewReader(body)
	v, err := r.VarUint64()
	if err != nil {
		return SetLocalPlayerAsInitialized{}, err
	}
	return SetLocalPlayerAsInitialized{RuntimeEntityID: v}, nil
}

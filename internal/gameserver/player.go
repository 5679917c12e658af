package gameserver

import (
	"sync"

	"go.uber.org/zap"

	"beacon/internal/bedrock"
	"beacon/internal/chunks"
	"beacon/internal/ecs"
)

// GameTransport is the session-layer-agnostic send path a Player writes
// framed Bedrock traffic to. Both the RakNet session and a NetherNet
// multiplexed stream satisfy it.
type GameTransport interface {
	Send(frame []byte) error
	Close() error
}

// Player is one connected client: its RakNet or NetherNet transport, its
// position in the login handshake, and (once spawned) its chunk-streaming
// state. The entity registry owns its lifecycle; Player itself holds no
// goroutines.
type Player struct {
	mu sync.Mutex

	ID        ecs.EntityID
	ChunkID   chunks.PlayerID
	Transport GameTransport
	Log       *zap.Logger

	// Stage holds the FSM's current typed state (bedrock.Handshake,
	// bedrock.Login, bedrock.SecurePending, bedrock.ResourcePacks,
	// bedrock.StartGame, or bedrock.Play). It is read and replaced by
	// handlePacket as the handshake advances; nil before NewPlayer's
	// initial Handshake state is set.
	Stage interface{}

	Identity bedrock.ValidatedIdentity

	Streamer *chunks.Streamer
}

// NewPlayer wires a freshly-opened transport into the handshake's initial
// state.
func NewPlayer(id ecs.EntityID, transport GameTransport, log *zap.Logger) *Player {
	t := bedrock.NewTransport()
	return &Player{
		ID:        id,
		ChunkID:   chunks.PlayerID(id),
		Transport: transport,
		Log:       log,
		Stage:     bedrock.NewHandshake(t),
	}
}

// sendLocked writes frame through the transport under the player's lock,
// so handshake replies and chunk sends never interleave mid-frame.
func (p *Player) sendLocked(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if frame == nil {
		return nil
	}
	return p.Transport.Send(frame)
}

// chunkSender adapts a Player to chunks.Sender: TrySend never blocks the
// chunk-streaming tick, matching the reference's backpressure contract.
type chunkSender struct {
	player *Player
}

func (c chunkSender) TrySend(data []byte) bool {
	entries := []bedrock.PacketEntry{{PacketID: bedrock.IDLevelChunk, Body: data}}
	play, ok := c.player.Stage.(bedrock.Play)
	if !ok {
		return false
	}
	frame, err := play.Send(entries)
	if err != nil {
		return false
	}
	return c.player.sendLocked(frame) == nil
}

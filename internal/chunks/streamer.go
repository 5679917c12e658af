package chunks

// Source produces the encoded wire bytes for a chunk column, typically
// backed by a world/region store.
type Source interface {
	Encode(coord Coord) ([]byte, error)
}

// Sender is the per-session outbound channel the streamer pushes encoded
// chunks onto. TrySend must never block: it reports whether the send
// succeeded so the streamer can requeue on backpressure.
type Sender interface {
	TrySend(data []byte) bool
}

// DropLogger receives drop notifications: first drop, then every 100th,
// per spec's documented logging cadence.
type DropLogger interface {
	ChunkSendDropped(player PlayerID, total uint64)
}

// Streamer drives one player's chunk loading: each tick it pops the
// closest pending chunks, encodes and sends them, and marks them loaded
// on success or requeues them on backpressure.
type Streamer struct {
	Player  PlayerID
	Loader  *ChunkLoader
	Viewers *ChunkViewers
	Source  Source
	Sender  Sender
	Logger  DropLogger

	// PerTick caps how many chunks are popped per call to Tick.
	PerTick int

	drops uint64
}

// NewStreamer returns a Streamer wiring loader, viewers and source/sender
// together for one player.
func NewStreamer(player PlayerID, loader *ChunkLoader, viewers *ChunkViewers, source Source, sender Sender, perTick int) *Streamer {
	return &Streamer{
		Player:  player,
		Loader:  loader,
		Viewers: viewers,
		Source:  source,
		Sender:  sender,
		PerTick: perTick,
	}
}

// Tick pops up to PerTick pending chunks, encodes and attempts to send
// each. A full outbound queue requeues the chunk at the front of the load
// queue to retry next tick rather than dropping it; encode errors are
// simply skipped (the chunk stays out of the loaded set and will be
// retried once it's popped again on a future rebuild).
func (s *Streamer) Tick() {
	for i := 0; i < s.PerTick; i++ {
		coord, ok := s.Loader.Pop()
		if !ok {
			return
		}

		data, err := s.Source.Encode(coord)
		if err != nil {
			continue
		}

		if !s.Sender.TrySend(data) {
			s.Loader.Requeue(coord)
			s.drops++
			if s.Logger != nil && (s.drops == 1 || s.drops%100 == 0) {
				s.Logger.ChunkSendDropped(s.Player, s.drops)
			}
			return
		}

		s.Loader.MarkLoaded(coord)
		s.Viewers.Add(coord, s.Player)
	}
}

// Despawn tears down this player's presence from every chunk it had
// loaded, per the viewer-set lifecycle hook.
func (s *Streamer) Despawn() {
	s.Viewers.RemovePlayer(s.Player, s.Loader.LoadedCoords())
}

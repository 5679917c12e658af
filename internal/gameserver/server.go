// Package gameserver wires the RakNet transport, the Bedrock session
// handshake, the NetherNet alternate transport, chunk streaming and the
// entity registry into one running server.
package gameserver

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"beacon/internal/bedrock"
	"beacon/internal/chunks"
	"beacon/internal/config"
	"beacon/internal/ecs"
	"beacon/internal/events"
	"beacon/internal/metrics"
	"beacon/internal/nethernet"
	"beacon/internal/nethernet/lan"
	"beacon/internal/nethernet/xbox"
	"beacon/internal/raknet"
)

// Server owns every live connection, regardless of which transport
// carried it, and drives the shared simulation tick.
type Server struct {
	cfg          config.Config
	log          *zap.Logger
	metrics      *metrics.Metrics
	bus          *events.Bus
	identity     *ServerIdentity
	trustedRoots []*ecdsa.PublicKey

	raknetListener *raknet.Listener
	netherLAN      *lan.Listener
	netherXbox     *xbox.Signaling

	registry    *ecs.Registry
	viewers     *chunks.ChunkViewers
	chunkSource chunks.Source

	mu       sync.Mutex
	players  map[ecs.EntityID]*Player
	byRaknet map[*raknet.Session]*Player

	done chan struct{}
}

// New builds a Server ready to Start. It does not bind any sockets yet.
func New(cfg config.Config, log *zap.Logger, m *metrics.Metrics) (*Server, error) {
	identity, err := NewServerIdentity()
	if err != nil {
		return nil, err
	}
	roots, err := parseTrustedRoots(cfg.Bedrock.TrustedRootKeysBase64)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:          cfg,
		log:          log,
		metrics:      m,
		bus:          events.NewBus(),
		identity:     identity,
		trustedRoots: roots,
		registry:     ecs.NewRegistry(),
		viewers:      chunks.NewChunkViewers(),
		chunkSource:  NewFlatChunkSource(),
		players:      make(map[ecs.EntityID]*Player),
		byRaknet:     make(map[*raknet.Session]*Player),
		done:         make(chan struct{}),
	}, nil
}

// Bus returns the server's event bus, so callers can subscribe before
// Start begins dispatching.
func (s *Server) Bus() *events.Bus { return s.bus }

// Start binds the RakNet listener (and, if configured, NetherNet LAN
// discovery) and begins serving until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	serverGUID := uint64(time.Now().UnixNano())

	listener, err := raknet.NewListener(s.cfg.RakNet.ListenAddr, serverGUID, raknetTunables(s.cfg), nil)
	if err != nil {
		return err
	}
	s.raknetListener = listener
	listener.OnOpen = s.onRaknetOpen
	listener.OnPayload = s.onRaknetPayload
	listener.OnClose = s.onRaknetClose

	go func() {
		if err := listener.Serve(); err != nil {
			s.log.Warn("raknet listener stopped", zap.Error(err))
		}
	}()

	if s.cfg.NetherNet.LANEnabled {
		lanListener, err := lan.Bind("0.0.0.0:0", lan.DefaultConfig(serverGUID))
		if err != nil {
			s.log.Warn("failed to bind nethernet LAN discovery", zap.Error(err))
		} else {
			s.netherLAN = lanListener
			go s.acceptSignaling(ctx, lanListener, nil)
		}
	}

	if s.cfg.NetherNet.XboxEnabled {
		token, err := readTokenFile(s.cfg.NetherNet.XboxTokenCachePath)
		if err != nil {
			s.log.Warn("xbox live signaling disabled: failed to read cached token", zap.Error(err))
		} else {
			signaling, err := xbox.Connect(serverGUID, token)
			if err != nil {
				s.log.Warn("failed to connect xbox live signaling", zap.Error(err))
			} else {
				s.netherXbox = signaling
				creds := signaling.Credentials()
				var iceServers []nethernet.IceServer
				if creds != nil {
					iceServers = creds.IceServers
				}
				go s.acceptSignaling(ctx, signaling, iceServers)
			}
		}
	}

	go s.tickLoop(ctx)

	<-ctx.Done()
	return s.Close()
}

// parseTrustedRoots decodes each configured base64 DER SubjectPublicKeyInfo
// entry into an ECDSA public key AcceptLogin can verify a chain against.
func parseTrustedRoots(entries []string) ([]*ecdsa.PublicKey, error) {
	roots := make([]*ecdsa.PublicKey, 0, len(entries))
	for _, entry := range entries {
		der, err := base64.StdEncoding.DecodeString(entry)
		if err != nil {
			return nil, err
		}
		pub, err := x509.ParsePKIXPublicKey(der)
		if err != nil {
			return nil, err
		}
		ecdsaPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, errNotECDSAKey
		}
		roots = append(roots, ecdsaPub)
	}
	return roots, nil
}

// readTokenFile reads a cached Xbox Live XSTS token from disk. Acquiring
// and refreshing that token is a user-interactive OAuth flow out of this
// server's scope; it only ever consumes whatever a companion tool has
// already cached at path.
func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func raknetTunables(cfg config.Config) raknet.SessionTunables {
	t := raknet.DefaultTunables()
	t.SessionTimeout = cfg.RakNet.SessionTimeoutDuration()
	t.MaxIncomingAckQueue = cfg.RakNet.MaxIncomingACK
	return t
}

// tickLoop drives the RakNet listener and every connected player's chunk
// streamer at a fixed cadence, mirroring the reference transport's 10ms
// server tick.
func (s *Server) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case now := <-ticker.C:
			s.raknetListener.Tick(now)
			s.tickStreamers()
		}
	}
}

func (s *Server) tickStreamers() {
	s.mu.Lock()
	players := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	s.mu.Unlock()

	depth := 0
	for _, p := range players {
		if p.Streamer != nil {
			p.Streamer.Tick()
			depth += p.Streamer.Loader.Pending()
		}
	}
	s.metrics.ChunkQueueDepth.Set(float64(depth))
}

func (s *Server) onRaknetOpen(session *raknet.Session) {
	id := s.registry.Spawn()
	player := NewPlayer(id, newRaknetTransport(session), s.log)

	s.mu.Lock()
	s.players[id] = player
	s.byRaknet[session] = player
	s.mu.Unlock()

	s.metrics.RakNetSessionsActive.Inc()
	s.bus.Publish(events.Event{Type: events.SessionOpened, SessionID: string(NewSessionID())})
}

func (s *Server) onRaknetPayload(session *raknet.Session, payloads [][]byte) {
	s.mu.Lock()
	player := s.byRaknet[session]
	s.mu.Unlock()
	if player == nil {
		return
	}
	for _, payload := range payloads {
		s.metrics.RakNetPacketsReceived.Inc()
		if err := s.handleFrame(player, payload); err != nil {
			s.log.Debug("dropping connection after frame handling error", zap.Error(err))
			session.Close()
			return
		}
	}
}

func (s *Server) onRaknetClose(session *raknet.Session) {
	s.mu.Lock()
	player := s.byRaknet[session]
	delete(s.byRaknet, session)
	if player != nil {
		delete(s.players, player.ID)
	}
	s.mu.Unlock()

	if player == nil {
		return
	}
	if player.Streamer != nil {
		player.Streamer.Despawn()
	}
	s.registry.Despawn(player.ID)
	s.metrics.RakNetSessionsActive.Dec()
	s.bus.Publish(events.Event{Type: events.SessionClosed})
}

// onNewTransport is the NetherNet counterpart to onRaknetOpen/onPayload:
// it owns a receive loop for the lifetime of the connection since
// NetherNet, unlike the RakNet listener, doesn't push payloads through a
// shared dispatch callback.
func (s *Server) onNewTransport(transport GameTransport, receive func() ([]byte, error)) {
	id := s.registry.Spawn()
	player := NewPlayer(id, transport, s.log)

	s.mu.Lock()
	s.players[id] = player
	s.mu.Unlock()

	s.metrics.NetherNetPeersActive.Inc()
	s.bus.Publish(events.Event{Type: events.SessionOpened, SessionID: string(NewSessionID())})

	defer func() {
		s.mu.Lock()
		delete(s.players, id)
		s.mu.Unlock()
		if player.Streamer != nil {
			player.Streamer.Despawn()
		}
		s.registry.Despawn(id)
		s.metrics.NetherNetPeersActive.Dec()
		s.bus.Publish(events.Event{Type: events.SessionClosed})
		transport.Close()
	}()

	for {
		frame, err := receive()
		if err != nil {
			return
		}
		if err := s.handleFrame(player, frame); err != nil {
			s.log.Debug("dropping nethernet connection after frame handling error", zap.Error(err))
			return
		}
	}
}

// spawnIntoPlay is called once a player's SetLocalPlayerAsInitialized
// round trip completes: it builds the chunk streamer centered on spawn
// and marks the player as fully in Play.
func (s *Server) spawnIntoPlay(player *Player, transport *bedrock.Transport) {
	loader := chunks.NewChunkLoader(chunks.Coord{X: 0, Z: 0}, int32(s.cfg.Bedrock.MaxChunkRadius))
	player.Streamer = chunks.NewStreamer(player.ChunkID, loader, s.viewers, s.chunkSource, chunkSender{player: player}, s.cfg.Chunks.ChunksPerTick)
	player.Stage = bedrock.Play{Transport: transport}
	s.bus.Publish(events.Event{Type: events.PlayStateEntered, SessionID: string(NewSessionID())})
}

// Close shuts down every bound transport and running goroutine.
func (s *Server) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.raknetListener != nil {
		s.raknetListener.Close()
	}
	if s.netherLAN != nil {
		s.netherLAN.Close()
	}
	if s.netherXbox != nil {
		s.netherXbox.Close()
	}
	return nil
}

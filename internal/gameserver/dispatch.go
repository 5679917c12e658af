package gameserver

import (
	"fmt"

	"go.uber.org/zap"

	"beacon/internal/bedrock"
	"beacon/internal/events"
)

// handleFrame decodes one wire frame through the player's current
// transport state and advances its FSM stage. It is the single entry
// point both the RakNet payload callback and the NetherNet receive loop
// funnel through, so the handshake behaves identically regardless of
// which transport carried it.
func (s *Server) handleFrame(player *Player, frame []byte) error {
	transport := playerTransport(player.Stage)
	if transport == nil {
		return fmt.Errorf("gameserver: player %d has no active transport stage", player.ID)
	}

	entries, rawID, rawBody, err := transport.DecodeIncoming(frame)
	if err != nil {
		return err
	}

	if entries != nil {
		for _, e := range entries {
			if err := s.handlePacket(player, e.PacketID, e.Body); err != nil {
				return err
			}
		}
		return nil
	}
	return s.handlePacket(player, rawID, rawBody)
}

// playerTransport extracts the *bedrock.Transport embedded in whichever
// FSM state Stage currently holds.
func playerTransport(stage interface{}) *bedrock.Transport {
	switch st := stage.(type) {
	case bedrock.Handshake:
		return st.Transport
	case bedrock.Login:
		return st.Transport
	case bedrock.SecurePending:
		return st.Transport
	case bedrock.ResourcePacks:
		return st.Transport
	case bedrock.StartGame:
		return st.Transport
	case bedrock.Play:
		return st.Transport
	default:
		return nil
	}
}

// handlePacket dispatches one decoded packet against the player's current
// FSM stage. Packets arriving out of sequence for the current stage are
// dropped without a log line rather than tearing down the connection, matching
// the reference session layer's tolerance for duplicate/late packets
// under unreliable delivery.
func (s *Server) handlePacket(player *Player, packetID uint16, body []byte) error {
	switch stage := player.Stage.(type) {
	case bedrock.Handshake:
		if packetID != bedrock.IDRequestNetworkSettings {
			return nil
		}
		req, err := bedrock.DecodeRequestNetworkSettings(body)
		if err != nil {
			return err
		}
		next, frame, err := stage.AcceptNetworkSettings(req, s.cfg.Bedrock.CompressionThreshold, s.cfg.Bedrock.CompressionLevel)
		if err != nil {
			return err
		}
		player.Stage = next
		return player.sendLocked(frame)

	case bedrock.Login:
		if packetID != bedrock.IDLogin {
			return nil
		}
		pkt, err := bedrock.DecodeLogin(body)
		if err != nil {
			return err
		}
		next, identity, err := stage.AcceptLogin(pkt, bedrock.LoginConfig{OnlineMode: s.cfg.Bedrock.OnlineMode, CandidateRoots: s.trustedRoots})
		if err != nil {
			return err
		}
		player.Identity = identity
		s.bus.Publish(events.Event{Type: events.HandshakeCompleted, Data: identity})

		secret, token, err := s.identity.DeriveSecretAndToken(identity.IdentityPublicKey)
		if err != nil {
			return err
		}
		secured, frame, err := next.BeginEncryption(secret, token)
		if err != nil {
			return err
		}
		player.Stage = secured
		return player.sendLocked(frame)

	case bedrock.SecurePending:
		if packetID != bedrock.IDClientToServerHandshake {
			return nil
		}
		next, frame, err := stage.AwaitClientHandshake()
		if err != nil {
			return err
		}
		player.Stage = next
		return player.sendLocked(frame)

	case bedrock.ResourcePacks:
		if packetID != bedrock.IDResourcePackClientResponse {
			return nil
		}
		resp, err := bedrock.DecodeResourcePackClientResponse(body)
		if err != nil {
			return err
		}
		if resp.Status == bedrock.ResourcePackResponseCompleted {
			next, err := stage.AcceptCompleted(resp)
			if err != nil {
				return err
			}
			frame, err := next.SendWorld(s.startGameParams(player))
			if err != nil {
				return err
			}
			player.Stage = next
			return player.sendLocked(frame)
		}
		frame, err := stage.AcceptHaveAllPacks(resp)
		if err != nil {
			return err
		}
		return player.sendLocked(frame)

	case bedrock.StartGame:
		switch packetID {
		case bedrock.IDRequestChunkRadius:
			req, err := bedrock.DecodeRequestChunkRadius(body)
			if err != nil {
				return err
			}
			// AcceptChunkRadius's returned Play value is intentionally
			// discarded: the client isn't actually ready for Play until
			// AwaitInitialized below completes, even though the FSM
			// types this reply as the terminal state.
			_, frame, err := stage.AcceptChunkRadius(req, int32(s.cfg.Bedrock.MaxChunkRadius), [3]int32{0, 0, 0})
			if err != nil {
				return err
			}
			return player.sendLocked(frame)

		case bedrock.IDSetLocalPlayerAsInitialized:
			init, err := bedrock.DecodeSetLocalPlayerAsInitialized(body)
			if err != nil {
				return err
			}
			frame, err := stage.AwaitInitialized(init)
			if err != nil {
				return err
			}
			if err := player.sendLocked(frame); err != nil {
				return err
			}
			s.spawnIntoPlay(player, stage.Transport)
			return nil
		}
		return nil

	case bedrock.Play:
		// Ordinary game packets beyond chunk streaming (movement, block
		// actions) aren't part of this deployment's scope; Play simply
		// absorbs and ignores anything it doesn't recognize.
		return nil

	default:
		player.Log.Warn("packet received in unknown stage", zap.Uint16("packet_id", packetID))
		return nil
	}
}

func (s *Server) startGameParams(player *Player) bedrock.StartGameParams {
	return bedrock.StartGameParams{
		RuntimeEntityID: uint64(player.ID),
		Gamemode:        0,
		SpawnX:          0,
		SpawnY:          64,
		SpawnZ:          0,
		WorldSeed:       0,
		DefaultRadius:   int32(s.cfg.Bedrock.MaxChunkRadius),
		LevelID:         "beacon",
		WorldName:       "beacon",
	}
}

package gameserver

import (
	"context"
	"strconv"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"beacon/internal/nethernet"
	"beacon/internal/nethernet/stream"
)

// SignalingChannel is satisfied by both lan.Listener and xbox.Signaling:
// whichever transport discovered the remote peer, negotiation proceeds
// identically from here on.
type SignalingChannel interface {
	Signals() <-chan nethernet.Signal
	Signal(s nethernet.Signal) error
	NetworkID() string
	Close() error
}

// acceptSignaling consumes offer/candidate signals from ch until ctx is
// cancelled, answering each CONNECTREQUEST and handing the resulting
// connected peer to onConnected. One in-flight peer is tracked per
// ConnectionID so late-arriving ICE candidates reach the right
// RTCPeerConnection.
func (s *Server) acceptSignaling(ctx context.Context, ch SignalingChannel, iceServers []nethernet.IceServer) {
	pending := make(map[uint64]*stream.Peer)

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-ch.Signals():
			if !ok {
				return
			}
			s.handleSignal(ctx, ch, sig, iceServers, pending)
		}
	}
}

func (s *Server) handleSignal(ctx context.Context, ch SignalingChannel, sig nethernet.Signal, iceServers []nethernet.IceServer, pending map[uint64]*stream.Peer) {
	switch sig.Type {
	case nethernet.SignalTypeOffer:
		peer, err := stream.NewPeer(iceServers, false)
		if err != nil {
			s.log.Warn("failed to create nethernet peer", zap.Error(err))
			return
		}
		connID := sig.ConnectionID
		peer.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				return
			}
			info := nethernet.IceCandidateInfo{
				Foundation:    c.Foundation,
				Protocol:      c.Protocol.String(),
				Priority:      c.Priority,
				Address:       c.Address,
				Port:          c.Port,
				CandidateType: c.Typ.String(),
			}
			_ = ch.Signal(nethernet.Signal{
				Type:         nethernet.SignalTypeCandidate,
				ConnectionID: connID,
				Data:         nethernet.FormatIceCandidate(0, info),
				NetworkID:    sig.NetworkID,
			})
		})

		answer, err := peer.CreateAnswer(ctx, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.Data})
		if err != nil {
			s.log.Warn("failed to answer nethernet offer", zap.Error(err))
			return
		}
		if err := ch.Signal(nethernet.Signal{Type: nethernet.SignalTypeAnswer, ConnectionID: connID, Data: answer.SDP, NetworkID: sig.NetworkID}); err != nil {
			s.log.Warn("failed to send nethernet answer", zap.Error(err))
			return
		}

		pending[connID] = peer
		go s.awaitNetherNetPeer(peer, ch.NetworkID(), sig.NetworkID)

	case nethernet.SignalTypeCandidate:
		peer, ok := pending[sig.ConnectionID]
		if !ok {
			return
		}
		info, err := nethernet.ParseIceCandidate(sig.Data)
		if err != nil {
			return
		}
		_ = peer.AddICECandidate(webrtc.ICECandidateInit{Candidate: formatCandidateForPion(info)})

	case nethernet.SignalTypeError:
		delete(pending, sig.ConnectionID)
	}
}

func formatCandidateForPion(info nethernet.IceCandidateInfo) string {
	return "candidate:" + info.Foundation + " 1 " + info.Protocol + " " + strconv.FormatUint(uint64(info.Priority), 10) + " " + info.Address + " " + strconv.FormatUint(uint64(info.Port), 10) + " typ " + info.CandidateType
}

// awaitNetherNetPeer multiplexes the peer's reliable channel once it's
// connected and hands the resulting transport to the server's common
// connection path, the same one raknet sessions enter through.
func (s *Server) awaitNetherNetPeer(peer *stream.Peer, localNetworkID, remoteNetworkID string) {
	transport, err := NewNetherNetTransport(peer, localNetworkID, remoteNetworkID)
	if err != nil {
		s.log.Warn("nethernet stream multiplexing failed", zap.String("remote", remoteNetworkID), zap.Error(err))
		peer.Close()
		return
	}
	s.onNewTransport(transport, transport.Receive)
}

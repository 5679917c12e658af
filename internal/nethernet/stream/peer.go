package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"beacon/internal/nethernet"
)

var ErrPeerClosed = errors.New("stream: peer connection closed")

// channelLabels match the two data channels every NetherNet peer opens:
// one ordered/reliable, one unordered/unreliable (used for snapshot-style
// traffic where a dropped fragment isn't worth retransmitting).
const (
	reliableLabel   = "ReliableDataChannel"
	unreliableLabel = "UnreliableDataChannel"
)

// Peer wraps a single WebRTC peer connection negotiated through a
// signaling channel, exposing the two Bedrock data channels as plain byte
// message streams with fragmentation handled underneath.
type Peer struct {
	pc *webrtc.PeerConnection

	reliable   *webrtc.DataChannel
	unreliable *webrtc.DataChannel

	reliableIn   chan []byte
	unreliableIn chan []byte

	mu          sync.Mutex
	reliableRA  *Reassembler
	unreliableR *Reassembler

	closed chan struct{}
}

// NewPeer creates the underlying RTCPeerConnection and, for the offering
// side, its two data channels. iceServers typically comes from signaling
// credentials (TURN) plus any STUN servers the deployment configures.
func NewPeer(iceServers []nethernet.IceServer, offerer bool) (*Peer, error) {
	config := webrtc.Configuration{ICEServers: toWebrtcICEServers(iceServers)}
	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}

	p := &Peer{
		pc:           pc,
		reliableIn:   make(chan []byte, 256),
		unreliableIn: make(chan []byte, 256),
		reliableRA:   NewReassembler(),
		unreliableR:  NewReassembler(),
		closed:       make(chan struct{}),
	}

	if offerer {
		ordered := true
		reliable, err := pc.CreateDataChannel(reliableLabel, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			pc.Close()
			return nil, err
		}
		unordered := false
		unreliable, err := pc.CreateDataChannel(unreliableLabel, &webrtc.DataChannelInit{Ordered: &unordered})
		if err != nil {
			pc.Close()
			return nil, err
		}
		p.bindReliable(reliable)
		p.bindUnreliable(unreliable)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			switch dc.Label() {
			case reliableLabel:
				p.bindReliable(dc)
			case unreliableLabel:
				p.bindUnreliable(dc)
			}
		})
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			p.Close()
		}
	})

	return p, nil
}

func toWebrtcICEServers(servers []nethernet.IceServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Password})
	}
	return out
}

func (p *Peer) bindReliable(dc *webrtc.DataChannel) {
	p.reliable = dc
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.onFragment(p.reliableRA, msg.Data, p.reliableIn)
	})
}

func (p *Peer) bindUnreliable(dc *webrtc.DataChannel) {
	p.unreliable = dc
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.onFragment(p.unreliableR, msg.Data, p.unreliableIn)
	})
}

func (p *Peer) onFragment(r *Reassembler, data []byte, deliverTo chan []byte) {
	p.mu.Lock()
	msg, done, err := r.Feed(data, time.Now())
	p.mu.Unlock()
	if err != nil {
		// A violated reassembly drops the in-flight message only; the
		// connection stays up for the next one.
		return
	}
	if done {
		select {
		case deliverTo <- msg:
		case <-p.closed:
		}
	}
}

// Reliable returns completed messages delivered on the ordered channel.
func (p *Peer) Reliable() <-chan []byte { return p.reliableIn }

// Unreliable returns completed messages delivered on the unordered
// channel.
func (p *Peer) Unreliable() <-chan []byte { return p.unreliableIn }

// SendReliable fragments and sends data over the ordered channel.
func (p *Peer) SendReliable(data []byte) error {
	return p.send(p.reliable, data)
}

// SendUnreliable fragments and sends data over the unordered channel.
func (p *Peer) SendUnreliable(data []byte) error {
	return p.send(p.unreliable, data)
}

func (p *Peer) send(dc *webrtc.DataChannel, data []byte) error {
	if dc == nil {
		return errors.New("stream: data channel not yet open")
	}
	for _, frag := range Segment(data, MaxSegmentPayload) {
		if err := dc.Send(frag); err != nil {
			return err
		}
	}
	return nil
}

// CreateOffer produces a local SDP offer and sets it as the local
// description.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

// CreateAnswer applies a remote offer and produces a local SDP answer.
func (p *Peer) CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

// SetRemoteAnswer applies a remote SDP answer to a connection that began
// as the offerer.
func (p *Peer) SetRemoteAnswer(answer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(answer)
}

// AddICECandidate feeds a remote ICE candidate gathered out of band
// through signaling.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// OnICECandidate registers a callback invoked for each locally gathered
// ICE candidate, to be relayed to the remote peer through signaling.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

// Close tears down the peer connection.
func (p *Peer) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return p.pc.Close()
}

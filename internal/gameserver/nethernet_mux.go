package gameserver

import (
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/hashicorp/yamux"

	"beacon/internal/nethernet/stream"
)

// NetherNetTransport multiplexes a single WebRTC peer's reliable data
// channel into two logical streams via yamux: one carries framed Bedrock
// game traffic, the other is a control stream kept apart from the game
// packets so it is not blocked behind a large batch frame. The server
// sends nothing on the control stream and reads and discards whatever
// arrives on it.
type NetherNetTransport struct {
	session *yamux.Session
	game    net.Conn
	control net.Conn
}

// NewNetherNetTransport takes ownership of peer's reliable channel,
// multiplexes it, and accepts the two streams the counterpart is
// expected to open (game first, then control). It blocks until both are
// accepted or the underlying connection fails.
func NewNetherNetTransport(peer *stream.Peer, localID, remoteID string) (*NetherNetTransport, error) {
	conn := newPeerConn(peer, localID, remoteID)

	session, err := yamux.Server(conn, yamux.DefaultConfig())
	if err != nil {
		return nil, err
	}

	game, err := session.Accept()
	if err != nil {
		session.Close()
		return nil, err
	}
	control, err := session.Accept()
	if err != nil {
		game.Close()
		session.Close()
		return nil, err
	}

	t := &NetherNetTransport{session: session, game: game, control: control}
	go t.drainControl()
	return t, nil
}

// drainControl discards whatever arrives on the control stream; a real
// deployment would use it for ping/pong RTT sampling, but nothing in this
// server yet consumes that signal.
func (t *NetherNetTransport) drainControl() {
	buf := make([]byte, 256)
	for {
		if _, err := t.control.Read(buf); err != nil {
			return
		}
	}
}

var errShortFrame = errors.New("gameserver: short nethernet frame")

// Send implements GameTransport by writing a 4-byte big-endian length
// prefix followed by frame onto the game stream.
func (t *NetherNetTransport) Send(frame []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := t.game.Write(hdr[:]); err != nil {
		return err
	}
	_, err := t.game.Write(frame)
	return err
}

// Receive reads the next length-prefixed frame from the game stream,
// blocking until one arrives.
func (t *NetherNetTransport) Receive() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(t.game, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	frame := make([]byte, n)
	if _, err := io.ReadFull(t.game, frame); err != nil {
		return nil, errShortFrame
	}
	return frame, nil
}

// Close tears down the multiplexed session and the peer connection
// underneath it.
func (t *NetherNetTransport) Close() error {
	t.control.Close()
	t.game.Close()
	return t.session.Close()
}

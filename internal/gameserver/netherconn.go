package gameserver

import (
	"errors"
	"net"
	"time"

	"beacon/internal/nethernet/stream"
)

// netherAddr is a placeholder net.Addr for NetherNet peers, which are
// addressed by network ID rather than an IP/port pair.
type netherAddr string

func (a netherAddr) Network() string { return "nethernet" }
func (a netherAddr) String() string  { return string(a) }

// peerConn adapts a stream.Peer's ordered data channel to a net.Conn, so
// the reliable channel can be handed to yamux for stream multiplexing the
// same way a plain TCP connection would be. NetherNet's reassembled
// messages don't need to line up with yamux's own frame boundaries since
// yamux reads an exact byte count off the stream; peerConn just needs to
// present whatever bytes are available next, in order.
type peerConn struct {
	peer   *stream.Peer
	local  netherAddr
	remote netherAddr

	pending []byte
}

func newPeerConn(peer *stream.Peer, local, remote string) *peerConn {
	return &peerConn{peer: peer, local: netherAddr(local), remote: netherAddr(remote)}
}

func (c *peerConn) Read(b []byte) (int, error) {
	for len(c.pending) == 0 {
		msg, ok := <-c.peer.Reliable()
		if !ok {
			return 0, errors.New("gameserver: nethernet peer reliable channel closed")
		}
		c.pending = msg
	}
	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *peerConn) Write(b []byte) (int, error) {
	if err := c.peer.SendReliable(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *peerConn) Close() error                       { return c.peer.Close() }
func (c *peerConn) LocalAddr() net.Addr                { return c.local }
func (c *peerConn) RemoteAddr() net.Addr               { return c.remote }
func (c *peerConn) SetDeadline(t time.Time) error      { return nil }
func (c *peerConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *peerConn) SetWriteDeadline(t time.Time) error { return nil }

package gameserver

import "beacon/internal/raknet"

// raknetTransport adapts a raknet.Session to GameTransport: every Bedrock
// frame travels reliable-ordered on channel 0, the same channel the
// reference session layer reserves for game traffic.
type raknetTransport struct {
	session *raknet.Session
}

func newRaknetTransport(session *raknet.Session) *raknetTransport {
	return &raknetTransport{session: session}
}

func (t *raknetTransport) Send(frame []byte) error {
	return t.session.QueuePacket(frame, raknet.ReliableOrdered, 0, raknet.PriorityMedium)
}

func (t *raknetTransport) Close() error {
	t.session.Close()
	return nil
}

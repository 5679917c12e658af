package raknet

import (
	"log"
	"net"
	"sync"
	"time"
)

// DefaultMTU is a common client MTU. The listener does not use it:
// OPEN_CONNECTION_REPLY_1 offers the size of the client's padded request,
// capped at 1492.
const DefaultMTU = 1400

// Listener multiplexes a single UDP socket across many peer Sessions: it
// owns the socket exclusively (only it ever calls WriteTo), dispatches
// offline handshake messages and online datagrams by source address, and
// drives every live Session's tick loop. This is the type the upstream
// server code depends on but never defines; it is designed fresh here,
// grounded in the fan-in/fan-out-by-address pattern common to RakNet-alike
// listeners.
type Listener struct {
	conn     *net.UDPConn
	serverGUID uint64
	tunables SessionTunables
	logger   *log.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	// OnOpen is invoked once a Session finishes its handshake and is ready
	// for application traffic.
	OnOpen func(s *Session)
	// OnPayload is invoked with the user-visible payloads HandleDataPayload
	// extracted from one datagram.
	OnPayload func(s *Session, payloads [][]byte)
	// OnClose is invoked when a session is removed (timeout or explicit).
	OnClose func(s *Session)
	// Motd is returned verbatim in unconnected pong responses.
	Motd func() string

	closeOnce sync.Once
	done      chan struct{}
}

// NewListener binds addr and returns a Listener ready to Serve.
func NewListener(addr string, serverGUID uint64, tunables SessionTunables, logger *log.Logger) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Listener{
		conn:       conn,
		serverGUID: serverGUID,
		tunables:   tunables,
		logger:     logger,
		sessions:   make(map[string]*Session),
		done:       make(chan struct{}),
	}, nil
}

// Serve runs the read loop until Close is called. It should be run in its
// own goroutine; callers typically also run a ticker loop calling Tick.
func (l *Listener) Serve() error {
	buf := make([]byte, 1<<16)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.done:
				return nil
			default:
				return err
			}
		}
		packet := append([]byte(nil), buf[:n]...)
		l.handlePacket(packet, addr)
	}
}

func (l *Listener) handlePacket(packet []byte, addr *net.UDPAddr) {
	if len(packet) == 0 {
		return
	}
	key := addr.String()

	l.mu.RLock()
	session, ok := l.sessions[key]
	l.mu.RUnlock()

	if ok {
		l.handleOnlinePacket(session, packet)
		return
	}

	l.handleOfflinePacket(packet, addr)
}

func (l *Listener) handleOfflinePacket(packet []byte, addr *net.UDPAddr) {
	switch packet[0] {
	case IDUnconnectedPing:
		pingTime, _, err := DecodeUnconnectedPing(packet[1:])
		if err != nil {
			return
		}
		motd := ""
		if l.Motd != nil {
			motd = l.Motd()
		}
		l.send(EncodeUnconnectedPong(pingTime, l.serverGUID, motd), addr)

	case IDOpenConnectionRequest1:
		if _, err := DecodeOpenConnectionRequest1(packet[1:]); err != nil {
			return
		}
		mtu := len(packet)
		if mtu > 1492 {
			mtu = 1492
		}
		l.send(EncodeOpenConnectionReply1(l.serverGUID, uint16(mtu)), addr)

	case IDOpenConnectionRequest2:
		req, err := DecodeOpenConnectionRequest2(packet[1:])
		if err != nil {
			return
		}
		var octets [4]byte
		copy(octets[:], addr.IP.To4())
		l.send(EncodeOpenConnectionReply2(l.serverGUID, octets, uint16(addr.Port), req.MTU), addr)

		session := NewSession(addr, req.ClientGUID, int(req.MTU), l.tunables)
		session.State = StateConnected
		l.mu.Lock()
		l.sessions[addr.String()] = session
		l.mu.Unlock()
		if l.OnOpen != nil {
			l.OnOpen(session)
		}
	}
}

func (l *Listener) handleOnlinePacket(session *Session, packet []byte) {
	flags := packet[0]
	body := packet[1:]

	switch {
	case flags&FlagACK != 0:
		ranges, err := DecodeAckNack(NewBitStream(body))
		if err != nil {
			return
		}
		session.HandleAckPayload(ranges)

	case flags&FlagNAK != 0:
		ranges, err := DecodeAckNack(NewBitStream(body))
		if err != nil {
			return
		}
		session.HandleNackPayload(ranges)

	case flags&FlagValid != 0:
		seq, packets, err := DecodeDataDatagram(body)
		if err != nil {
			l.closeSession(session, "malformed datagram")
			return
		}
		session.ProcessDatagramSequence(seq)
		payloads, err := session.HandleDataPayload(packets, time.Now())
		if err != nil {
			l.closeSession(session, "payload error")
			return
		}
		if len(payloads) > 0 && l.OnPayload != nil {
			l.OnPayload(session, payloads)
		}
	}
}

// Tick drives every live session forward: flushing queued sends and
// evicting sessions that have been idle past their timeout. Call this at a
// fixed cadence (spec default 10ms).
func (l *Listener) Tick(now time.Time) {
	l.mu.RLock()
	sessions := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.RUnlock()

	for _, s := range sessions {
		if s.IdleFor(now) > s.tunables.SessionTimeout {
			l.closeSession(s, "idle timeout")
			continue
		}
		for _, raw := range s.OnTick(now) {
			l.send(raw, s.Addr.(*net.UDPAddr))
		}
	}
}

func (l *Listener) closeSession(s *Session, reason string) {
	s.Close()
	l.mu.Lock()
	delete(l.sessions, s.Addr.String())
	l.mu.Unlock()
	if l.logger != nil {
		l.logger.Printf("session %s closed: %s", s.Addr, reason)
	}
	if l.OnClose != nil {
		l.OnClose(s)
	}
}

func (l *Listener) send(payload []byte, addr *net.UDPAddr) {
	_, _ = l.conn.WriteToUDP(payload, addr)
}

// SessionCount returns the number of currently tracked sessions.
func (l *Listener) SessionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// Close stops the read loop and releases the socket.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return l.conn.Close()
}

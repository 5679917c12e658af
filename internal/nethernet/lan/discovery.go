package lan

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"beacon/internal/nethernet"
)

// Config configures a Listener.
type Config struct {
	// NetworkID identifies this listener on the wire. Callers should
	// randomize it; zero is valid but collides with any other zero peer.
	NetworkID uint64
	// BroadcastAddr is where discovery requests are sent; relayed signals
	// go to the address last seen for the destination network ID.
	// "255.255.255.255:7551" reaches every host on the local subnet.
	BroadcastAddr string
	// BroadcastInterval is how often a discovery request is (re)sent.
	BroadcastInterval time.Duration
	// AddressTimeout expires a discovered peer's address if nothing has
	// been heard from it for this long.
	AddressTimeout time.Duration
}

// DefaultConfig returns the upstream defaults: broadcast every 2s, expire
// silent peers after 15s.
func DefaultConfig(networkID uint64) Config {
	return Config{
		NetworkID:         networkID,
		BroadcastAddr:     "255.255.255.255:7551",
		BroadcastInterval: 2 * time.Second,
		AddressTimeout:    15 * time.Second,
	}
}

// Listener broadcasts and listens for NetherNet LAN discovery traffic on a
// UDP socket, and relays signal text between discovered peers.
type Listener struct {
	conn   *net.UDPConn
	config Config

	addresses *cache.Cache // network ID -> *net.UDPAddr
	responses *cache.Cache // network ID -> []byte (raw ServerData)

	mu       sync.RWMutex
	pongData []byte

	signals chan nethernet.Signal
	closeCh chan struct{}
}

// Bind opens a UDP socket at addr (e.g. ":7551") with broadcast enabled and
// starts its listen and broadcast loops.
func Bind(addr string, config Config) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		conn:      conn,
		config:    config,
		addresses: cache.New(config.AddressTimeout, config.AddressTimeout/2),
		responses: cache.New(config.AddressTimeout, config.AddressTimeout/2),
		signals:   make(chan nethernet.Signal, 128),
		closeCh:   make(chan struct{}),
	}

	go l.listenLoop()
	go l.broadcastLoop()
	return l, nil
}

// NetworkID returns this listener's own network ID as a string, matching
// the form signal envelopes carry it in.
func (l *Listener) NetworkID() string {
	return strconv.FormatUint(l.config.NetworkID, 10)
}

// Signals returns the channel of signals relayed from discovered peers.
func (l *Listener) Signals() <-chan nethernet.Signal {
	return l.signals
}

// SetServerData sets the payload returned to discovery requests.
func (l *Listener) SetServerData(data ServerData) {
	l.mu.Lock()
	l.pongData = data.Encode()
	l.mu.Unlock()
}

// SetPongData parses the upstream MOTD-style semicolon delimited string
// (as found in a server's advertised pong) into server data. Index layout
// follows the Bedrock MOTD convention: [1]=name [4]=players [5]=max
// [7]=level name.
func (l *Listener) SetPongData(raw []byte) {
	parts := splitSemicolon(string(raw))
	if len(parts) < 9 {
		return
	}
	data := ServerData{
		ServerName:     parts[1],
		LevelName:      parts[7],
		PlayerCount:    parseUint32Default(parts[4], 1),
		MaxPlayerCount: parseUint32Default(parts[5], 10),
		TransportLayer: TransportLayerNetherNet,
		ConnectionType: 4,
	}
	l.mu.Lock()
	l.pongData = data.Encode()
	l.mu.Unlock()
}

func splitSemicolon(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseUint32Default(s string, def uint32) uint32 {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}

// Responses returns the raw ServerData payloads advertised by discovered
// hosts, keyed by their network ID.
func (l *Listener) Responses() map[uint64][]byte {
	out := make(map[uint64][]byte)
	for id, v := range l.responses.Items() {
		networkID, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		out[networkID] = v.Object.([]byte)
	}
	return out
}

// Signal sends s to the peer identified by s.NetworkID, which must already
// have been discovered (its address known from a prior broadcast).
func (l *Listener) Signal(s nethernet.Signal) error {
	networkID, err := strconv.ParseUint(s.NetworkID, 10, 64)
	if err != nil {
		return err
	}
	return l.sendToNetwork(networkID, encodeMessage(l.config.NetworkID, networkID, s.String()))
}

// Close stops the listener's background loops and closes its socket.
func (l *Listener) Close() error {
	close(l.closeCh)
	return l.conn.Close()
}

func (l *Listener) sendToNetwork(networkID uint64, packet []byte) error {
	v, ok := l.addresses.Get(strconv.FormatUint(networkID, 10))
	if !ok {
		return &net.AddrError{Err: "no known address for network", Addr: strconv.FormatUint(networkID, 10)}
	}
	addr := v.(*net.UDPAddr)
	_, err := l.conn.WriteToUDP(packet, addr)
	return err
}

func (l *Listener) listenLoop() {
	buf := make([]byte, 1024)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
			}
			continue
		}
		l.handlePacket(buf[:n], addr)
	}
}

func (l *Listener) handlePacket(data []byte, addr *net.UDPAddr) {
	pkt, senderID, err := decode(data)
	if err != nil {
		return
	}
	if senderID == l.config.NetworkID {
		return
	}

	l.addresses.Set(strconv.FormatUint(senderID, 10), addr, cache.DefaultExpiration)

	switch pkt.Type {
	case packetTypeRequest:
		l.mu.RLock()
		pong := l.pongData
		l.mu.RUnlock()
		if pong != nil {
			response := encodeResponse(l.config.NetworkID, pong)
			l.conn.WriteToUDP(response, addr)
		}
	case packetTypeResponse:
		l.responses.Set(strconv.FormatUint(senderID, 10), pkt.Response, cache.DefaultExpiration)
	case packetTypeMessage:
		if pkt.Message.Data == "Ping" {
			return
		}
		sig, err := nethernet.ParseSignal(pkt.Message.Data, strconv.FormatUint(senderID, 10))
		if err != nil {
			return
		}
		select {
		case l.signals <- sig:
		default:
		}
	}
}

func (l *Listener) broadcastLoop() {
	ticker := time.NewTicker(l.config.BroadcastInterval)
	defer ticker.Stop()
	broadcastAddr, err := net.ResolveUDPAddr("udp4", l.config.BroadcastAddr)
	if err != nil {
		return
	}
	for {
		select {
		case <-l.closeCh:
			return
		case <-ticker.C:
			request := encodeRequest(l.config.NetworkID)
			l.conn.WriteToUDP(request, broadcastAddr)
		}
	}
}

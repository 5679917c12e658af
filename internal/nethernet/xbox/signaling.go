// Package xbox implements NetherNet signaling over Xbox Live's signaling
// WebSocket, the channel used when a peer is reached through "Join Game"
// rather than LAN discovery.
package xbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"beacon/internal/nethernet"
)

// WebSocketURL is the Xbox Live signaling endpoint; the caller's network ID
// is appended as the final path segment.
const WebSocketURL = "wss://signal.franchise.minecraft-services.net/ws/v1.0/signaling/"

const heartbeatInterval = 40 * time.Second

type wsMessageType uint8

const (
	wsMessageHeartbeat wsMessageType = 0
	wsMessageSignal    wsMessageType = 1
	wsMessageInit      wsMessageType = 2
)

type wsOutgoing struct {
	Type    uint8   `json:"Type"`
	To      *string `json:"To,omitempty"`
	Message *string `json:"Message,omitempty"`
}

type wsIncoming struct {
	Type    uint8   `json:"Type"`
	From    *string `json:"From,omitempty"`
	Message *string `json:"Message,omitempty"`
}

type turnAuthMessage struct {
	TurnAuthServers []turnAuthServer `json:"TurnAuthServers"`
}

type turnAuthServer struct {
	Username string   `json:"Username"`
	Password string   `json:"Password"`
	URLs     []string `json:"Urls"`
}

var ErrClosed = errors.New("xbox: signaling connection closed")

// Signaling is a connected Xbox Live signaling session. It relays signal
// text to and from other NetherNet peers reachable through Xbox Live, and
// caches TURN credentials pushed by the server on connect.
type Signaling struct {
	networkID uint64
	conn      *websocket.Conn

	out chan wsOutgoing

	mu          sync.RWMutex
	credentials *nethernet.Credentials
	closed      chan struct{}

	signals chan nethernet.Signal
}

// Connect dials the Xbox Live signaling WebSocket for networkID,
// authenticating with an Xbox/Minecraft services token obtained out of
// band (from a PlayFab session start). It starts the heartbeat, reader and
// writer loops and returns once the socket is established; TURN
// credentials, if pushed promptly by the server, are available shortly
// after from Credentials.
func Connect(networkID uint64, mcToken string) (*Signaling, error) {
	endpoint := WebSocketURL + strconv.FormatUint(networkID, 10)

	header := http.Header{}
	header.Set("Authorization", mcToken)
	header.Set("Session-Id", uuid.NewString())
	header.Set("Request-Id", uuid.NewString())

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, err
	}

	s := &Signaling{
		networkID: networkID,
		conn:      conn,
		out:       make(chan wsOutgoing, 64),
		closed:    make(chan struct{}),
		signals:   make(chan nethernet.Signal, 256),
	}

	go s.heartbeatLoop()
	go s.writeLoop()
	go s.readLoop()

	return s, nil
}

// NetworkID returns this session's own network ID as a string.
func (s *Signaling) NetworkID() string {
	return strconv.FormatUint(s.networkID, 10)
}

// Signals returns the channel of signals relayed from other peers.
func (s *Signaling) Signals() <-chan nethernet.Signal {
	return s.signals
}

// Credentials returns the most recently received TURN credentials, or nil
// if none have arrived yet.
func (s *Signaling) Credentials() *nethernet.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credentials
}

// Signal sends sig to the peer named by sig.NetworkID over the signaling
// socket.
func (s *Signaling) Signal(sig nethernet.Signal) error {
	to := sig.NetworkID
	msg := sig.String()
	select {
	case s.out <- wsOutgoing{Type: uint8(wsMessageSignal), To: &to, Message: &msg}:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

// Close terminates the signaling session.
func (s *Signaling) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return s.conn.Close()
}

func (s *Signaling) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			select {
			case s.out <- wsOutgoing{Type: uint8(wsMessageHeartbeat)}:
			case <-s.closed:
				return
			}
		}
	}
}

func (s *Signaling) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case msg := <-s.out:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Signaling) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.Close()
			return
		}
		var incoming wsIncoming
		if err := json.Unmarshal(data, &incoming); err != nil {
			continue
		}
		s.handleIncoming(incoming)
	}
}

func (s *Signaling) handleIncoming(incoming wsIncoming) {
	switch wsMessageType(incoming.Type) {
	case wsMessageHeartbeat:
	case wsMessageSignal:
		if incoming.From == nil || incoming.Message == nil {
			return
		}
		sig, err := nethernet.ParseSignal(*incoming.Message, *incoming.From)
		if err != nil {
			return
		}
		select {
		case s.signals <- sig:
		default:
		}
	case wsMessageInit:
		if incoming.Message == nil {
			return
		}
		var turn turnAuthMessage
		if err := json.Unmarshal([]byte(*incoming.Message), &turn); err != nil {
			return
		}
		servers := make([]nethernet.IceServer, 0, len(turn.TurnAuthServers))
		for _, srv := range turn.TurnAuthServers {
			servers = append(servers, nethernet.IceServer{
				Username: srv.Username,
				Password: srv.Password,
				URLs:     srv.URLs,
			})
		}
		s.mu.Lock()
		s.credentials = &nethernet.Credentials{ExpirationSeconds: 3600, IceServers: servers}
		s.mu.Unlock()
	}
}

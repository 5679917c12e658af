package gameserver

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"testing"

	jose "github.com/go-jose/go-jose/v3"

	"beacon/internal/bedrock"
	"beacon/internal/config"
	"beacon/internal/metrics"
	"beacon/pkg/logger"
)

// The following encode helpers exist only for these tests: the real
// packets are client-to-server and this codebase never needs to produce
// their wire form outside of a test harness standing in for a client.
func encodeResourcePackClientResponse(status bedrock.ResourcePackResponseStatus) []byte {
	w := bedrock.NewWriter()
	w.Uint8(uint8(status))
	w.Uint16(0)
	return w.Bytes()
}

func encodeRequestChunkRadius(radius int32) []byte {
	w := bedrock.NewWriter()
	w.VarInt32(radius)
	return w.Bytes()
}

func encodeSetLocalPlayerAsInitialized(runtimeEntityID uint64) []byte {
	w := bedrock.NewWriter()
	w.VarUint64(runtimeEntityID)
	return w.Bytes()
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	s, err := New(cfg, logger.Nop(), metrics.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func publicKeyBase64(t *testing.T, pub *ecdsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(der)
}

func signedChainLink(t *testing.T, key *ecdsa.PrivateKey, claims map[string]interface{}) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES384, Key: key}, nil)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	compact, err := sig.CompactSerialize()
	if err != nil {
		t.Fatalf("compact serialize: %v", err)
	}
	return compact
}

// TestFullLoginSequenceReachesPlay drives handlePacket through every FSM
// stage with a real signed login chain, the way a live client socket
// would, and checks the player ends up streaming chunks.
func TestFullLoginSequenceReachesPlay(t *testing.T) {
	root, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generate root: %v", err)
	}
	clientKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	leaf := signedChainLink(t, root, map[string]interface{}{
		"identityPublicKey": publicKeyBase64(t, &clientKey.PublicKey),
		"extraData": map[string]interface{}{
			"XUID": "1", "displayName": "Steve", "identity": "uuid-steve",
		},
	})

	cfg := config.Default()
	cfg.Bedrock.OnlineMode = true
	cfg.Bedrock.TrustedRootKeysBase64 = []string{publicKeyBase64(t, &root.PublicKey)}
	s := newTestServer(t, cfg)

	identityJSON, err := json.Marshal(map[string]interface{}{"chain": []string{leaf}})
	if err != nil {
		t.Fatalf("marshal identity JSON: %v", err)
	}

	ft := &fakeTransport{}
	player := NewPlayer(1, ft, logger.Nop())

	// Handshake -> Login
	req := bedrock.RequestNetworkSettings{ClientProtocol: bedrock.ProtocolVersion}
	if err := s.handlePacket(player, bedrock.IDRequestNetworkSettings, req.Encode()); err != nil {
		t.Fatalf("RequestNetworkSettings: %v", err)
	}
	if _, ok := player.Stage.(bedrock.Login); !ok {
		t.Fatalf("expected Login stage, got %T", player.Stage)
	}
	if len(ft.sent) != 1 {
		t.Fatalf("expected one NetworkSettings frame sent, got %d", len(ft.sent))
	}

	// Login -> SecurePending, once the chain verifies against the
	// configured trusted root.
	login := bedrock.LoginPacket{IdentityJSON: string(identityJSON)}
	if err := s.handlePacket(player, bedrock.IDLogin, login.Encode()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, ok := player.Stage.(bedrock.SecurePending); !ok {
		t.Fatalf("expected SecurePending stage, got %T", player.Stage)
	}
	if len(ft.sent) != 2 {
		t.Fatalf("expected a second (handshake) frame sent, got %d", len(ft.sent))
	}

	// SecurePending -> ResourcePacks
	if err := s.handlePacket(player, bedrock.IDClientToServerHandshake, nil); err != nil {
		t.Fatalf("ClientToServerHandshake: %v", err)
	}
	if _, ok := player.Stage.(bedrock.ResourcePacks); !ok {
		t.Fatalf("expected ResourcePacks stage, got %T", player.Stage)
	}

	// ResourcePacks -> StartGame
	if err := s.handlePacket(player, bedrock.IDResourcePackClientResponse, encodeResourcePackClientResponse(bedrock.ResourcePackResponseHaveAllPacks)); err != nil {
		t.Fatalf("HaveAllPacks: %v", err)
	}
	if _, ok := player.Stage.(bedrock.ResourcePacks); !ok {
		t.Fatalf("expected to remain in ResourcePacks awaiting Completed, got %T", player.Stage)
	}

	if err := s.handlePacket(player, bedrock.IDResourcePackClientResponse, encodeResourcePackClientResponse(bedrock.ResourcePackResponseCompleted)); err != nil {
		t.Fatalf("Completed: %v", err)
	}
	if _, ok := player.Stage.(bedrock.StartGame); !ok {
		t.Fatalf("expected StartGame stage, got %T", player.Stage)
	}

	// StartGame: chunk radius request keeps StartGame (AcceptChunkRadius's
	// Play return value is intentionally discarded at this point).
	if err := s.handlePacket(player, bedrock.IDRequestChunkRadius, encodeRequestChunkRadius(8)); err != nil {
		t.Fatalf("RequestChunkRadius: %v", err)
	}
	if _, ok := player.Stage.(bedrock.StartGame); !ok {
		t.Fatalf("expected to remain in StartGame after chunk radius, got %T", player.Stage)
	}

	// StartGame -> Play
	if err := s.handlePacket(player, bedrock.IDSetLocalPlayerAsInitialized, encodeSetLocalPlayerAsInitialized(uint64(player.ID))); err != nil {
		t.Fatalf("SetLocalPlayerAsInitialized: %v", err)
	}
	if _, ok := player.Stage.(bedrock.Play); !ok {
		t.Fatalf("expected Play stage, got %T", player.Stage)
	}
	if player.Streamer == nil {
		t.Fatal("expected a chunk streamer to be attached once spawned into Play")
	}

	// Play: unrecognized traffic is simply absorbed.
	if err := s.handlePacket(player, 999, []byte("ping")); err != nil {
		t.Fatalf("expected Play to tolerate unknown packets, got %v", err)
	}
}

// TestLoginFailsAgainstUntrustedRoot documents that, in online mode, a
// chain signed by a key outside the configured trusted root list (here,
// no roots are configured at all) is rejected rather than silently
// admitted.
func TestLoginFailsAgainstUntrustedRoot(t *testing.T) {
	root, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	clientKey, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	leaf := signedChainLink(t, root, map[string]interface{}{
		"identityPublicKey": publicKeyBase64(t, &clientKey.PublicKey),
		"extraData": map[string]interface{}{
			"XUID": "1", "displayName": "Mallory", "identity": "uuid-mallory",
		},
	})
	identityJSON, err := json.Marshal(map[string]interface{}{"chain": []string{leaf}})
	if err != nil {
		t.Fatalf("marshal identity JSON: %v", err)
	}

	cfg := config.Default()
	cfg.Bedrock.OnlineMode = true // no TrustedRootKeysBase64 configured
	s := newTestServer(t, cfg)
	ft := &fakeTransport{}
	player := NewPlayer(1, ft, logger.Nop())
	player.Stage = bedrock.Login{Transport: bedrock.NewTransport()}

	login := bedrock.LoginPacket{IdentityJSON: string(identityJSON)}
	if err := s.handlePacket(player, bedrock.IDLogin, login.Encode()); err == nil {
		t.Fatal("expected an error for a chain signed by an untrusted root")
	}
}

func TestHandlePacketIgnoresPacketsOutOfSequence(t *testing.T) {
	cfg := config.Default()
	s := newTestServer(t, cfg)
	ft := &fakeTransport{}
	player := NewPlayer(1, ft, logger.Nop())

	// Still in Handshake: a packet meant for a later stage is dropped,
	// not treated as a protocol error.
	if err := s.handlePacket(player, bedrock.IDResourcePackClientResponse, encodeResourcePackClientResponse(bedrock.ResourcePackResponseCompleted)); err != nil {
		t.Fatalf("expected out-of-sequence packet to be ignored, got %v", err)
	}
	if _, ok := player.Stage.(bedrock.Handshake); !ok {
		t.Fatalf("expected stage to remain Handshake, got %T", player.Stage)
	}
	if len(ft.sent) != 0 {
		t.Fatalf("expected no frames sent, got %d", len(ft.sent))
	}
}

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
)

func TestDeriveSecretAndTokenProducesVerifiableToken(t *testing.T) {
	server, err := NewServerIdentity()
	if err != nil {
		t.Fatalf("NewServerIdentity: %v", err)
	}

	clientKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&clientKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}
	clientPub := base64.StdEncoding.EncodeToString(der)

	secret, token, err := server.DeriveSecretAndToken(clientPub)
	if err != nil {
		t.Fatalf("DeriveSecretAndToken: %v", err)
	}
	if len(secret) != 32 {
		t.Fatalf("expected 32-byte secret, got %d", len(secret))
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	jws, err := jose.ParseSigned(token)
	if err != nil {
		t.Fatalf("token does not parse as a JWS: %v", err)
	}
	payload, err := jws.Verify(&server.private.PublicKey)
	if err != nil {
		t.Fatalf("token does not verify against the server's own public key: %v", err)
	}
	var claims handshakeClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}
	if claims.Salt == "" {
		t.Fatal("expected non-empty salt claim")
	}
}

func TestDeriveSecretAndTokenRejectsMalformedKey(t *testing.T) {
	server, err := NewServerIdentity()
	if err != nil {
		t.Fatalf("NewServerIdentity: %v", err)
	}
	if _, _, err := server.DeriveSecretAndToken(base64.StdEncoding.EncodeToString([]byte("not a key"))); err == nil {
		t.Fatal("expected an error for a malformed client public key")
	}
}

func TestDeriveSecretAndTokenVariesSaltPerCall(t *testing.T) {
	server, err := NewServerIdentity()
	if err != nil {
		t.Fatalf("NewServerIdentity: %v", err)
	}
	clientKey, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	der, _ := x509.MarshalPKIXPublicKey(&clientKey.PublicKey)
	clientPub := base64.StdEncoding.EncodeToString(der)

	secretA, _, err := server.DeriveSecretAndToken(clientPub)
	if err != nil {
		t.Fatalf("first derive: %v", err)
	}
	secretB, _, err := server.DeriveSecretAndToken(clientPub)
	if err != nil {
		t.Fatalf("second derive: %v", err)
	}
	if string(secretA) == string(secretB) {
		t.Fatal("expected different secrets across calls since the salt is randomized each time")
	}
}

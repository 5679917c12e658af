package bedrock

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	jose "github.com/go-jose/go-jose/v3"
)

// x5uHeaderKey is the JWS header field Bedrock chain links use to carry a
// self-signed anchor key, per jose.Header.ExtraHeaders.
const x5uHeaderKey = jose.HeaderKey("x5u")

// Mojang's two known root signing keys for the Bedrock login chain. The
// second key covers clients on 1.21.120+, which rotated to a new root
// without deprecating the first.
const (
	MojangRootKeyBase64   = "MHYwEAYHKoZIzj0CAQYFK4EEACIDYgAECRXueJeTDqNRRgJi/vlRufByu/2G0i2Ebt6YMar5QX/R0DIIyrJMcUpruK4QveTfJSTp3Shlq4Gk34cD/4GUWwkv0DVuzeuB+tXija7HBxii03NHDbPAD0AKnLr2wdAp"
	MojangRootKeyV2Base64 = "MHYwEAYHKoZIzj0CAQYFK4EEACIDYgAEAt2GuR+vHAmIt7r0K6hm6mpq+b3setnqVfVxNqxQjLfWuPWfInnDLOEDo7kARxinshTmtU6Mgyd8xoLKwxLsN50Z1bRnq9jldjYyCyNrruVAaKlDKGBWspf50o5sqZxh"
)

// MojangRootKeys returns both recognized Mojang root keys so validators
// accept chains signed by either, resolving which root key a given chain
// was produced under in favor of trying each.
func MojangRootKeys() []*ecdsa.PublicKey {
	keys := make([]*ecdsa.PublicKey, 0, 2)
	for _, b64 := range []string{MojangRootKeyBase64, MojangRootKeyV2Base64} {
		if k, err := publicKeyFromBase64(b64); err == nil {
			keys = append(keys, k)
		}
	}
	return keys
}

var (
	ErrEmptyChain         = errors.New("bedrock: empty login chain")
	ErrChainTooLong       = errors.New("bedrock: login chain has too many links")
	ErrMissingIdentityKey = errors.New("bedrock: chain link missing identityPublicKey")
	ErrMissingExtraData   = errors.New("bedrock: final chain link missing extraData")
	ErrBadChainSignature  = errors.New("bedrock: no candidate key validated the login chain")
	ErrChainExpired       = errors.New("bedrock: chain link token has expired")
	ErrChainNotYetValid   = errors.New("bedrock: chain link token is not yet valid")
)

const maxChainTokens = 8

// ValidatedIdentity is the player identity recovered from a verified login
// chain's final (leaf) token.
type ValidatedIdentity struct {
	XUID              string
	DisplayName       string
	UUID              string
	IdentityPublicKey string
}

type chainExtraData struct {
	XUID        string `json:"XUID"`
	DisplayName string `json:"displayName"`
	Identity    string `json:"identity"`
}

type chainClaims struct {
	IdentityPublicKey string          `json:"identityPublicKey"`
	ExtraData         *chainExtraData `json:"extraData"`
	NotBefore         *int64          `json:"nbf"`
	Expiry            *int64          `json:"exp"`
}

// checkTemporalClaims enforces nbf/exp the way the rest of the chain's
// signature is enforced: a chain link presented outside its validity
// window is rejected even though its signature verifies.
func (c chainClaims) checkTemporalClaims(now time.Time) error {
	nowUnix := now.Unix()
	if c.NotBefore != nil && nowUnix < *c.NotBefore {
		return ErrChainNotYetValid
	}
	if c.Expiry != nil && nowUnix >= *c.Expiry {
		return ErrChainExpired
	}
	return nil
}

// LoginChain is the ordered list of JWTs carried in the Login packet's
// identity payload, root first.
type LoginChain []string

// ParseLoginChain extracts the chain array from the Login packet's identity
// JSON payload, accepting either a bare {"chain":[...]} object or one
// nested under a "Certificate"/"certificate" key.
func ParseLoginChain(identityPayload []byte) (LoginChain, error) {
	var wrapper struct {
		Chain       []string        `json:"chain"`
		Certificate json.RawMessage `json:"Certificate"`
		Certificate2 json.RawMessage `json:"certificate"`
	}
	if err := json.Unmarshal(identityPayload, &wrapper); err != nil {
		return nil, err
	}
	if len(wrapper.Chain) > 0 {
		return wrapper.Chain, nil
	}
	for _, raw := range [][]byte{wrapper.Certificate, wrapper.Certificate2} {
		if len(raw) == 0 {
			continue
		}
		var nested struct {
			Chain []string `json:"chain"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && len(nested.Chain) > 0 {
			return nested.Chain, nil
		}
	}
	return nil, ErrEmptyChain
}

// ValidateChain walks chain root-to-leaf, requiring each link to be signed
// by the identityPublicKey embedded in the previous link (or, for the
// first link, by one of candidateRoots). It returns the identity carried
// by the final link's extraData.
//
// The chain is walked only in the order given; a chain presented
// leaf-first fails validation, and no caller in this module retries it
// reversed.
func ValidateChain(chain LoginChain, candidateRoots []*ecdsa.PublicKey) (ValidatedIdentity, error) {
	if len(chain) == 0 {
		return ValidatedIdentity{}, ErrEmptyChain
	}
	if len(chain) > maxChainTokens {
		return ValidatedIdentity{}, ErrChainTooLong
	}

	var lastErr error
	for _, root := range candidateRoots {
		if id, err := verifyChainWithKey(chain, root); err == nil {
			return id, nil
		} else {
			lastErr = err
		}
	}

	// No configured root validated the chain; fall back to any in-chain
	// x5u anchor, covering self-signed chains (offline/LAN clients and
	// third-party identity providers that sign their own leaf).
	for _, x5uKey := range x5uKeysFromChain(chain) {
		if id, err := verifyChainWithKey(chain, x5uKey); err == nil {
			return id, nil
		} else {
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = ErrBadChainSignature
	}
	return ValidatedIdentity{}, lastErr
}

func verifyChainWithKey(chain LoginChain, currentKey *ecdsa.PublicKey) (ValidatedIdentity, error) {
	var identity *ValidatedIdentity

	for idx, tokenStr := range chain {
		claims, err := verifyAndDecodeES384(tokenStr, currentKey)
		if err != nil {
			return ValidatedIdentity{}, err
		}

		isLast := idx+1 == len(chain)
		if claims.ExtraData != nil {
			identity = &ValidatedIdentity{
				XUID:              claims.ExtraData.XUID,
				DisplayName:       claims.ExtraData.DisplayName,
				UUID:              claims.ExtraData.Identity,
				IdentityPublicKey: claims.IdentityPublicKey,
			}
		} else if isLast {
			return ValidatedIdentity{}, ErrMissingExtraData
		}

		if claims.IdentityPublicKey == "" {
			return ValidatedIdentity{}, ErrMissingIdentityKey
		}
		currentKey, err = publicKeyFromBase64(claims.IdentityPublicKey)
		if err != nil {
			return ValidatedIdentity{}, err
		}
	}

	if identity == nil {
		return ValidatedIdentity{}, ErrMissingExtraData
	}
	return *identity, nil
}

func verifyAndDecodeES384(token string, key *ecdsa.PublicKey) (chainClaims, error) {
	obj, err := jose.ParseSigned(token)
	if err != nil {
		return chainClaims{}, err
	}
	if len(obj.Signatures) != 1 || obj.Signatures[0].Header.Algorithm != string(jose.ES384) {
		return chainClaims{}, errors.New("bedrock: chain link is not ES384-signed")
	}
	payload, err := obj.Verify(key)
	if err != nil {
		return chainClaims{}, err
	}
	var claims chainClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return chainClaims{}, err
	}
	if err := claims.checkTemporalClaims(time.Now()); err != nil {
		return chainClaims{}, err
	}
	return claims, nil
}

// x5uKeyFromToken extracts and decodes the x5u header key a chain link
// carries for self-signed anchoring, if present.
func x5uKeyFromToken(token string) (*ecdsa.PublicKey, bool) {
	obj, err := jose.ParseSigned(token)
	if err != nil || len(obj.Signatures) != 1 {
		return nil, false
	}
	raw, ok := obj.Signatures[0].Header.ExtraHeaders[x5uHeaderKey]
	if !ok {
		return nil, false
	}
	b64, ok := raw.(string)
	if !ok || b64 == "" {
		return nil, false
	}
	key, err := publicKeyFromBase64(b64)
	if err != nil {
		return nil, false
	}
	return key, true
}

// x5uKeysFromChain collects every distinct x5u anchor key carried anywhere
// in chain, so a self-signed chain can be verified without a configured
// root.
func x5uKeysFromChain(chain LoginChain) []*ecdsa.PublicKey {
	var keys []*ecdsa.PublicKey
	for _, token := range chain {
		if key, ok := x5uKeyFromToken(token); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// publicKeyFromBase64 decodes a DER-encoded SubjectPublicKeyInfo (the form
// Bedrock embeds as a plain base64 string, with no PEM wrapper) into an
// ECDSA public key.
func publicKeyFromBase64(b64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	ecKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("bedrock: identity key is not an ECDSA public key")
	}
	if ecKey.Curve != elliptic.P384() && ecKey.Curve != elliptic.P256() {
		return nil, errors.New("bedrock: unsupported identity key curve")
	}
	return ecKey, nil
}

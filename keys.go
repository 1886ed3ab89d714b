package pasetox

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/zeebo/blake3"
)

// b64 is the only accepted key and token segment encoding. Strict rejects
// non-zero trailing bits so every byte string has exactly one text form.
var b64 = base64.RawURLEncoding.Strict()

// keySize is the encoded size of both the verification key and the signing seed.
const keySize = 32

// fingerprintKey separates key fingerprints from any other BLAKE3 use.
var fingerprintKey = [32]byte{
	'p', 'a', 's', 'e', 't', 'o', 'x', '.', 'k', 'e', 'y', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Keys holds the Ed25519 verification key and, on issuing instances, the
// signing key. Keys is immutable after construction and safe for concurrent use.
type Keys struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// LoadKeys decodes base64url (unpadded) key material. verificationKey must
// decode to a 32-byte Ed25519 public key. signingKey is optional; when set it
// must decode to a 32-byte Ed25519 seed whose public half matches
// verificationKey.
func LoadKeys(verificationKey, signingKey string) (*Keys, error) {
	pub, err := decodeKey("verification key", verificationKey)
	if err != nil {
		return nil, err
	}
	if err := checkPoint(pub); err != nil {
		return nil, err
	}
	keys := &Keys{public: ed25519.PublicKey(pub)}
	if signingKey == "" {
		return keys, nil
	}

	seed, err := decodeKey("signing key", signingKey)
	if err != nil {
		return nil, err
	}
	private := ed25519.NewKeyFromSeed(seed)
	if !bytes.Equal(private.Public().(ed25519.PublicKey), keys.public) {
		return nil, newError(ErrCodeKeyFormat, errors.New("signing key does not match verification key"))
	}
	keys.private = private
	return keys, nil
}

// NewKeys builds key material from raw Ed25519 keys. private may be nil for
// a verify-only key set.
func NewKeys(public ed25519.PublicKey, private ed25519.PrivateKey) (*Keys, error) {
	if len(public) != ed25519.PublicKeySize {
		return nil, newError(ErrCodeKeyFormat, fmt.Errorf("verification key has %d bytes, want %d", len(public), ed25519.PublicKeySize))
	}
	if err := checkPoint(public); err != nil {
		return nil, err
	}
	keys := &Keys{public: append(ed25519.PublicKey(nil), public...)}
	if private == nil {
		return keys, nil
	}
	if len(private) != ed25519.PrivateKeySize {
		return nil, newError(ErrCodeKeyFormat, fmt.Errorf("signing key has %d bytes, want %d", len(private), ed25519.PrivateKeySize))
	}
	if !bytes.Equal(private.Public().(ed25519.PublicKey), keys.public) {
		return nil, newError(ErrCodeKeyFormat, errors.New("signing key does not match verification key"))
	}
	keys.private = append(ed25519.PrivateKey(nil), private...)
	return keys, nil
}

// GenerateKeys creates a fresh signing-capable key set.
func GenerateKeys() (*Keys, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return &Keys{public: public, private: private}, nil
}

// LoadKeysFromJWK parses OKP (Ed25519) keys in JWK JSON form. privateJWK may
// be empty for a verify-only key set.
func LoadKeysFromJWK(publicJWK, privateJWK []byte) (*Keys, error) {
	parsed, err := jwk.ParseKey(publicJWK)
	if err != nil {
		return nil, newError(ErrCodeKeyFormat, fmt.Errorf("parse public jwk: %w", err))
	}
	var public ed25519.PublicKey
	if err := parsed.Raw(&public); err != nil {
		return nil, newError(ErrCodeKeyFormat, fmt.Errorf("public jwk is not an Ed25519 key: %w", err))
	}
	if len(privateJWK) == 0 {
		return NewKeys(public, nil)
	}

	parsed, err = jwk.ParseKey(privateJWK)
	if err != nil {
		return nil, newError(ErrCodeKeyFormat, fmt.Errorf("parse private jwk: %w", err))
	}
	var private ed25519.PrivateKey
	if err := parsed.Raw(&private); err != nil {
		return nil, newError(ErrCodeKeyFormat, fmt.Errorf("private jwk is not an Ed25519 key: %w", err))
	}
	return NewKeys(public, private)
}

// CanSign reports whether the key set holds a signing key.
func (k *Keys) CanSign() bool {
	return k != nil && len(k.private) == ed25519.PrivateKeySize
}

// PublicKey returns a copy of the verification key, or nil for a nil key set.
func (k *Keys) PublicKey() ed25519.PublicKey {
	if k == nil {
		return nil
	}
	return append(ed25519.PublicKey(nil), k.public...)
}

// Encode returns the key set in the form accepted by LoadKeys. signingKey is
// empty for verify-only key sets; both are empty for a nil key set.
func (k *Keys) Encode() (verificationKey, signingKey string) {
	if k == nil {
		return "", ""
	}
	verificationKey = b64.EncodeToString(k.public)
	if k.private != nil {
		signingKey = b64.EncodeToString(k.private.Seed())
	}
	return verificationKey, signingKey
}

// PublicJWK renders the verification key as an OKP JWK.
func (k *Keys) PublicJWK() ([]byte, error) {
	if k == nil || len(k.public) != ed25519.PublicKeySize {
		return nil, newError(ErrCodeKeyFormat, errors.New("no verification key"))
	}
	key, err := jwk.FromRaw(k.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("build jwk: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, k.Fingerprint()); err != nil {
		return nil, fmt.Errorf("set kid: %w", err)
	}
	return json.Marshal(key)
}

// PrivateJWK renders the signing key as an OKP JWK carrying the same kid as
// PublicJWK.
func (k *Keys) PrivateJWK() ([]byte, error) {
	if !k.CanSign() {
		return nil, newError(ErrCodeMissingSigningKey, nil)
	}
	key, err := jwk.FromRaw(append(ed25519.PrivateKey(nil), k.private...))
	if err != nil {
		return nil, fmt.Errorf("build jwk: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, k.Fingerprint()); err != nil {
		return nil, fmt.Errorf("set kid: %w", err)
	}
	return json.Marshal(key)
}

// Fingerprint returns a short, log-safe identifier of the verification key.
// A nil key set has an empty fingerprint.
func (k *Keys) Fingerprint() string {
	if k == nil {
		return ""
	}
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("pasetox: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(k.public)
	return hex.EncodeToString(hasher.Sum(nil)[:16])
}

func decodeKey(name, encoded string) ([]byte, error) {
	if strings.ContainsAny(encoded, "\r\n") {
		return nil, newError(ErrCodeKeyFormat, fmt.Errorf("%s contains a line break", name))
	}
	raw, err := b64.DecodeString(encoded)
	if err != nil {
		return nil, newError(ErrCodeKeyFormat, fmt.Errorf("%s: %w", name, err))
	}
	if len(raw) != keySize {
		return nil, newError(ErrCodeKeyFormat, fmt.Errorf("%s has %d bytes, want %d", name, len(raw), keySize))
	}
	return raw, nil
}

// checkPoint rejects 32-byte strings that do not encode a point on the
// Ed25519 curve.
func checkPoint(public []byte) error {
	if _, err := new(edwards25519.Point).SetBytes(public); err != nil {
		return newError(ErrCodeKeyFormat, fmt.Errorf("verification key is not an Ed25519 point: %w", err))
	}
	return nil
}

package pasetox

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Header is the version and purpose prefix of every token. It is part of the
// signed input.
const Header = "v4.public."

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize

// footer is always empty: the framing reserves a slot for it but the wire
// format never carries one.
var footer = []byte{}

// Issue serializes claims, signs them and returns the wire token
// "v4.public.<payload>.<signature>".
func Issue(keys *Keys, claims Claims) (string, error) {
	if !keys.CanSign() {
		return "", newError(ErrCodeMissingSigningKey, nil)
	}
	if err := claims.validate(); err != nil {
		return "", newError(ErrCodeClaimsFormat, err)
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", newError(ErrCodeInternal, fmt.Errorf("encode claims: %w", err))
	}
	signature := ed25519.Sign(keys.private, pae([]byte(Header), payload, footer))

	var b strings.Builder
	b.Grow(len(Header) + b64.EncodedLen(len(payload)) + 1 + b64.EncodedLen(signatureSize))
	b.WriteString(Header)
	b.WriteString(b64.EncodeToString(payload))
	b.WriteByte('.')
	b.WriteString(b64.EncodeToString(signature))
	return b.String(), nil
}

// Verify authenticates token against keys and returns its claims.
func Verify(keys *Keys, token string) (*Claims, error) {
	return VerifyAt(keys, token, time.Now())
}

// VerifyAt is like Verify but checks expiry against now.
//
// Format and signature checks always run before any claim is inspected, so
// a forged token is rejected on cryptographic grounds regardless of the
// expiry it claims.
func VerifyAt(keys *Keys, token string, now time.Time) (*Claims, error) {
	if keys == nil || len(keys.public) != ed25519.PublicKeySize {
		return nil, newError(ErrCodeKeyFormat, errors.New("no verification key"))
	}
	rest, ok := strings.CutPrefix(token, Header)
	if !ok {
		return nil, newError(ErrCodeTokenFormat, errors.New("unexpected version or purpose"))
	}

	parts := strings.Split(rest, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, newError(ErrCodeTokenFormat, fmt.Errorf("expected 2 segments after header, got %d", len(parts)))
	}
	payload, err := decodeSegment("payload", parts[0])
	if err != nil {
		return nil, err
	}
	signature, err := decodeSegment("signature", parts[1])
	if err != nil {
		return nil, err
	}

	if len(signature) != signatureSize {
		return nil, newError(ErrCodeSignature, fmt.Errorf("signature has %d bytes, want %d", len(signature), signatureSize))
	}
	if !ed25519.Verify(keys.public, pae([]byte(Header), payload, footer), signature) {
		return nil, newError(ErrCodeSignature, nil)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, newError(ErrCodeClaimsFormat, err)
	}
	if err := claims.validate(); err != nil {
		return nil, newError(ErrCodeClaimsFormat, err)
	}
	exp, err := claims.ExpiresAt()
	if err != nil {
		return nil, newError(ErrCodeClaimsFormat, err)
	}
	if now.After(exp) {
		return nil, newError(ErrCodeExpired, fmt.Errorf("expired at %s", claims.Expiry))
	}
	return &claims, nil
}

// decodeSegment decodes one token segment. Line breaks are rejected up front
// because the base64 decoder skips them, which would let several strings
// stand for the same token.
func decodeSegment(name, segment string) ([]byte, error) {
	if strings.ContainsAny(segment, "\r\n") {
		return nil, newError(ErrCodeTokenFormat, fmt.Errorf("%s contains a line break", name))
	}
	raw, err := b64.DecodeString(segment)
	if err != nil {
		return nil, newError(ErrCodeTokenFormat, fmt.Errorf("decode %s: %w", name, err))
	}
	return raw, nil
}

package login

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zealnet/server/internal/registry"
)

// PayloadVerifier authenticates a LOG_IN payload already shaped into a
// string-keyed map (the JSON/WebSocket decoders produce this shape
// directly; the binary/SBE decoders' app layer is expected to have decoded
// its buffer into the same shape before handing it to login).
type PayloadVerifier func(ctx context.Context, fields map[string]any) (string, map[string]any, bool, error)

// MapVerifier adapts a PayloadVerifier into a CredentialsVerifier, minting a
// fresh opaque randomKey per successful login (spec §3: "Equality/hash are
// based solely on randomKey").
type MapVerifier struct {
	Verify_ PayloadVerifier
}

func NewMapVerifier(fn PayloadVerifier) MapVerifier { return MapVerifier{Verify_: fn} }

func (v MapVerifier) Verify(ctx context.Context, payload any) (registry.Credentials, bool, error) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return registry.Credentials{}, false, fmt.Errorf("login: verifier: payload is not a map[string]any (%T)", payload)
	}

	account, attrs, ok, err := v.Verify_(ctx, fields)
	if err != nil || !ok {
		return registry.Credentials{}, false, err
	}

	randomKey, err := newRandomKey()
	if err != nil {
		return registry.Credentials{}, false, err
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	attrs["account"] = account
	return registry.Credentials{RandomKey: randomKey, Attributes: attrs}, true, nil
}

func newRandomKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("login: generating random key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// JWTVerifier authenticates a LOG_IN payload carrying a pre-issued JWT
// (e.g. minted by an external auth service) instead of raw account
// credentials. Optional: wired in only when config enables it (SPEC_FULL.md
// §11 domain stack).
type JWTVerifier struct {
	ParseKey func(*jwt.Token) (any, error)
}

func NewJWTVerifier(secret []byte) JWTVerifier {
	return JWTVerifier{ParseKey: func(*jwt.Token) (any, error) { return secret, nil }}
}

func (v JWTVerifier) Verify(ctx context.Context, payload any) (registry.Credentials, bool, error) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return registry.Credentials{}, false, fmt.Errorf("login: jwt verifier: payload is not a map[string]any (%T)", payload)
	}
	raw, ok := fields["token"].(string)
	if !ok {
		return registry.Credentials{}, false, fmt.Errorf("login: jwt verifier: missing token field")
	}

	token, err := jwt.Parse(raw, v.ParseKey, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return registry.Credentials{}, false, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return registry.Credentials{}, false, fmt.Errorf("login: jwt verifier: unexpected claims type")
	}
	subject, _ := claims["sub"].(string)
	if subject == "" {
		return registry.Credentials{}, false, fmt.Errorf("login: jwt verifier: missing sub claim")
	}

	randomKey, err := newRandomKey()
	if err != nil {
		return registry.Credentials{}, false, err
	}
	return registry.Credentials{
		RandomKey:  randomKey,
		Attributes: map[string]any{"account": subject},
	}, true, nil
}

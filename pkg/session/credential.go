package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by CredentialService.Validate.
var (
	ErrInvalidCredential = errors.New("invalid session credential")
	ErrCredentialExpired = errors.New("session credential has expired")
)

// credentialClaims binds a signed token to the session id it was issued
// for. The token's own expiry is a transport-edge convenience only; the
// authoritative liveness record is always the StoredSession lease.
type credentialClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// CredentialService issues and validates HMAC-signed tokens binding a
// session id to whoever presents the token. coordd's exchange transport
// uses this so a restarted or malicious peer can't claim another node's
// session identity on an outbound stream.
type CredentialService struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
}

// NewCredentialService creates a CredentialService signing with secret,
// which must be at least 32 bytes. lifetime bounds how long an issued
// token is accepted; zero defaults to one hour.
func NewCredentialService(secret []byte, lifetime time.Duration) (*CredentialService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session credential secret must be at least 32 bytes")
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &CredentialService{secret: secret, issuer: "coordcore", lifetime: lifetime}, nil
}

// Issue signs a token binding id, valid for the service's configured
// lifetime.
func (s *CredentialService) Issue(id ID) (string, error) {
	now := time.Now()
	claims := &credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
		SessionID: id.String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses tokenString and returns the session id it's bound to.
func (s *CredentialService) Validate(tokenString string) (ID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &credentialClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return None, ErrCredentialExpired
		}
		return None, ErrInvalidCredential
	}

	claims, ok := token.Claims.(*credentialClaims)
	if !ok || !token.Valid {
		return None, ErrInvalidCredential
	}

	raw, err := hex.DecodeString(claims.SessionID)
	if err != nil {
		return None, ErrInvalidCredential
	}
	return FromBytes(raw), nil
}

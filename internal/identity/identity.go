// Package identity resolves the owner behind a session token. Registry
// pointers and snapshots are keyed by owner id, so every session starts by
// establishing one.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hashdrive/hashdrive/internal/faults"
)

// Claims are the token claims carried by a session token. The subject is
// the owner id.
type Claims struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is a verified session owner.
type Identity struct {
	OwnerID     string
	Email       string
	DisplayName string
	ExpiresAt   time.Time
}

// Verifier validates HS256 session tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier over the given signing secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, faults.New(faults.Auth, "missing_secret", "session token secret is not configured")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify parses and validates a session token, returning the identity it
// asserts. All failures are authentication faults: an expired or malformed
// token reads the same to the caller as a forged one.
func (v *Verifier) Verify(tokenStr string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, faults.Wrap(faults.Auth, "verify session token", err)
	}
	if !token.Valid {
		return nil, faults.New(faults.Auth, "", "session token is invalid")
	}
	if claims.Subject == "" {
		return nil, faults.New(faults.Auth, "", "session token carries no owner id")
	}

	id := &Identity{
		OwnerID:     claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Issue mints a session token for ownerID, valid for ttl.
func (v *Verifier) Issue(ownerID, email, displayName string, ttl time.Duration) (string, error) {
	if ownerID == "" {
		return "", faults.New(faults.Validation, "", "owner id is required")
	}

	now := time.Now()
	claims := &Claims{
		Email:       email,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "hashdrive",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

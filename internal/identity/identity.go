// Package identity resolves the calling owner from a signed bearer
// token. Token issuance lives with the external identity provider; the
// Mint helper exists for development and tests.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoIdentity = errors.New("no identity available")

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Resolve validates the token signature and returns the owner it was
// issued for.
func (v *Verifier) Resolve(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrNoIdentity
	}
	return claims.Subject, nil
}

// FromRequest extracts the owner from the Authorization header.
func (v *Verifier) FromRequest(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrNoIdentity
	}
	tokenString, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return "", ErrNoIdentity
	}
	return v.Resolve(tokenString)
}

// Mint issues a token for the owner, valid for ttl.
func (v *Verifier) Mint(owner string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   owner,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

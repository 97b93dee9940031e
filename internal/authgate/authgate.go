// Package authgate gates credential changes behind the current secret
// code. Secrets are never stored or compared in plaintext: only salted
// bcrypt hashes persist, and verification runs inside bcrypt's
// constant-time digest comparison. Match or mismatch is the only
// observable outcome.
package authgate

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"wealthledger/internal/model"
)

// DefaultSecret is hashed and installed when an account is first created.
const DefaultSecret = "1234"

// bcrypt ignores input beyond 72 bytes, so longer secrets would silently
// collide; reject them up front.
const maxSecretLen = 72

// ValidateNewSecret checks the shape of a proposed secret. This is an
// input-validation failure axis independent of authorization: it fires
// before any backend call, and an authorization failure never reveals
// whether the new value was otherwise valid.
func ValidateNewSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: empty secret", model.ErrInvalidCredential)
	}
	if len(secret) > maxSecretLen {
		return fmt.Errorf("%w: secret longer than %d bytes", model.ErrInvalidCredential, maxSecretLen)
	}
	return nil
}

// HashSecret derives the salted one-way hash stored for an account.
func HashSecret(secret string) (string, error) {
	if err := ValidateNewSecret(secret); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret compares an attempted secret against the stored hash.
// Any mismatch surfaces as ErrUnauthorized with no further detail.
func VerifySecret(storedHash, attempt string) error {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(attempt))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return model.ErrUnauthorized
	}
	// Corrupt or foreign hash material: still just "not authorized" to
	// the caller.
	return model.ErrUnauthorized
}

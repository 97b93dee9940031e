package authgate

import (
	"errors"
	"strings"
	"testing"

	"wealthledger/internal/model"
)

func TestValidateNewSecret(t *testing.T) {
	if err := ValidateNewSecret(""); !errors.Is(err, model.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential for empty secret, got %v", err)
	}
	if err := ValidateNewSecret(strings.Repeat("x", 73)); !errors.Is(err, model.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential for oversized secret, got %v", err)
	}
	if err := ValidateNewSecret("5678"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHashAndVerify(t *testing.T) {
	hash, err := HashSecret("1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "1234" || hash == "" {
		t.Fatal("secret must not be stored in plaintext")
	}

	if err := VerifySecret(hash, "1234"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := VerifySecret(hash, "0000"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized on mismatch, got %v", err)
	}
}

func TestSecretChangeSequence(t *testing.T) {
	// currentSecret = "1234"; a failed attempt must leave it verifiable,
	// then the real secret rotates it to "5678".
	hash, err := HashSecret("1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := VerifySecret(hash, "0000"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	// Old secret still works after the failed attempt.
	if err := VerifySecret(hash, "1234"); err != nil {
		t.Fatalf("stored secret changed after failed attempt: %v", err)
	}

	newHash, err := HashSecret("5678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := VerifySecret(newHash, "5678"); err != nil {
		t.Fatalf("expected match for rotated secret, got %v", err)
	}
	if err := VerifySecret(newHash, "1234"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("old secret must not verify against the new hash, got %v", err)
	}
}

func TestVerifyCorruptHash(t *testing.T) {
	if err := VerifySecret("not-a-bcrypt-hash", "1234"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("corrupt hash material must surface as unauthorized, got %v", err)
	}
}

package identity

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMintAndResolve(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Mint("0x2B2812a2639f0B27", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	owner, err := v.Resolve(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner != "0x2B2812a2639f0B27" {
		t.Fatalf("resolved wrong owner: %q", owner)
	}
}

func TestResolveWrongKey(t *testing.T) {
	token, err := NewVerifier("key-one").Mint("alice", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := NewVerifier("key-two").Resolve(token); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected no identity for foreign signature, got %v", err)
	}
}

func TestResolveExpired(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Mint("alice", -time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := v.Resolve(token); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected no identity for expired token, got %v", err)
	}
}

func TestFromRequest(t *testing.T) {
	v := NewVerifier("test-secret")
	token, _ := v.Mint("alice", time.Minute)

	r := httptest.NewRequest("GET", "/funds", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	owner, err := v.FromRequest(r)
	if err != nil || owner != "alice" {
		t.Fatalf("expected alice, got %q (%v)", owner, err)
	}

	r = httptest.NewRequest("GET", "/funds", nil)
	if _, err := v.FromRequest(r); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected no identity without header, got %v", err)
	}

	r = httptest.NewRequest("GET", "/funds", nil)
	r.Header.Set("Authorization", token)
	if _, err := v.FromRequest(r); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected no identity without bearer prefix, got %v", err)
	}
}

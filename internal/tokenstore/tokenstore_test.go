package tokenstore

import (
	"crypto/sha256"
	"testing"
)

func TestAddThenValidate(t *testing.T) {
	store := New()
	hash := sha256.Sum256([]byte("token-a"))

	if store.ValidateSession(hash) {
		t.Fatalf("expected unregistered token to be invalid")
	}

	store.AddSessionToken(hash)
	if !store.ValidateSession(hash) {
		t.Fatalf("expected registered token to be valid")
	}
}

func TestRevoke(t *testing.T) {
	store := New()
	hash := sha256.Sum256([]byte("token-b"))

	store.AddSessionToken(hash)
	store.Revoke(hash)

	if store.ValidateSession(hash) {
		t.Fatalf("expected revoked token to be invalid")
	}
}

func TestClearRemovesAllTokens(t *testing.T) {
	store := New()
	h1 := sha256.Sum256([]byte("one"))
	h2 := sha256.Sum256([]byte("two"))

	store.AddSessionToken(h1)
	store.AddSessionToken(h2)
	store.Clear()

	if store.ValidateSession(h1) || store.ValidateSession(h2) {
		t.Fatalf("expected all tokens cleared")
	}
}

package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	encoded, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	if encoded == "correct horse" {
		t.Fatalf("expected hash to differ from plaintext")
	}
	if !hasher.Verify("correct horse", encoded) {
		t.Fatalf("expected matching password to verify")
	}
	if hasher.Verify("wrong horse", encoded) {
		t.Fatalf("expected mismatching password to fail")
	}
}

func TestBcryptHasherSaltsEachHash(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)
	first, err := hasher.Hash("secret-1")
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	second, err := hasher.Hash("secret-1")
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct salts")
	}
}

func TestBcryptHasherRejectsInvalidPasswords(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)
	if _, err := hasher.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected empty password error, got %v", err)
	}
	long := strings.Repeat("a", maxPasswordBytes+1)
	if _, err := hasher.Hash(long); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected too long error, got %v", err)
	}
	if hasher.Verify(long, "$2a$04$invalid") {
		t.Fatalf("expected oversized password to fail verification")
	}
}

func TestNewBcryptHasherFallsBackToDefaultCost(t *testing.T) {
	hasher := NewBcryptHasher(0)
	if hasher.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", hasher.cost)
	}
}

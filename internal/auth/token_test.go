package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestSignAndVerifyToken(t *testing.T) {
	setSecret(t)

	u := &User{
		ID:           "usr-1",
		Username:     "alice",
		Role:         RoleAnalyst,
		Capabilities: []Capability{CapCreateUsers},
	}
	session, err := SignToken(u, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", session.ExpiresAt)
	}

	principal, err := VerifyToken(session.Token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if principal.UserID != "usr-1" || principal.Username != "alice" || principal.Role != RoleAnalyst {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if !principal.HasCapability(CapCreateUsers) {
		t.Fatalf("capability was not preserved")
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	setSecret(t)

	u := &User{ID: "usr-1", Username: "alice", Role: RoleAnalyst}
	session, err := SignToken(u, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if _, err := VerifyToken(session.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestVerifyTokenTampered(t *testing.T) {
	setSecret(t)

	u := &User{ID: "usr-1", Username: "alice", Role: RoleAnalyst}
	session, err := SignToken(u, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	parts := strings.Split(session.Token, ".")
	parts[2] = "AAAA" + parts[2][4:]
	if _, err := VerifyToken(strings.Join(parts, ".")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := VerifyToken(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestVerifyTokenOrgScopedNeedsOrganization(t *testing.T) {
	setSecret(t)

	// An org-scoped role without an organization claim is malformed even
	// when the signature checks out.
	u := &User{ID: "usr-2", Username: "bob", Role: RoleIT}
	session, err := SignToken(u, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if _, err := VerifyToken(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSignTokenMissingSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	u := &User{ID: "usr-1", Username: "alice", Role: RoleAnalyst}
	if _, err := SignToken(u, time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error without configured secret")
	}
}

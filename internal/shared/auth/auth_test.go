package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.Issue("alice", "admin")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Username != "alice" {
		t.Fatalf("unexpected username: %q", claims.Username)
	}
	if claims.Role != "admin" {
		t.Fatalf("unexpected role: %q", claims.Role)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Hour).Issue("alice", "user")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := NewManager("secret-b", time.Hour).Verify(token); err == nil {
		t.Fatal("expected verification to fail with wrong secret")
	}
}

func TestVerifyExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)

	token, err := m.Issue("alice", "user")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected expired token to fail verification")
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/slices", nil)
	if got := BearerToken(r); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}

	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	if got := BearerToken(r); got != "abc.def.ghi" {
		t.Fatalf("token = %q", got)
	}

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := BearerToken(r); got != "" {
		t.Fatalf("expected empty token for basic auth, got %q", got)
	}
}

func TestCheckPassword(t *testing.T) {
	sum := sha256.Sum256([]byte("hunter2"))
	stored := hex.EncodeToString(sum[:])

	if !CheckPassword("hunter2", stored) {
		t.Fatal("expected matching password to verify")
	}
	if CheckPassword("hunter3", stored) {
		t.Fatal("expected non-matching password to fail")
	}
}

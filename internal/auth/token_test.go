package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testUser() *User {
	return &User{ID: "user-1", Email: "cook@example.com", Role: RoleEditor, Status: UserStatusActive}
}

func TestCodecRoundtrip(t *testing.T) {
	codec, err := NewCodec([]byte(testSecret), "forkful-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, exp, err := codec.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiry, got %v", exp)
	}

	identity, err := codec.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if identity.UserID != "user-1" {
		t.Fatalf("unexpected subject: %s", identity.UserID)
	}
	if identity.Role != RoleEditor {
		t.Fatalf("unexpected role: %s", identity.Role)
	}
}

func TestCodecRejectsTampering(t *testing.T) {
	codec, err := NewCodec([]byte(testSecret), "forkful-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	token, _, err := codec.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := codec.VerifyAccessToken(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := codec.VerifyAccessToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
	if _, err := codec.VerifyAccessToken(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestCodecRejectsRotatedSecret(t *testing.T) {
	oldCodec, err := NewCodec([]byte(testSecret), "forkful-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	newCodec, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"), "forkful-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, _, err := oldCodec.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := newCodec.VerifyAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for rotated secret, got %v", err)
	}
}

func TestCodecRejectsExpiredToken(t *testing.T) {
	now := time.Now()
	codec, err := NewCodec([]byte(testSecret), "forkful-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	current := now
	codec.WithNow(func() time.Time { return current })

	token, _, err := codec.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	current = now.Add(16 * time.Minute)
	if _, err := codec.VerifyAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestCodecRejectsWrongIssuer(t *testing.T) {
	issuing, err := NewCodec([]byte(testSecret), "someone-else", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	verifying, err := NewCodec([]byte(testSecret), "forkful-test", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	token, _, err := issuing.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := verifying.VerifyAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestNewCodecValidation(t *testing.T) {
	if _, err := NewCodec([]byte("short"), "forkful", time.Minute); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := NewCodec([]byte(testSecret), "", time.Minute); err == nil {
		t.Fatal("expected error for empty issuer")
	}
	if _, err := NewCodec([]byte(testSecret), "forkful", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

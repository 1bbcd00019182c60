package auth

import (
	"glamshot/internal/entity"
	"strings"
	"testing"
	"time"
)

func TestNewManagerAndTokenLifecycle(t *testing.T) {
	mgr, err := NewManager("test-secret", "issuer", time.Minute*30)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}

	user := &entity.DbUser{ID: "user-42", Email: "user@example.com"}
	token, expiresAt, err := mgr.GenerateToken(user)
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt.Before(time.Now()) {
		t.Fatal("expected future expiry time")
	}

	claims, err := mgr.ParseToken(token)
	if err != nil {
		t.Fatalf("unexpected error parsing token: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected user id %s, got %s", user.ID, claims.UserID)
	}
	if !strings.EqualFold(claims.Email, user.Email) {
		t.Fatalf("expected email %s, got %s", user.Email, claims.Email)
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("   ", "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestGenerateTokenRequiresUser(t *testing.T) {
	mgr, err := NewManager("test-secret", "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}
	if _, _, err := mgr.GenerateToken(nil); err == nil {
		t.Fatal("expected error for nil user")
	}
	if _, _, err := mgr.GenerateToken(&entity.DbUser{Email: "x@example.com"}); err == nil {
		t.Fatal("expected error for user without id")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	mgr, _ := NewManager("secret-a", "", time.Hour)
	other, _ := NewManager("secret-b", "", time.Hour)

	token, _, err := mgr.GenerateToken(&entity.DbUser{ID: "u1", Email: "u1@example.com"})
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	if _, err := other.ParseToken(token); err == nil {
		t.Fatal("expected parse error for token signed with another secret")
	}
}

package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestContextRoundTrip(t *testing.T) {
	id := Identity{UserID: "user-7", Email: "dev@example.com", Role: RoleDeveloper}
	ctx := ContextWith(context.Background(), id)
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("unexpected identity from context: %+v ok=%v", got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no identity in empty context")
	}
}

func TestRoleHelpers(t *testing.T) {
	if !(Identity{Role: RoleAdmin}).IsAdmin() {
		t.Fatal("admin should be admin")
	}
	if (Identity{Role: RoleDeveloper}).IsAdmin() {
		t.Fatal("developer is not admin")
	}
	if !(Identity{Role: RoleDeveloper}).CanCreate() || !(Identity{Role: RoleAdmin}).CanCreate() {
		t.Fatal("admin and developer can create")
	}
	if (Identity{Role: RoleUser}).CanCreate() {
		t.Fatal("user role is read-only")
	}
	if !ValidRole("admin") || ValidRole("superuser") {
		t.Fatal("role validation broken")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	v, err := NewVerifier([]byte("test-secret"))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, err := v.GenerateToken(Identity{UserID: "user-42", Email: "a@b.c", Role: "Admin"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	id, err := v.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if id.UserID != "user-42" || id.Email != "a@b.c" || id.Role != RoleAdmin {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	issuer, _ := NewVerifier([]byte("issuer-secret"))
	verifier, _ := NewVerifier([]byte("other-secret"))
	token, err := issuer.GenerateToken(Identity{UserID: "user-1", Role: RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := verifier.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	v, _ := NewVerifier([]byte("test-secret"))
	token, err := v.GenerateToken(Identity{UserID: "user-1", Role: RoleUser}, time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := v.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	v, _ := NewVerifier([]byte("test-secret"))
	for _, token := range []string{"", "   ", "not.a.jwt"} {
		if _, err := v.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

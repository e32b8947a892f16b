package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestAuthenticateNoHeaderIsDemoUser(t *testing.T) {
	u, err := Authenticate("", []byte("secret"))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !u.Demo || u.ID != DemoUser.ID {
		t.Fatalf("expected demo user, got %+v", u)
	}
}

func TestAuthenticateNoSecretIsDemoUser(t *testing.T) {
	u, err := Authenticate("Bearer whatever", nil)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !u.Demo {
		t.Fatalf("expected demo user when no secret configured, got %+v", u)
	}
}

func TestAuthenticateValidToken(t *testing.T) {
	secret := []byte("test-secret")
	userID := uuid.New()
	token := signToken(t, secret, Claims{
		Email: "ada@example.com",
		Name:  "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	u, err := Authenticate("Bearer "+token, secret)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.ID != userID || u.Email != "ada@example.com" || u.Name != "Ada" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.Demo {
		t.Fatal("authenticated user should not be demo")
	}
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	token := signToken(t, []byte("right"), Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
	})
	if _, err := Authenticate("Bearer "+token, []byte("wrong")); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	token := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	if _, err := Authenticate("Bearer "+token, secret); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestAuthenticateRejectsBadSubject(t *testing.T) {
	secret := []byte("test-secret")
	token := signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"},
	})
	_, err := Authenticate("Bearer "+token, secret)
	if err == nil || !strings.Contains(err.Error(), "invalid token subject") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthenticateRejectsGarbageToken(t *testing.T) {
	if _, err := Authenticate("Bearer not.a.jwt", []byte("secret")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestUserContextRoundTrip(t *testing.T) {
	u := User{ID: uuid.New(), Email: "x@y.z"}
	ctx := WithUser(context.Background(), u)
	got, ok := FromContext(ctx)
	if !ok || got.ID != u.ID {
		t.Fatalf("context round trip failed: %+v ok=%v", got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should not carry a user")
	}
}

package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DemoUser is the shared identity for unauthenticated requests. Its
// profile row is seeded by the migrations.
var DemoUser = User{
	ID:    uuid.MustParse("00000000-0000-0000-0000-000000000000"),
	Email: "demo@dataenginex.com",
	Name:  "Demo User",
	Demo:  true,
}

type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Demo  bool      `json:"demo,omitempty"`
}

type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticate resolves the user for one request. Requests without a
// bearer token, and deployments without a configured secret, run as the
// demo user. A present token must be a valid HS256 JWT whose subject is
// the user id.
func Authenticate(authorization string, secret []byte) (User, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" || len(secret) == 0 {
		return DemoUser, nil
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	if tokenString == "" {
		return DemoUser, nil
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	parsed, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return User{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return User{}, fmt.Errorf("invalid token claims")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return User{}, fmt.Errorf("invalid token subject %q: %w", claims.Subject, err)
	}
	return User{ID: userID, Email: claims.Email, Name: claims.Name}, nil
}

type ctxKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok
}

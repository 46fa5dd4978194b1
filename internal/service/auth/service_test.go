package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository/memory"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
	jwtpkg "github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/jwt"
)

func newService(store *memory.Store, cfg config.APIConfig) Service {
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func TestAuthorizeProvisionsUnknownSubject(t *testing.T) {
	store := memory.New()
	cfg := config.APIConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Minute}
	svc := newService(store, cfg)

	token, err := svc.IssueToken("user_abc", "")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	user, claims, err := svc.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if claims.Subject != "user_abc" {
		t.Fatalf("expected subject user_abc, got %q", claims.Subject)
	}
	if user.ExternalID != "user_abc" || user.Email != "user_abc@unknown.com" || !user.IsActive {
		t.Fatalf("unexpected provisioned user %+v", user)
	}

	again, _, err := svc.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("second authorize: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("expected the same user on second call, got %s and %s", user.ID, again.ID)
	}
}

func TestAuthorizeUsesEmailClaim(t *testing.T) {
	store := memory.New()
	svc := newService(store, config.APIConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Minute})

	token, err := jwtpkg.GenerateToken("user_mail", "dev@example.com", "test-secret", time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	user, _, err := svc.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if user.Email != "dev@example.com" {
		t.Fatalf("expected email from claims, got %q", user.Email)
	}
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	store := memory.New()
	svc := newService(store, config.APIConfig{JWTSecret: "test-secret"})

	wrongKey, err := jwtpkg.GenerateToken("user_x", "", "other-secret", time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	expired, err := jwtpkg.GenerateToken("user_x", "", "test-secret", -time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	for name, token := range map[string]string{"empty": " ", "garbage": "not-a-jwt", "wrong key": wrongKey, "expired": expired} {
		if _, _, err := svc.Authorize(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", name, err)
		}
	}
}

func TestAuthorizeRejectsDisabledUser(t *testing.T) {
	store := memory.New()
	svc := newService(store, config.APIConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Minute})
	token, _ := svc.IssueToken("user_gone", "")

	user, _, err := svc.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	user.IsActive = false
	if err := store.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, _, err := svc.Authorize(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for disabled user, got %v", err)
	}
}

func TestAuthorizeRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	store := memory.New()
	svc := newService(store, config.APIConfig{JWTSecret: "unused", AuthPublicKey: publicPEM, AuthIssuer: "https://clerk.example.com"})

	sign := func(issuer string) string {
		claims := jwtpkg.Claims{
			Email:     "rs@example.com",
			FirstName: "Ada",
			LastName:  "Lovelace",
			RegisteredClaims: jwtlib.RegisteredClaims{
				Subject:   "user_rs",
				Issuer:    issuer,
				ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return signed
	}

	user, _, err := svc.Authorize(context.Background(), sign("https://clerk.example.com"))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if user.FullName == nil || *user.FullName != "Ada Lovelace" {
		t.Fatalf("expected full name from claims, got %v", user.FullName)
	}
	if _, _, err := svc.Authorize(context.Background(), sign("https://evil.example.com")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected issuer mismatch to be unauthorized, got %v", err)
	}

	hs, _ := jwtpkg.GenerateToken("user_rs", "", "unused", time.Minute)
	if _, _, err := svc.Authorize(context.Background(), hs); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected HS256 token to be rejected when RS256 is configured, got %v", err)
	}
}

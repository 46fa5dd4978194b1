package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines the session token payload issued by the identity provider.
// Subject carries the provider user id.
type Claims struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"given_name,omitempty"`
	LastName  string `json:"family_name,omitempty"`
	Username  string `json:"username,omitempty"`
	ImageURL  string `json:"picture,omitempty"`
	jwtlib.RegisteredClaims
}

// ErrMissingSubject is returned when a verified token has no subject.
var ErrMissingSubject = errors.New("jwt: token subject missing")

// GenerateToken issues an HS256 token for subject. Used for local development and tests.
func GenerateToken(subject, email, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			Issuer:    "sirpi",
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates an HS256 token and extracts claims.
func Parse(token string, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	return extractClaims(parsed)
}

// ParseRS256 validates a token signed by the identity provider's RSA key.
// An empty issuer disables the issuer check.
func ParseRS256(token, publicKeyPEM, issuer string) (*Claims, error) {
	key, err := jwtlib.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{jwtlib.SigningMethodRS256.Name})}
	if strings.TrimSpace(issuer) != "" {
		opts = append(opts, jwtlib.WithIssuer(issuer))
	}
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return extractClaims(parsed)
}

func extractClaims(parsed *jwtlib.Token) (*Claims, error) {
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// AppToken signs the short-lived RS256 JWT a GitHub App uses to call app endpoints.
// iat is backdated a minute to tolerate clock drift; GitHub caps exp at ten minutes.
func AppToken(appID, privateKeyPEM string, now time.Time) (string, error) {
	if strings.TrimSpace(appID) == "" {
		return "", errors.New("jwt: github app id missing")
	}
	key, err := jwtlib.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("parse app private key: %w", err)
	}
	claims := jwtlib.RegisteredClaims{
		Issuer:    appID,
		IssuedAt:  jwtlib.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(9 * time.Minute)),
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims).SignedString(key)
}

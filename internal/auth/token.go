package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-checkout/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the session cookie set by the user service.
const CookieName = "authToken"

// Claims is the session token payload.
type Claims struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier turns a raw session token into the caller it identifies.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (models.Principal, time.Time, error)
}

// ExtractTokenFromRequest reads the session cookie, falling back to a Bearer header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// HMACVerifier checks HS256 tokens signed with the shared secret.
type HMACVerifier struct {
	Secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{Secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (models.Principal, time.Time, error) {
	if rawToken == "" {
		return models.Principal{}, time.Time{}, errors.New("empty token")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Principal{}, time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Subject == "" {
		return models.Principal{}, time.Time{}, errors.New("subject claim not found in token")
	}

	return models.Principal{UserID: claims.Subject, Role: claims.Role}, claims.ExpiresAt.Time, nil
}

// IssueToken signs an HS256 session token. Used by tooling and tests.
func IssueToken(secret string, p models.Principal, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

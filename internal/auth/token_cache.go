package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	// TokenKeyPrefix namespaces verified tokens in Redis
	TokenKeyPrefix = "auth:token:"
	// TokenExpiryBuffer is dropped from the token lifetime so a cached entry never outlives the token
	TokenExpiryBuffer = 5 * time.Second
)

// TokenCache is a verified token as stored in Redis.
type TokenCache struct {
	Principal models.Principal `json:"principal"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// IsValid checks if the token is still valid with a buffer time before expiry
func (tc *TokenCache) IsValid(now time.Time) bool {
	if tc == nil || tc.Principal.UserID == "" {
		return false
	}
	return now.Add(TokenExpiryBuffer).Before(tc.ExpiresAt)
}

// CachingVerifier remembers successful verifications in Redis so repeated
// requests with the same token skip signature and provider checks.
type CachingVerifier struct {
	Next   Verifier
	Client *redis.Client
	Logger *logger.Logger
	Now    func() time.Time
}

func NewCachingVerifier(next Verifier, client *redis.Client, log *logger.Logger) *CachingVerifier {
	return &CachingVerifier{Next: next, Client: client, Logger: log, Now: time.Now}
}

func (c *CachingVerifier) Verify(ctx context.Context, rawToken string) (models.Principal, time.Time, error) {
	key := TokenKeyPrefix + tokenHash(rawToken)
	now := c.Now()

	if cached, err := c.get(ctx, key); err != nil {
		c.Logger.Warn("AUTH", fmt.Sprintf("Token cache read failed: %v", err))
	} else if cached.IsValid(now) {
		return cached.Principal, cached.ExpiresAt, nil
	}

	p, exp, err := c.Next.Verify(ctx, rawToken)
	if err != nil {
		return models.Principal{}, time.Time{}, err
	}

	if ttl := exp.Sub(now) - TokenExpiryBuffer; ttl > 0 {
		if err := c.set(ctx, key, TokenCache{Principal: p, ExpiresAt: exp}, ttl); err != nil {
			c.Logger.Warn("AUTH", fmt.Sprintf("Token cache write failed: %v", err))
		}
	}
	return p, exp, nil
}

func (c *CachingVerifier) get(ctx context.Context, key string) (*TokenCache, error) {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var tc TokenCache
	if err := json.Unmarshal(raw, &tc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token cache: %w", err)
	}
	return &tc, nil
}

func (c *CachingVerifier) set(ctx context.Context, key string, tc TokenCache, ttl time.Duration) error {
	raw, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}
	return c.Client.Set(ctx, key, raw, ttl).Err()
}

// the raw token never lands in Redis
func tokenHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

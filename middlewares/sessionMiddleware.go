package middlewares

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/foodtrust/foodtrust_backend/utils"
)

// Sessions tracks logged-out tokens until they would have expired anyway.
// Without Redis, logout is accepted but tokens stay valid until expiry.
type Sessions struct {
	client *redis.Client
}

func NewSessions(client *redis.Client) *Sessions {
	return &Sessions{client: client}
}

func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "RevokedToken:" + hex.EncodeToString(sum[:])
}

// Revoke marks token as logged out for ttl.
func (s *Sessions) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if s == nil || s.client == nil || token == "" {
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, revokedKey(token), 1, ttl).Err()
}

// SessionMiddleware rejects tokens that were revoked by logout. It must run
// after AuthMiddleware.
func (s *Sessions) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" || s == nil || s.client == nil {
			c.Next()
			return
		}
		n, err := s.client.Exists(c.Request.Context(), revokedKey(token)).Result()
		if err == nil && n > 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

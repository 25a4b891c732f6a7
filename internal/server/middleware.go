package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zerocost/portal/internal/auth"
	"go.uber.org/zap"
)

const (
	contextUserIDKey = "user_id"
	contextEmailKey  = "email"
)

// AuthRequired validates the Authorization bearer token and stashes the
// caller identity on the gin context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			AbortWithError(c, auth.ErrUnauthorized)
			return
		}

		identity, err := s.verifier.Verify(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, identity.UserID)
		c.Set(contextEmailKey, identity.Email)
		c.Next()
	}
}

// RateLimitRegister throttles anonymous registrations per client IP. A
// limiter error lets the request through; registration is idempotent.
func (s *Server) RateLimitRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.registerLimiter.Enabled() {
			c.Next()
			return
		}

		result, err := s.registerLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("register rate limiter unavailable", zap.Error(err))
		}
		if result != nil && !result.Allowed {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func callerIdentity(c *gin.Context) (email, userID string) {
	return c.GetString(contextEmailKey), c.GetString(contextUserIDKey)
}

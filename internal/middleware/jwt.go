package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/pkg/response"
)

// Authenticate verifies the bearer token and stores the resulting principal.
// Every failure is a 401; the token itself is never logged.
func Authenticate(verifier auth.Verifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		principal, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			logger.Debug("token rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		auth.SetPrincipal(c, principal)
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ticketing-suite/ticketing/internal/access"
	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/pkg/response"
)

// Authorize enforces the gate's role requirement for op before the handler
// runs. It panics at registration time if op has no policy entry.
func Authorize(gate *access.Gate, op access.Operation) gin.HandlerFunc {
	gate.MustKnow(op)
	return func(c *gin.Context) {
		var principal *auth.Principal
		if p, ok := auth.PrincipalFrom(c); ok {
			principal = &p
		}
		if err := gate.Authorize(principal, op); err != nil {
			response.FromError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

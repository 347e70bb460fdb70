package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
)

type corsPolicy struct {
	any      bool
	exact    map[string]bool
	suffixes []string // from "https://*.example.com" entries: "https://" + ".example.com"
	schemes  []string
}

func parseCORS(allowedOrigins string) corsPolicy {
	p := corsPolicy{exact: make(map[string]bool)}
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			p.any = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			p.schemes = append(p.schemes, scheme+"://")
			p.suffixes = append(p.suffixes, host)
		default:
			p.exact[o] = true
		}
	}
	if len(p.exact) == 0 && len(p.suffixes) == 0 {
		p.any = true
	}
	return p
}

func (p corsPolicy) allows(origin string) bool {
	if p.exact[origin] {
		return true
	}
	for i, suffix := range p.suffixes {
		rest, ok := strings.CutPrefix(origin, p.schemes[i])
		if ok && strings.HasSuffix(rest, suffix) && len(rest) > len(suffix) {
			return true
		}
	}
	return false
}

// CORS sets cross-origin headers. allowedOrigins is "*" or a comma-separated
// list of origins, where "https://*.example.com" admits any subdomain.
// Preflight requests are answered with 204 before authentication runs.
func CORS(allowedOrigins string) gin.HandlerFunc {
	policy := parseCORS(allowedOrigins)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		switch {
		case policy.any:
			allowOrigin = "*"
		case origin != "" && policy.allows(origin):
			allowOrigin = origin
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if allowOrigin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Expose-Headers", "Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining")
			h.Set("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// apiHeaders are sent on every response. The API serves JSON only, so
// nothing may be framed or load sub-resources.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
}

// Security sets the API response headers. Responses that carry tokens or the
// caller's profile are additionally marked uncacheable.
func Security() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range apiHeaders {
			h.Set(kv[0], kv[1])
		}

		if carriesCredentials(c.Request.URL.Path) {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
		}
		if c.Request.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

func carriesCredentials(path string) bool {
	return strings.Contains(path, "/auth/") || strings.HasSuffix(path, "/users/me")
}

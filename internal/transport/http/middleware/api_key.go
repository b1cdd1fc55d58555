package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the operator credential on API calls.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey guards operator endpoints with a shared key. The
// comparison is constant time. An empty configured key rejects every
// request rather than opening the API.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "api key not configured"})
			return
		}

		presented := c.GetHeader(APIKeyHeader)
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		c.Next()
	}
}

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyConfig names the header to read and the keys it may carry. Several
// keys are accepted at once so a key can be rotated without downtime.
type APIKeyConfig struct {
	HeaderName   string
	ValidAPIKeys []string
}

// APIKeyMiddleware rejects requests that do not carry one of the configured
// keys. Without any configured key every request is refused.
func APIKeyMiddleware(config APIKeyConfig) gin.HandlerFunc {
	keys := make([][]byte, 0, len(config.ValidAPIKeys))
	for _, key := range config.ValidAPIKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, []byte(key))
		}
	}

	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "API key authentication is not configured",
			})
			return
		}

		apiKey := strings.TrimSpace(c.GetHeader(config.HeaderName))
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing API key",
			})
			return
		}

		if !matchesAny(keys, []byte(apiKey)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			return
		}

		c.Next()
	}
}

// matchesAny compares against every key in constant time.
func matchesAny(keys [][]byte, candidate []byte) bool {
	matched := 0
	for _, key := range keys {
		matched |= subtle.ConstantTimeCompare(key, candidate)
	}
	return matched == 1
}

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"nullbr-search-service/internal/model"

	"github.com/gin-gonic/gin"
)

// AdminAuth returns a middleware that validates the admin API key.
// If apiKey is empty, authentication is disabled.
func AdminAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		key := adminKey(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.APIResponse{
				Code:  http.StatusUnauthorized,
				Error: "未授权：缺少 API Key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, model.APIResponse{
				Code:  http.StatusForbidden,
				Error: "禁止访问：API Key 无效",
			})
			return
		}

		c.Next()
	}
}

// adminKey reads "Authorization: Bearer|ApiKey <key>", then X-API-Key,
// then the api_key query parameter
func adminKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		auth = strings.TrimPrefix(auth, "Bearer ")
		return strings.TrimPrefix(auth, "ApiKey ")
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	return c.Query("api_key")
}

package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const adminContextKey = "auth_admin"

// Middleware rejects requests that do not carry the admin API key.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.ValidateKey(s.extractKey(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(adminContextKey, true)
		c.Next()
	}
}

// IsAdminRequest reports whether the middleware accepted the request.
func IsAdminRequest(c *gin.Context) bool {
	return c.GetBool(adminContextKey)
}

func (s *Service) extractKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(s.keyHeader)); key != "" {
		return key
	}
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

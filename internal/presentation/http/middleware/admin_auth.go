package middleware

import (
	"net/http"
	"strings"

	"github.com/AtRiskMedia/tinysteps-go/internal/application/services"
	"github.com/gin-gonic/gin"
)

const adminRoleKey = "adminRole"

// AdminAuthMiddleware rejects requests without a valid admin bearer token.
func AdminAuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		role, err := authService.ValidateAdminToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(adminRoleKey, role)
		c.Next()
	}
}

// GetAdminRole returns the role set by AdminAuthMiddleware.
func GetAdminRole(c *gin.Context) (string, bool) {
	role, ok := c.Get(adminRoleKey)
	if !ok {
		return "", false
	}
	s, ok := role.(string)
	return s, ok
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

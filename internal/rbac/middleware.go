package rbac

import (
	"net/http"

	"memoir-platform/internal/auth"
	"memoir-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole admits callers holding one of allowed. Admin is always
// admitted; roles this service does not know are always refused, even when
// listed in allowed.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	permitted := map[string]bool{RoleAdmin: true}
	for _, r := range allowed {
		if IsKnownRole(r) {
			permitted[r] = true
		}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !permitted[role] {
			logger.FromGin(c).Warn("caller denied", "role", role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

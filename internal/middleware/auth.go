package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"msi-system/internal/api"
	"msi-system/internal/utils"
)

// JWTAuth rejects requests without a valid bearer token and stores the
// parsed claims on the context for downstream handlers.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse("Authorization header required"))
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse("Bearer token required"))
			return
		}

		claims, err := utils.ParseToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse("Invalid or expired token"))
			return
		}

		c.Set("user_id", claims.UserId)
		c.Set("username", claims.Username)
		c.Next()
	}
}

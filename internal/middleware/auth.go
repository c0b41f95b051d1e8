package middleware

import (
	"net/http"
	"strings"

	"pairchat/internal/config"
	"pairchat/internal/utils"
	"pairchat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SessionAuth validates the session JWT from the Authorization header,
// falling back to the token query param for WebSocket upgrades.
func SessionAuth(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			token := c.Query("token")
			if token == "" {
				utils.ErrorResponseWithCode(c, http.StatusUnauthorized, utils.CodeUnauthorized, "Missing session token")
				c.Abort()
				return
			}
			authHeader = "Bearer " + token
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			utils.ErrorResponseWithCode(c, http.StatusUnauthorized, utils.CodeUnauthorized, "Invalid token format")
			c.Abort()
			return
		}

		claims, err := utils.ValidateSessionToken(cfg, tokenString)
		if err != nil {
			logger.LogSecurityEvent("invalid_token", "", c.ClientIP(), map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			utils.ErrorResponseWithCode(c, http.StatusUnauthorized, utils.CodeUnauthorized, "Invalid session token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UID)
		c.Set("user_email", claims.Email)
		c.Set("user_name", claims.Name)

		c.Next()
	}
}

// GetUserID reads the authenticated user id set by SessionAuth
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"pingme-link/internal/auth"
)

const (
	userIDContextKey   = "userID"
	deviceIDContextKey = "deviceID"
)

func UserIDFromContext(c *gin.Context) (string, bool) {
	userID, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	value, ok := userID.(string)
	return value, ok && value != ""
}

func DeviceIDFromContext(c *gin.Context) (string, bool) {
	deviceID, ok := c.Get(deviceIDContextKey)
	if !ok {
		return "", false
	}
	value, ok := deviceID.(string)
	return value, ok && value != ""
}

// RequireAuth authenticates requests by the session cookie set during the
// pairing-token exchange.
func RequireAuth(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(auth.CookieName)
		if err != nil || cookie == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			c.Abort()
			return
		}

		claims, err := auth.VerifySessionToken(cookie, cfg)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			c.Abort()
			return
		}

		c.Set(userIDContextKey, claims.UserID)
		c.Set(deviceIDContextKey, claims.DeviceID)
		c.Next()
	}
}

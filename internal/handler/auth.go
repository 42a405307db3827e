package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"pingme-link/internal/auth"
	"pingme-link/internal/middleware"
	"pingme-link/internal/model"
	"pingme-link/internal/store"
)

type AuthHandler struct {
	Store        *store.Store
	TokenConfig  auth.TokenConfig
	LoginLimiter *middleware.RateLimiter
}

type loginWithTokenBody struct {
	PairingToken string           `json:"pairingToken"`
	DeviceInfo   model.DeviceInfo `json:"deviceInfo"`
}

// LoginWithToken is the pairing-token exchange: one token, consumed exactly
// once, yields the session cookie and the user's profile.
func (h *AuthHandler) LoginWithToken(c *gin.Context) {
	if h.LoginLimiter != nil && !h.LoginLimiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		return
	}

	var body loginWithTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.PairingToken == "" || body.DeviceInfo.DeviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing pairing token or device"})
		return
	}

	now := time.Now().UnixMilli()
	userID, err := h.Store.ConsumePairingToken(body.PairingToken, now)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, store.ErrPairingTokenConsumed) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	user, ok := h.Store.GetUser(userID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	h.Store.UpsertDevice(userID, body.DeviceInfo, now)

	token, err := auth.CreateSessionToken(userID, body.DeviceInfo.DeviceID, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}

	c.SetCookie(auth.CookieName, token, int(h.TokenConfig.Expiry.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, user)
}

// Check resumes a session from the cookie. A deviceId query value names the
// local device; a revoked device invalidates the session even though the
// cookie itself still verifies.
func (h *AuthHandler) Check(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	if deviceID := c.Query("deviceId"); deviceID != "" {
		d, ok := h.Store.GetDevice(deviceID)
		if !ok || d.UserID != userID {
			c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Device unlinked"})
			return
		}
		h.Store.TouchDevice(deviceID, time.Now().UnixMilli())
	}

	user, ok := h.Store.GetUser(userID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

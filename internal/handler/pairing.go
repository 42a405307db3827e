package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"pingme-link/internal/middleware"
	"pingme-link/internal/socketio"
	"pingme-link/internal/store"
)

type PairingHandler struct {
	Store            *store.Store
	Socket           *socketio.Server
	AuthorizeLimiter *middleware.RateLimiter
}

type authorizeBody struct {
	PairingCode string `json:"pairingCode"`
	// UserID stands in for the confirming phone's own session; the real
	// backend derives it from the phone's credentials.
	UserID string `json:"userId"`
}

// Authorize is the out-of-band confirmation step: a logged-in device claims
// a displayed code, which pushes a one-time token to the waiting client.
func (h *PairingHandler) Authorize(c *gin.Context) {
	if h.AuthorizeLimiter != nil && !h.AuthorizeLimiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		return
	}

	var body authorizeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.PairingCode == "" || body.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing pairing code or user"})
		return
	}

	if _, ok := h.Store.GetUser(body.UserID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := h.Socket.AuthorizePairing(body.PairingCode, body.UserID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"pingme-link/internal/middleware"
	"pingme-link/internal/socketio"
	"pingme-link/internal/store"
)

type DeviceHandler struct {
	Store  *store.Store
	Socket *socketio.Server
}

func (h *DeviceHandler) List(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	c.JSON(http.StatusOK, h.Store.ListDevices(userID))
}

// Unlink removes a linked device and notifies the user's connections so the
// unlinked device logs itself out.
func (h *DeviceHandler) Unlink(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	deviceID := c.Param("deviceId")
	if !h.Store.UnlinkDevice(userID, deviceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	}
	h.Socket.NotifyDeviceUnlinked(userID, deviceID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"pingme-link/internal/middleware"
	"pingme-link/internal/socketio"
	"pingme-link/internal/store"
)

type MessageHandler struct {
	Store  *store.Store
	Socket *socketio.Server
}

func (h *MessageHandler) Users(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	c.JSON(http.StatusOK, h.Store.ListUsers(userID))
}

func (h *MessageHandler) Conversation(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	otherID := c.Param("id")
	c.JSON(http.StatusOK, h.Store.MessagesBetween(userID, otherID))
}

type sendMessageBody struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	receiverID := c.Param("id")
	if _, ok := h.Store.GetUser(receiverID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var body sendMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Text == "" && body.Image == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty message"})
		return
	}

	msg := h.Store.AppendMessage(userID, receiverID, body.Text, body.Image, time.Now().UnixMilli())
	h.Socket.PushToUser(receiverID, "newMessage", msg)
	c.JSON(http.StatusCreated, msg)
}

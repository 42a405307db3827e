package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"pingme-link/internal/auth"
	"pingme-link/internal/handler"
	"pingme-link/internal/middleware"
	"pingme-link/internal/socketio"
	"pingme-link/internal/store"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	CodeTTL     time.Duration
	CodeRefresh time.Duration
}

// NewRouter wires the stub backend: the socket endpoint plus the REST
// surface the linked-device client consumes.
func NewRouter(deps Deps) (*gin.Engine, *socketio.Server) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	socket := socketio.NewServer(socketio.Deps{
		Store:       deps.Store,
		CodeTTL:     deps.CodeTTL,
		CodeRefresh: deps.CodeRefresh,
	})
	r.GET("/socket.io/", gin.WrapH(socket))

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)
	authHandler := &handler.AuthHandler{
		Store:        deps.Store,
		TokenConfig:  deps.TokenConfig,
		LoginLimiter: loginLimiter,
	}
	r.POST("/api/auth/login-with-token", authHandler.LoginWithToken)
	r.POST("/api/auth/logout", authHandler.Logout)

	authorizeLimiter := middleware.NewRateLimiter(10, time.Minute)
	pairingHandler := &handler.PairingHandler{
		Store:            deps.Store,
		Socket:           socket,
		AuthorizeLimiter: authorizeLimiter,
	}
	r.POST("/api/pairing/authorize", pairingHandler.Authorize)

	protected := r.Group("/api")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))
	protected.GET("/auth/check", authHandler.Check)

	messageHandler := &handler.MessageHandler{Store: deps.Store, Socket: socket}
	protected.GET("/messages/users", messageHandler.Users)
	protected.GET("/messages/:id", messageHandler.Conversation)
	protected.POST("/messages/send/:id", messageHandler.Send)

	deviceHandler := &handler.DeviceHandler{Store: deps.Store, Socket: socket}
	protected.GET("/auth/devices", deviceHandler.List)
	protected.DELETE("/auth/devices/:deviceId", deviceHandler.Unlink)

	return r, socket
}

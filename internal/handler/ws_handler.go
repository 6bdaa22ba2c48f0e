package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/trannm/healthpulse/internal/ws"
	"github.com/trannm/healthpulse/pkg/auth"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, validate origin
	},
}

// WSHandler upgrades admin connections onto the live delivery feed
type WSHandler struct {
	hub        *ws.Hub
	jwtManager *auth.JWTManager
	log        *zap.Logger
}

func NewWSHandler(hub *ws.Hub, jwtManager *auth.JWTManager, log *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:        hub,
		jwtManager: jwtManager,
		log:        log,
	}
}

// HandleWebSocket serves the delivery feed.
// Connect with: ws://host/ws/deliveries?token=<jwt_token>
// (WebSocket clients can't set an Authorization header.)
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	claims, err := h.jwtManager.ValidateToken(tokenString)
	if err != nil || claims.Role != "admin" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, h.log)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

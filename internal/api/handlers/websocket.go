package handlers

import (
	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rl-arena/ranked-matchmaker/internal/websocket"
)

// WebSocketHandler 대시보드/플레이어 실시간 피드
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		upgrader: websocket.Upgrader(allowedOrigins),
	}
}

// HandleWebSocket ?player= 가 있으면 해당 플레이어 개별 메시지도 수신
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	websocket.ServeWs(h.hub, h.upgrader, c.Writer, c.Request, c.Query("player"))
}

package websocket

import (
	"context"
	"sync"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"go.uber.org/zap"
)

// Hub WebSocket 연결 관리 및 브로드캐스트
type Hub struct {
	// 연결 ID -> *Client
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	PlayerID string      `json:"-"` // 수신 플레이어 외부 ID (빈 문자열이면 전체 브로드캐스트)
	Type     string      `json:"type"`
	Payload  interface{} `json:"payload"`
}

// MatchAssignment 매치에 배정된 플레이어에게 보내는 개별 메시지
type MatchAssignment struct {
	MatchID  int64              `json:"matchId"`
	TeamID   int64              `json:"teamId"`
	TeamName string             `json:"teamName"`
	Status   models.MatchStatus `json:"status"`
}

var _ service.Notifier = (*Hub)(nil)

// NewHub Hub 생성
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run ctx 가 취소될 때까지 Hub 실행
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.id] = client
	h.logger.Info("WebSocket client registered",
		zap.String("playerId", client.playerID),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client.id]; exists {
		delete(h.clients, client.id)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("playerId", client.playerID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}

func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if message.PlayerID != "" && client.playerID != message.PlayerID {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.logger.Warn("Client send channel full, unregistering",
				zap.String("playerId", client.playerID))
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

// ClientCount 연결 수
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", zap.String("type", message.Type))
	}
}

// SendToPlayer 특정 플레이어의 연결에만 전송
func (h *Hub) SendToPlayer(playerID, msgType string, payload interface{}) {
	h.enqueue(&Message{PlayerID: playerID, Type: msgType, Payload: payload})
}

// Broadcast 모든 연결에 전송
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	h.enqueue(&Message{Type: msgType, Payload: payload})
}

// Announce 서비스 알림을 대시보드로 브로드캐스트. 새 매치는 참가자에게 개별 전송
func (h *Hub) Announce(_ context.Context, event string, payload interface{}) {
	h.Broadcast(event, payload)

	if event != service.EventMatchCreated {
		return
	}
	match, ok := payload.(*models.MatchDetails)
	if !ok {
		return
	}
	for _, team := range match.Teams {
		for _, p := range team.Players {
			h.SendToPlayer(p.ExternalID, "match_assigned", MatchAssignment{
				MatchID:  match.ID,
				TeamID:   team.ID,
				TeamName: team.Name,
				Status:   match.Status,
			})
		}
	}
}

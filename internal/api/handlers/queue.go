package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

type QueueHandler struct {
	queueService *service.QueueService
}

func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{queueService: queueService}
}

type joinQueueRequest struct {
	ExternalID  string `json:"externalId" binding:"required"`
	DisplayName string `json:"displayName"`
}

type leaveQueueRequest struct {
	ExternalID string `json:"externalId" binding:"required"`
}

// Join 큐 참가
func (h *QueueHandler) Join(c *gin.Context) {
	var req joinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	entry, err := h.queueService.Join(c.Request.Context(), req.ExternalID, req.DisplayName)
	if err != nil {
		fail(c, err)
		return
	}

	size, _ := h.queueService.Size(c.Request.Context())
	ok(c, "joined the queue", gin.H{
		"entry":     entry,
		"queueSize": size,
	})
}

// Leave 큐 이탈
func (h *QueueHandler) Leave(c *gin.Context) {
	var req leaveQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.queueService.Leave(c.Request.Context(), req.ExternalID); err != nil {
		fail(c, err)
		return
	}
	ok(c, "left the queue", nil)
}

// Snapshot 현재 큐 (선택 순서)
func (h *QueueHandler) Snapshot(c *gin.Context) {
	views, err := h.queueService.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "queue snapshot", gin.H{
		"queue": views,
		"total": len(views),
	})
}

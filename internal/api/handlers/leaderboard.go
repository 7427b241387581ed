package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

type PlayerHandler struct {
	players *service.PlayerService
}

func NewPlayerHandler(players *service.PlayerService) *PlayerHandler {
	return &PlayerHandler{players: players}
}

type overrideRatingRequest struct {
	Rating int `json:"rating" binding:"required"`
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// Leaderboard 레이팅 순위
func (h *PlayerHandler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	players, err := h.players.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "leaderboard", gin.H{
		"leaderboard": players,
		"total":       len(players),
	})
}

// Get 외부 ID 로 플레이어 조회
func (h *PlayerHandler) Get(c *gin.Context) {
	player, err := h.players.GetByExternalID(c.Request.Context(), c.Param("externalId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "player", gin.H{"player": player})
}

// OverrideRating 관리자 레이팅 수정
func (h *PlayerHandler) OverrideRating(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req overrideRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	player, err := h.players.OverrideRating(c.Request.Context(), id, req.Rating)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "rating updated", gin.H{"player": player})
}

// SetActive 관리자 활성/비활성 전환
func (h *PlayerHandler) SetActive(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	player, err := h.players.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "player updated", gin.H{"player": player})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

type MatchHandler struct {
	matchmaking *service.MatchmakingService
	results     *service.ResultService
}

func NewMatchHandler(matchmaking *service.MatchmakingService, results *service.ResultService) *MatchHandler {
	return &MatchHandler{
		matchmaking: matchmaking,
		results:     results,
	}
}

type createMatchRequest struct {
	Force bool `json:"force"`
}

type reportWinnerRequest struct {
	WinningTeamID int64 `json:"winningTeamId" binding:"required"`
}

// Create 관리자 수동 매칭 시도
func (h *MatchHandler) Create(c *gin.Context) {
	var req createMatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	match, err := h.matchmaking.TryCreateMatch(c.Request.Context(), req.Force)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "match created",
		"match":   match,
	})
}

// Get 매치 조회
func (h *MatchHandler) Get(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}

	match, err := h.matchmaking.GetMatch(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "match", gin.H{"match": match})
}

// Active 대기/진행 중 매치
func (h *MatchHandler) Active(c *gin.Context) {
	matches, err := h.matchmaking.ActiveMatches(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "active matches", gin.H{
		"matches": matches,
		"total":   len(matches),
	})
}

// Recent 최근 매치
func (h *MatchHandler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	matches, err := h.matchmaking.RecentMatches(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "recent matches", gin.H{
		"matches": matches,
		"total":   len(matches),
	})
}

// Activate waiting → active
func (h *MatchHandler) Activate(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}

	match, err := h.matchmaking.ActivateMatch(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "match activated", gin.H{"match": match})
}

// ReportWinner 승리 팀 보고
func (h *MatchHandler) ReportWinner(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req reportWinnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, outcome, err := h.results.ReportWinner(c.Request.Context(), id, req.WinningTeamID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, outcome.Message, gin.H{"result": result})
}

// Cancel 매치 취소
func (h *MatchHandler) Cancel(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}

	match, err := h.results.CancelMatch(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "match cancelled", gin.H{"match": match})
}

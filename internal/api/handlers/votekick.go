package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

type VoteKickHandler struct {
	voteKicks *service.VoteKickService
}

func NewVoteKickHandler(voteKicks *service.VoteKickService) *VoteKickHandler {
	return &VoteKickHandler{voteKicks: voteKicks}
}

type initiateVoteKickRequest struct {
	InitiatorID string `json:"initiatorId" binding:"required"`
	TargetID    string `json:"targetId" binding:"required"`
}

type castVoteRequest struct {
	VoterID string `json:"voterId" binding:"required"`
	Approve *bool  `json:"approve" binding:"required"`
}

// Initiate 투표 시작
func (h *VoteKickHandler) Initiate(c *gin.Context) {
	var req initiateVoteKickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	vk, err := h.voteKicks.Initiate(c.Request.Context(), req.InitiatorID, req.TargetID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  "vote kick started",
		"voteKick": vk,
	})
}

// Get 투표 조회
func (h *VoteKickHandler) Get(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}

	vk, err := h.voteKicks.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "vote kick", gin.H{"voteKick": vk})
}

// Vote 표 던지기
func (h *VoteKickHandler) Vote(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	tally, err := h.voteKicks.CastVote(c.Request.Context(), id, req.VoterID, *req.Approve)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "vote recorded", gin.H{"tally": tally})
}

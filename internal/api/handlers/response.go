package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

// statusFor 서비스 에러를 HTTP 상태로 변환
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrTeamMismatch),
		errors.Is(err, service.ErrBalancing):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPlayerInactive),
		errors.Is(err, service.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotQueued),
		errors.Is(err, service.ErrPlayerNotFound),
		errors.Is(err, service.ErrMatchNotFound),
		errors.Is(err, service.ErrVoteKickNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyQueued),
		errors.Is(err, service.ErrAlreadyInMatch),
		errors.Is(err, service.ErrInsufficientPlayers),
		errors.Is(err, service.ErrInvalidMatchState),
		errors.Is(err, service.ErrMatchCreationInProgress),
		errors.Is(err, service.ErrVoteKickPending),
		errors.Is(err, service.ErrVoteKickClosed),
		errors.Is(err, service.ErrAlreadyVoted):
		return http.StatusConflict
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail 에러 응답. 메시지는 service.Describe 로 정리
func fail(c *gin.Context, err error) {
	outcome := service.Describe(err)
	c.JSON(statusFor(err), gin.H{
		"success": false,
		"message": outcome.Message,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": message,
	})
}

// ok 성공 응답. data 의 키를 최상위에 합침
func ok(c *gin.Context, message string, data gin.H) {
	body := gin.H{"success": true, "message": message}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

package service

import (
	"errors"
	"fmt"
)

// Outcome 커맨드/REST 계층에 그대로 보여줄 결과
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// userFacing 사용자에게 원문 메시지를 보여줘도 되는 에러
var userFacing = []error{
	ErrAlreadyQueued,
	ErrAlreadyInMatch,
	ErrNotQueued,
	ErrQueueFull,
	ErrPlayerNotFound,
	ErrPlayerInactive,
	ErrInvalidInput,
	ErrInsufficientPlayers,
	ErrBalancing,
	ErrMatchNotFound,
	ErrInvalidMatchState,
	ErrTeamMismatch,
	ErrMatchCreationInProgress,
	ErrMatchCreationFailed,
	ErrVoteKickNotFound,
	ErrVoteKickPending,
	ErrVoteKickClosed,
	ErrAlreadyVoted,
	ErrNotEligible,
}

// Succeeded 성공 결과
func Succeeded(format string, args ...interface{}) Outcome {
	return Outcome{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Describe 에러를 사용자 메시지로 변환. 인프라 에러는 내부 정보를 숨김
func Describe(err error) Outcome {
	if err == nil {
		return Outcome{Success: true, Message: "ok"}
	}
	for _, known := range userFacing {
		if errors.Is(err, known) {
			return Outcome{Success: false, Message: known.Error()}
		}
	}
	return Outcome{Success: false, Message: "internal error, please try again later"}
}

package service

import "errors"

// 큐 관련 에러
var (
	ErrAlreadyQueued  = errors.New("player is already in the queue")
	ErrAlreadyInMatch = errors.New("player is already in an active match")
	ErrNotQueued      = errors.New("player is not in the queue")
	ErrQueueFull      = errors.New("queue is full")
)

// 플레이어 관련 에러
var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrPlayerInactive = errors.New("player is inactive")
	ErrInvalidInput   = errors.New("invalid input")
)

// 매치 생성/진행 관련 에러
var (
	ErrInsufficientPlayers     = errors.New("not enough players in the queue")
	ErrBalancing               = errors.New("failed to balance teams")
	ErrMatchNotFound           = errors.New("match not found")
	ErrInvalidMatchState       = errors.New("invalid match state for this operation")
	ErrTeamMismatch            = errors.New("team does not belong to this match")
	ErrMatchCreationInProgress = errors.New("match creation already in progress")
	ErrMatchCreationFailed     = errors.New("match creation failed, players requeued")
)

// ErrPersistence 저장소 장애. 저장소 구현체가 %w 로 감싸서 반환
var ErrPersistence = errors.New("persistence error")

// 투표 강퇴 관련 에러
var (
	ErrVoteKickNotFound = errors.New("vote kick not found")
	ErrVoteKickPending  = errors.New("a vote kick is already pending for this player")
	ErrVoteKickClosed   = errors.New("vote kick is already resolved")
	ErrAlreadyVoted     = errors.New("player has already voted")
	ErrNotEligible      = errors.New("player is not eligible for this vote")
)

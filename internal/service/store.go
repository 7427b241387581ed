package service

import (
	"context"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
)

// PlayerStore 플레이어 영속화. 없는 플레이어 조회는 (nil, nil)
type PlayerStore interface {
	GetByID(ctx context.Context, id int64) (*models.Player, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Player, error)
	GetOrCreate(ctx context.Context, externalID, displayName string, defaultRating int) (*models.Player, error)
	ListByIDs(ctx context.Context, ids []int64) ([]models.Player, error)
	Leaderboard(ctx context.Context, limit int) ([]models.Player, error)
	UpdateRating(ctx context.Context, id int64, rating int) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// ReserveHook 예약이 커밋되기 전에 호출됨. 에러를 반환하면 예약 취소
type ReserveHook func(entries []models.QueueEntry) error

// QueueStore 매칭 대기열. 선택 순서는 priority DESC, joined_at ASC
type QueueStore interface {
	// Enqueue maxSize 가 0 이면 크기 제한 없음
	Enqueue(ctx context.Context, entry models.QueueEntry, maxSize int) error
	Dequeue(ctx context.Context, playerID int64) (bool, error)
	Contains(ctx context.Context, playerID int64) (bool, error)
	Size(ctx context.Context) (int, error)
	List(ctx context.Context) ([]models.QueueEntry, error)
	// SelectForMatch 상위 n명을 원자적으로 선택 후 제거. n명 미만이면 아무것도 제거하지 않고 nil
	SelectForMatch(ctx context.Context, n int, hook ReserveHook) ([]models.QueueEntry, error)
	// SelectPlayers 지정된 플레이어 전원이 대기 중일 때만 원자적으로 제거
	SelectPlayers(ctx context.Context, playerIDs []int64, hook ReserveHook) ([]models.QueueEntry, error)
	// Requeue 예약 취소된 엔트리 복구 (priority 0, 원래 joined_at 유지)
	Requeue(ctx context.Context, entries []models.QueueEntry) error
	// Sweep cutoff 이전에 들어온 엔트리 제거 후 반환
	Sweep(ctx context.Context, cutoff time.Time) ([]models.QueueEntry, error)
}

// CompleteFunc 잠긴 매치 상태를 보고 플레이어 갱신값을 계산
type CompleteFunc func(match *models.MatchDetails) ([]models.PlayerUpdate, error)

// MatchStore Match/Team/TeamPlayer 영속화
type MatchStore interface {
	// Create 매치(waiting) + 팀 + 팀원 생성. 이미 진행 중 매치에 속한 플레이어가 있으면 ErrAlreadyInMatch
	Create(ctx context.Context, teams []models.NewTeam) (*models.MatchDetails, error)
	Get(ctx context.Context, id int64) (*models.MatchDetails, error)
	// List statuses 가 비어 있으면 전체, 최신순
	List(ctx context.Context, statuses []models.MatchStatus, limit int) ([]models.MatchDetails, error)
	ActiveMatchForPlayer(ctx context.Context, playerID int64) (*models.MatchDetails, error)
	// Transition 상태 전이. 종료 상태로 가면 팀원 active 해제
	Transition(ctx context.Context, id int64, to models.MatchStatus) (*models.MatchDetails, error)
	// Complete 매치를 잠근 채 compute 실행 후 플레이어와 매치를 한 번에 저장
	Complete(ctx context.Context, id, winningTeamID int64, completedAt time.Time, compute CompleteFunc) (*models.MatchDetails, []models.PlayerUpdate, error)
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// VoteDecider 잠긴 투표 상태와 새 표를 보고 다음 상태를 결정
type VoteDecider func(vk *models.VoteKick, vote models.VoteKickVote) (models.VoteKickStatus, error)

// VoteKickStore 투표 강퇴 영속화
type VoteKickStore interface {
	Create(ctx context.Context, vk models.VoteKick, initial models.VoteKickVote) (*models.VoteKick, error)
	Get(ctx context.Context, id int64) (*models.VoteKick, error)
	CastVote(ctx context.Context, id int64, vote models.VoteKickVote, decide VoteDecider) (*models.VoteKick, error)
}

// Notifier 알림 전달 (DM, 채널 공지, 대시보드). 실패해도 호출자에게 영향 없음
type Notifier interface {
	Announce(ctx context.Context, event string, payload interface{})
}

// SideChannel 매치별 부가 채널(음성 채널 등) 준비/정리
type SideChannel interface {
	Setup(ctx context.Context, match *models.MatchDetails) error
	Teardown(ctx context.Context, match *models.MatchDetails) error
}

// Locker 프로세스 간 상호 배제. release 는 항상 호출 가능해야 함
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// 알림 이벤트 이름
const (
	EventQueueUpdated     = "queue_updated"
	EventQueueTimeout     = "queue_timeout"
	EventMatchCreated     = "match_created"
	EventMatchActivated   = "match_activated"
	EventMatchCompleted   = "match_completed"
	EventMatchCancelled   = "match_cancelled"
	EventPlayersRequeued  = "players_requeued"
	EventVoteKickStarted  = "vote_kick_started"
	EventVoteKickResolved = "vote_kick_resolved"
)

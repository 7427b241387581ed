package app

import (
	"github.com/rl-arena/ranked-matchmaker/internal/config"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"go.uber.org/zap"
)

// Stores 저장소 구현 묶음 (postgres, redis, memory 중 선택)
type Stores struct {
	Players   service.PlayerStore
	Queue     service.QueueStore
	Matches   service.MatchStore
	VoteKicks service.VoteKickStore
}

// Extras 선택 의존성. nil 이면 비활성
type Extras struct {
	Notifier    service.Notifier
	Publisher   service.EnqueuePublisher
	Locker      service.Locker
	Metrics     service.Metrics
	SideChannel service.SideChannel
}

// Services 서비스 계층
type Services struct {
	Players     *service.PlayerService
	Queue       *service.QueueService
	Matchmaking *service.MatchmakingService
	Results     *service.ResultService
	VoteKicks   *service.VoteKickService
	Groups      *service.GroupTracker
}

// NewServices 서비스 생성 및 연결. 처리 중 집합과 그룹 기록은 서비스 간 공유
func NewServices(cfg config.MatchmakingConfig, stores Stores, extras Extras, logger *zap.Logger) *Services {
	processing := service.NewProcessingSet()
	groups := service.NewGroupTracker(cfg.GroupLossCap).WithMaxAge(cfg.QueueTimeout)

	players := service.NewPlayerService(stores.Players, cfg.DefaultRating, logger.Named("players"))

	queue := service.NewQueueService(stores.Queue, stores.Matches, players, processing, service.QueueServiceOptions{
		MaxSize:   cfg.MaxQueueSize,
		Timeout:   cfg.QueueTimeout,
		Notifier:  extras.Notifier,
		Publisher: extras.Publisher,
		Metrics:   extras.Metrics,
	}, logger.Named("queue"))

	mm := service.NewMatchmakingService(service.MatchmakingDeps{
		Queue:       stores.Queue,
		Matches:     stores.Matches,
		Players:     players,
		QueueSvc:    queue,
		Groups:      groups,
		Processing:  processing,
		Notifier:    extras.Notifier,
		SideChannel: extras.SideChannel,
		Locker:      extras.Locker,
		Metrics:     extras.Metrics,
	}, cfg, logger.Named("matchmaking"))

	results := service.NewResultService(service.ResultServiceDeps{
		Matches:           stores.Matches,
		ELO:               service.NewELOService(cfg),
		QueueSvc:          queue,
		Groups:            groups,
		Notifier:          extras.Notifier,
		SideChannel:       extras.SideChannel,
		Metrics:           extras.Metrics,
		RequeueAfterMatch: cfg.RequeueAfterMatch,
	}, logger.Named("results"))

	votes := service.NewVoteKickService(stores.VoteKicks, stores.Matches, players,
		cfg.VoteKickMajorityPercent, cfg.VoteKickMinVotes,
		extras.Notifier, extras.Metrics, logger.Named("votekick"))

	return &Services{
		Players:     players,
		Queue:       queue,
		Matchmaking: mm,
		Results:     results,
		VoteKicks:   votes,
		Groups:      groups,
	}
}

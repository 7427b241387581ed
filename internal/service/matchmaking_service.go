package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/config"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const matchCreationLockKey = "matchmaking:create"

// MatchmakingService 큐에서 매치를 만드는 코디네이터. 주기 실행과 외부 트리거 모두 TryCreateMatch 로 수렴
type MatchmakingService struct {
	queue      QueueStore
	matches    MatchStore
	players    *PlayerService
	queueSvc   *QueueService
	balancer   TeamBalancer
	groups     *GroupTracker
	processing *ProcessingSet
	notifier   Notifier
	side       SideChannel
	locker     Locker
	metrics    Metrics
	cfg        config.MatchmakingConfig
	logger     *zap.Logger
	now        func() time.Time

	// 프로세스 내 단일 실행 보장
	createMu sync.Mutex

	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// MatchmakingDeps 코디네이터 의존성. Notifier/SideChannel/Locker/Metrics 는 선택
type MatchmakingDeps struct {
	Queue       QueueStore
	Matches     MatchStore
	Players     *PlayerService
	QueueSvc    *QueueService
	Balancer    TeamBalancer
	Groups      *GroupTracker
	Processing  *ProcessingSet
	Notifier    Notifier
	SideChannel SideChannel
	Locker      Locker
	Metrics     Metrics
	Now         func() time.Time
}

func NewMatchmakingService(deps MatchmakingDeps, cfg config.MatchmakingConfig, logger *zap.Logger) *MatchmakingService {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Balancer == nil {
		deps.Balancer = NewGreedyBalancer(cfg.DefaultRating, logger)
	}
	if deps.Groups == nil {
		deps.Groups = NewGroupTracker(cfg.GroupLossCap).WithMaxAge(cfg.QueueTimeout)
	}
	if deps.Processing == nil {
		deps.Processing = NewProcessingSet()
	}

	return &MatchmakingService{
		queue:      deps.Queue,
		matches:    deps.Matches,
		players:    deps.Players,
		queueSvc:   deps.QueueSvc,
		balancer:   deps.Balancer,
		groups:     deps.Groups,
		processing: deps.Processing,
		notifier:   deps.Notifier,
		side:       deps.SideChannel,
		locker:     deps.Locker,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     logger,
		now:        deps.Now,
	}
}

// Start 주기적 매칭 시작
func (s *MatchmakingService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("Starting MatchmakingService",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("teamSize", s.cfg.TeamSize))

	s.wg.Add(1)
	go s.matchmakingLoop(ctx)
}

// Stop 매칭 중지. 진행 중인 tick 이 끝날 때까지 대기
func (s *MatchmakingService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping MatchmakingService")
	close(s.stopChan)
	s.cancel()
	s.wg.Wait()
	s.logger.Info("MatchmakingService stopped")
}

func (s *MatchmakingService) matchmakingLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// 시작 시 한번 실행
	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			return
		}
	}
}

// RunOnce 한 주기: 만료 정리 → 큐 지표 → 가능한 만큼 매치 생성 → 오래된 매치 보관
func (s *MatchmakingService) RunOnce(ctx context.Context) {
	// 예약과 겹치지 않도록 같은 잠금 아래에서 정리
	s.createMu.Lock()
	if s.queueSvc != nil {
		if _, err := s.queueSvc.SweepExpired(ctx); err != nil {
			s.logger.Error("Failed to sweep expired queue entries", zap.Error(err))
		}
	}
	s.createMu.Unlock()

	size, err := s.queue.Size(ctx)
	if err != nil {
		s.logger.Error("Failed to read queue size", zap.Error(err))
		return
	}
	s.metrics.SetQueueSize(size)

	created := 0
	for created < s.cfg.MaxMatchesPerTick {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.TryCreateMatch(ctx, false); err != nil {
			if !errors.Is(err, ErrInsufficientPlayers) && !errors.Is(err, ErrMatchCreationInProgress) {
				s.logger.Warn("Scheduled match creation failed", zap.Error(err))
			}
			break
		}
		created++
	}

	if created > 0 {
		s.logger.Info("Matchmaking tick completed", zap.Int("matchesCreated", created))
	}

	s.archive(ctx)
}

// Trigger 외부 이벤트(큐 참가, 다른 인스턴스 알림)로 매칭 시도
func (s *MatchmakingService) Trigger(ctx context.Context, reason string) {
	match, err := s.TryCreateMatch(ctx, false)
	if err != nil {
		if !errors.Is(err, ErrInsufficientPlayers) && !errors.Is(err, ErrMatchCreationInProgress) {
			s.logger.Warn("Triggered match creation failed", zap.String("reason", reason), zap.Error(err))
		}
		return
	}
	s.logger.Debug("Triggered match creation succeeded",
		zap.String("reason", reason),
		zap.Int64("matchId", match.ID))
}

// TryCreateMatch 큐에서 인원을 예약해 매치 생성. force 면 최소 인원 확인 생략
func (s *MatchmakingService) TryCreateMatch(ctx context.Context, force bool) (*models.MatchDetails, error) {
	if !s.createMu.TryLock() {
		return nil, ErrMatchCreationInProgress
	}
	defer s.createMu.Unlock()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, matchCreationLockKey)
		if err != nil {
			if errors.Is(err, ErrMatchCreationInProgress) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: failed to acquire match creation lock: %v", ErrPersistence, err)
		}
		defer release()
	}

	started := s.now()
	match, err := s.createMatch(ctx, force)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMatchCreation(s.now().Sub(started))
	return match, nil
}

func (s *MatchmakingService) createMatch(ctx context.Context, force bool) (*models.MatchDetails, error) {
	teamSize := s.cfg.TeamSize
	matchSize := s.cfg.MatchSize()

	size, err := s.queue.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read queue size: %v", ErrPersistence, err)
	}

	required := matchSize
	if s.cfg.MinQueueSize > required {
		required = s.cfg.MinQueueSize
	}
	if size == 0 || (!force && size < required) {
		return nil, fmt.Errorf("%w: %d queued, %d required", ErrInsufficientPlayers, size, required)
	}

	comp := NewCompensator(s.logger)

	var marked []int64
	hook := func(entries []models.QueueEntry) error {
		marked = lo.Map(entries, func(e models.QueueEntry, _ int) int64 { return e.PlayerID })
		s.processing.Mark(marked...)
		return nil
	}

	// 1. 유지 그룹 우선, 없으면 일반 선택
	retained, entries, err := s.reserveRetainedGroup(ctx, hook, comp)
	if err != nil {
		s.processing.Clear(marked...)
		return nil, err
	}

	if entries == nil {
		n := matchSize
		if force && size < n {
			n = size
		}
		marked = nil
		entries, err = s.queue.SelectForMatch(ctx, n, hook)
		if err != nil {
			s.processing.Clear(marked...)
			s.metrics.IncMatchCreationFailures("reservation")
			return nil, fmt.Errorf("%w: failed to reserve players: %v", ErrPersistence, err)
		}
		if entries == nil {
			return nil, fmt.Errorf("%w: queue drained before reservation", ErrInsufficientPlayers)
		}
		s.pushUndo(comp, entries)
	}

	ids := lo.Map(entries, func(e models.QueueEntry, _ int) int64 { return e.PlayerID })
	s.logger.Info("Players reserved for match",
		zap.Int64s("playerIds", ids),
		zap.Bool("force", force),
		zap.Bool("retainedGroup", retained != nil))

	// 2. 팀 구성
	pool, err := s.loadPool(ctx, entries)
	if err != nil {
		return nil, s.abort(ctx, comp, "load_players", err)
	}

	var teamA, teamB []models.Player
	if retained != nil {
		for i := range pool {
			if pool[i].Rating <= 0 {
				s.logger.Warn("Player without rating entered the retained group, using default rating",
					zap.Int64("playerId", pool[i].ID),
					zap.String("externalId", pool[i].ExternalID),
					zap.Int("defaultRating", s.cfg.DefaultRating))
				pool[i].Rating = s.cfg.DefaultRating
			}
		}
		teamA, teamB = splitRetained(pool, retained.Members)
		if err := ValidateTeams(teamA, teamB, teamSize); err != nil {
			return nil, s.abort(ctx, comp, "balancing", err)
		}
	} else {
		teamA, teamB, err = s.balancer.Balance(pool, teamSize)
		if err != nil {
			return nil, s.abort(ctx, comp, "balancing", err)
		}
	}

	// 3. 영속화
	match, err := s.matches.Create(ctx, []models.NewTeam{
		newTeam("Team A", teamA),
		newTeam("Team B", teamB),
	})
	if err != nil {
		return nil, s.abort(ctx, comp, "persistence", err)
	}
	comp.Discard()

	// 예약 이후 끼어든 참가가 있으면 제거
	for _, id := range ids {
		if _, err := s.queue.Dequeue(ctx, id); err != nil {
			s.logger.Warn("Failed to clear queue entry of matched player", zap.Int64("playerId", id), zap.Error(err))
		}
	}
	s.processing.Clear(ids...)

	s.logger.Info("Match created",
		zap.Int64("matchId", match.ID),
		zap.Float64("teamAAvg", match.Teams[0].AvgRating),
		zap.Float64("teamBAvg", match.Teams[1].AvgRating))

	s.metrics.IncMatchesCreated()
	s.notifier.Announce(ctx, EventMatchCreated, match)

	// 4. 부가 채널 준비가 끝나면 active
	if s.side != nil {
		if err := s.side.Setup(ctx, match); err != nil {
			s.logger.Warn("Side channel setup failed, match stays waiting",
				zap.Int64("matchId", match.ID), zap.Error(err))
			return match, nil
		}
	}

	activated, err := s.ActivateMatch(ctx, match.ID)
	if err != nil {
		s.logger.Warn("Failed to activate match", zap.Int64("matchId", match.ID), zap.Error(err))
		return match, nil
	}
	return activated, nil
}

// reserveRetainedGroup 유지 중인 그룹 전원이 대기 중이면 그룹 + 상대 팀을 예약
func (s *MatchmakingService) reserveRetainedGroup(ctx context.Context, hook ReserveHook, comp *Compensator) (*RetainedGroup, []models.QueueEntry, error) {
	teamSize := s.cfg.TeamSize

	for _, group := range s.groups.RetainedGroups() {
		if len(group.Members) != teamSize {
			continue
		}

		groupEntries, err := s.queue.SelectPlayers(ctx, group.Members, hook)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to reserve retained group: %v", ErrPersistence, err)
		}
		if groupEntries == nil {
			continue
		}
		groupMarked := lo.Map(groupEntries, func(e models.QueueEntry, _ int) int64 { return e.PlayerID })

		opponents, err := s.queue.SelectForMatch(ctx, teamSize, hook)
		if err != nil || opponents == nil {
			// 상대가 부족하면 그룹을 되돌리고 일반 선택으로
			if rqErr := s.queue.Requeue(ctx, groupEntries); rqErr != nil {
				s.logger.Error("Failed to return retained group to queue", zap.Error(rqErr))
			}
			s.processing.Clear(groupMarked...)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: failed to reserve opponents: %v", ErrPersistence, err)
			}
			return nil, nil, nil
		}

		entries := append(groupEntries, opponents...)
		s.pushUndo(comp, entries)

		s.logger.Info("Re-forming retained group", zap.String("groupId", group.ID))
		g := group
		return &g, entries, nil
	}
	return nil, nil, nil
}

// pushUndo 예약 취소 작업 등록. 역순 실행이므로 큐 복구 후 플래그 해제
func (s *MatchmakingService) pushUndo(comp *Compensator, entries []models.QueueEntry) {
	ids := lo.Map(entries, func(e models.QueueEntry, _ int) int64 { return e.PlayerID })
	comp.Add("clear processing flags", func(context.Context) error {
		s.processing.Clear(ids...)
		return nil
	})
	comp.Add("requeue reserved players", func(ctx context.Context) error {
		return s.queue.Requeue(ctx, entries)
	})
}

// abort 보상 실행 후 호출자에게 돌려줄 에러 결정
func (s *MatchmakingService) abort(ctx context.Context, comp *Compensator, reason string, cause error) error {
	s.logger.Error("Match creation aborted, rolling back",
		zap.String("reason", reason),
		zap.Int("undoSteps", comp.Len()),
		zap.Error(cause))

	// 요청 취소와 무관하게 복구는 끝까지 수행
	rollbackCtx := context.WithoutCancel(ctx)
	if errs := comp.Rollback(rollbackCtx); len(errs) > 0 {
		s.logger.Error("Rollback finished with errors", zap.Int("failures", len(errs)))
	}

	s.metrics.IncRollbacks()
	s.metrics.IncMatchCreationFailures(reason)
	s.notifier.Announce(ctx, EventQueueUpdated, map[string]interface{}{"rollback": true})

	if errors.Is(cause, ErrBalancing) {
		return cause
	}
	return fmt.Errorf("%w: %v", ErrMatchCreationFailed, cause)
}

// loadPool 예약된 순서대로 플레이어 조회. 디렉터리에 없으면 레이팅 0 으로 두고 밸런서가 기본값 적용
func (s *MatchmakingService) loadPool(ctx context.Context, entries []models.QueueEntry) ([]models.Player, error) {
	ids := lo.Map(entries, func(e models.QueueEntry, _ int) int64 { return e.PlayerID })
	players, err := s.players.store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load players: %v", ErrPersistence, err)
	}
	byID := lo.KeyBy(players, func(p models.Player) int64 { return p.ID })

	pool := make([]models.Player, 0, len(entries))
	for _, e := range entries {
		p, ok := byID[e.PlayerID]
		if !ok {
			p = models.Player{ID: e.PlayerID}
		}
		pool = append(pool, p)
	}
	return pool, nil
}

// ActivateMatch waiting → active
func (s *MatchmakingService) ActivateMatch(ctx context.Context, matchID int64) (*models.MatchDetails, error) {
	match, err := s.matches.Transition(ctx, matchID, models.MatchStatusActive)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Match activated", zap.Int64("matchId", matchID))
	s.notifier.Announce(ctx, EventMatchActivated, match)
	return match, nil
}

// GetMatch 매치 상세
func (s *MatchmakingService) GetMatch(ctx context.Context, matchID int64) (*models.MatchDetails, error) {
	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// ActiveMatches waiting/active 매치 목록
func (s *MatchmakingService) ActiveMatches(ctx context.Context) ([]models.MatchDetails, error) {
	matches, err := s.matches.List(ctx, []models.MatchStatus{models.MatchStatusWaiting, models.MatchStatusActive}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list active matches: %w", err)
	}
	return matches, nil
}

// RecentMatches 최근 매치 (상태 무관)
func (s *MatchmakingService) RecentMatches(ctx context.Context, limit int) ([]models.MatchDetails, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	matches, err := s.matches.List(ctx, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return matches, nil
}

func (s *MatchmakingService) archive(ctx context.Context) {
	if s.cfg.ArchiveAfter <= 0 {
		return
	}
	n, err := s.matches.ArchiveBefore(ctx, s.now().Add(-s.cfg.ArchiveAfter))
	if err != nil {
		s.logger.Error("Failed to archive matches", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Archived finished matches", zap.Int("count", n))
	}
}

func newTeam(name string, players []models.Player) models.NewTeam {
	return models.NewTeam{
		Name:      name,
		AvgRating: float64(TeamRatingSum(players)) / float64(len(players)),
		PlayerIDs: lo.Map(players, func(p models.Player, _ int) int64 { return p.ID }),
	}
}

// splitRetained 그룹 멤버는 A, 나머지는 B
func splitRetained(pool []models.Player, members []int64) (teamA, teamB []models.Player) {
	inGroup := lo.SliceToMap(members, func(id int64) (int64, bool) { return id, true })
	for _, p := range pool {
		if inGroup[p.ID] {
			teamA = append(teamA, p)
		} else {
			teamB = append(teamB, p)
		}
	}
	return teamA, teamB
}

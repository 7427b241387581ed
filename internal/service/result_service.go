package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ResultService 승자 보고/취소 처리. 레이팅과 연승 기록은 이 서비스만 변경
type ResultService struct {
	matches  MatchStore
	elo      *ELOService
	queueSvc *QueueService
	groups   *GroupTracker
	notifier Notifier
	side     SideChannel
	metrics  Metrics
	requeue  bool
	now      func() time.Time
	logger   *zap.Logger
}

// ResultServiceDeps 결과 처리 의존성
type ResultServiceDeps struct {
	Matches           MatchStore
	ELO               *ELOService
	QueueSvc          *QueueService
	Groups            *GroupTracker
	Notifier          Notifier
	SideChannel       SideChannel
	Metrics           Metrics
	RequeueAfterMatch bool
	Now               func() time.Time
}

func NewResultService(deps ResultServiceDeps, logger *zap.Logger) *ResultService {
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &ResultService{
		matches:  deps.Matches,
		elo:      deps.ELO,
		queueSvc: deps.QueueSvc,
		groups:   deps.Groups,
		notifier: deps.Notifier,
		side:     deps.SideChannel,
		metrics:  deps.Metrics,
		requeue:  deps.RequeueAfterMatch,
		now:      deps.Now,
		logger:   logger,
	}
}

// EndMatch 승리 팀 확정. 이미 종료된 매치는 ErrInvalidMatchState 이며 레이팅을 다시 반영하지 않음
func (s *ResultService) EndMatch(ctx context.Context, matchID, winningTeamID int64) (*models.MatchResult, error) {
	var losingTeamID int64

	compute := func(m *models.MatchDetails) ([]models.PlayerUpdate, error) {
		if m.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: match %d is %s", ErrInvalidMatchState, m.ID, m.Status)
		}
		if len(m.Teams) != 2 {
			return nil, fmt.Errorf("%w: match %d has %d teams", ErrInvalidMatchState, m.ID, len(m.Teams))
		}

		winner := m.TeamByID(winningTeamID)
		if winner == nil {
			return nil, fmt.Errorf("%w: team %d, match %d", ErrTeamMismatch, winningTeamID, m.ID)
		}
		loser := &m.Teams[0]
		if loser.ID == winner.ID {
			loser = &m.Teams[1]
		}
		losingTeamID = loser.ID

		// 저장된 팀 평균이 아닌 현재 레이팅으로 계산
		return s.elo.CalculateMatch(winner.Players, loser.Players), nil
	}

	match, updates, err := s.matches.Complete(ctx, matchID, winningTeamID, s.now().UTC(), compute)
	if err != nil {
		return nil, err
	}

	result := &models.MatchResult{
		MatchID:       matchID,
		WinningTeamID: winningTeamID,
		LosingTeamID:  losingTeamID,
		Updates:       updates,
	}

	s.logger.Info("Match completed",
		zap.Int64("matchId", matchID),
		zap.Int64("winningTeamId", winningTeamID),
		zap.Int("playersUpdated", len(updates)))

	// 여기부터는 커밋 이후 작업. 실패해도 결과는 유지
	s.metrics.IncMatchesFinished(models.MatchStatusCompleted)
	s.afterFinish(ctx, match, result)
	s.notifier.Announce(ctx, EventMatchCompleted, result)

	return result, nil
}

// ReportWinner EndMatch 후 사용자에게 보여줄 결과 메시지를 함께 반환. 실패 시 err 로 상태 구분
func (s *ResultService) ReportWinner(ctx context.Context, matchID, winningTeamID int64) (*models.MatchResult, Outcome, error) {
	result, err := s.EndMatch(ctx, matchID, winningTeamID)
	if err != nil {
		s.logger.Warn("Failed to report winner",
			zap.Int64("matchId", matchID),
			zap.Int64("winningTeamId", winningTeamID),
			zap.Error(err))
		return nil, Describe(err), err
	}
	return result, Succeeded("match %d completed, team %d won", matchID, winningTeamID), nil
}

// CancelMatch 진행 중 매치 취소. 레이팅 변화 없이 참가자를 priority 0 으로 재등록
func (s *ResultService) CancelMatch(ctx context.Context, matchID int64) (*models.MatchDetails, error) {
	match, err := s.matches.Transition(ctx, matchID, models.MatchStatusCancelled)
	if err != nil {
		return nil, err
	}

	ids := match.PlayerIDs()
	s.logger.Info("Match cancelled",
		zap.Int64("matchId", matchID),
		zap.Int64s("playerIds", ids))

	s.metrics.IncMatchesFinished(models.MatchStatusCancelled)
	if s.groups != nil {
		s.groups.Forget(ids)
	}
	if s.queueSvc != nil {
		s.queueSvc.RequeuePlayers(ctx, ids)
	}
	s.teardown(ctx, match)
	s.notifier.Announce(ctx, EventMatchCancelled, match)

	return match, nil
}

// afterFinish 그룹 패배 기록, 재등록, 부가 채널 정리
func (s *ResultService) afterFinish(ctx context.Context, match *models.MatchDetails, result *models.MatchResult) {
	winners := teamPlayerIDs(match, result.WinningTeamID)
	losers := teamPlayerIDs(match, result.LosingTeamID)

	var broken []int64
	if s.groups != nil {
		s.groups.RecordWin(winners)
		broken = s.groups.RecordLoss(losers)
		if len(broken) > 0 {
			s.logger.Info("Losing group reached loss cap, breaking up",
				zap.Int64("matchId", match.ID),
				zap.Int64s("playerIds", broken))
		}
	}

	if s.requeue && s.queueSvc != nil {
		// 해체된 그룹은 마지막에 넣어 큐 뒤쪽으로
		first := lo.Without(match.PlayerIDs(), broken...)
		s.queueSvc.RequeuePlayers(ctx, first)
		s.queueSvc.RequeuePlayers(ctx, broken)
	}

	s.teardown(ctx, match)
}

func (s *ResultService) teardown(ctx context.Context, match *models.MatchDetails) {
	if s.side == nil {
		return
	}
	if err := s.side.Teardown(ctx, match); err != nil {
		s.logger.Warn("Side channel teardown failed",
			zap.Int64("matchId", match.ID),
			zap.Error(err))
	}
}

func teamPlayerIDs(match *models.MatchDetails, teamID int64) []int64 {
	team := match.TeamByID(teamID)
	if team == nil {
		return nil
	}
	return lo.Map(team.Players, func(p models.Player, _ int) int64 { return p.ID })
}

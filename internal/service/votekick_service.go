package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"go.uber.org/zap"
)

// VoteTally 투표 반영 결과
type VoteTally struct {
	Tallied    bool                  `json:"tallied"`
	Passed     bool                  `json:"passed"`
	Status     models.VoteKickStatus `json:"status"`
	Approvals  int                   `json:"approvals"`
	Rejections int                   `json:"rejections"`
	Threshold  int                   `json:"threshold"`
}

// VoteKickService 같은 팀 투표로 팀원 강퇴 여부 결정. 실제 제거는 외부 처리
type VoteKickService struct {
	store           VoteKickStore
	matches         MatchStore
	players         *PlayerService
	notifier        Notifier
	metrics         Metrics
	majorityPercent int
	minVotes        int
	now             func() time.Time
	logger          *zap.Logger
}

func NewVoteKickService(
	store VoteKickStore,
	matches MatchStore,
	players *PlayerService,
	majorityPercent, minVotes int,
	notifier Notifier,
	metrics Metrics,
	logger *zap.Logger,
) *VoteKickService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &VoteKickService{
		store:           store,
		matches:         matches,
		players:         players,
		notifier:        notifier,
		metrics:         metrics,
		majorityPercent: majorityPercent,
		minVotes:        minVotes,
		now:             time.Now,
		logger:          logger,
	}
}

// Threshold max(minVotes, ceil(eligible × pct / 100)), eligible 이하
func (s *VoteKickService) Threshold(eligible int) int {
	t := int(math.Ceil(float64(eligible*s.majorityPercent) / 100.0))
	if t < s.minVotes {
		t = s.minVotes
	}
	if t > eligible {
		t = eligible
	}
	if t < 1 {
		t = 1
	}
	return t
}

// Initiate 투표 시작. 발의자의 표는 찬성으로 집계
func (s *VoteKickService) Initiate(ctx context.Context, initiatorExternalID, targetExternalID string) (*models.VoteKick, error) {
	initiator, err := s.players.GetByExternalID(ctx, initiatorExternalID)
	if err != nil {
		return nil, err
	}
	target, err := s.players.GetByExternalID(ctx, targetExternalID)
	if err != nil {
		return nil, err
	}
	if initiator.ID == target.ID {
		return nil, fmt.Errorf("%w: cannot vote to kick yourself", ErrInvalidInput)
	}

	match, err := s.matches.ActiveMatchForPlayer(ctx, initiator.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active match: %w", err)
	}
	if match == nil {
		return nil, fmt.Errorf("%w: initiator is not in an active match", ErrNotEligible)
	}

	team := match.TeamOf(initiator.ID)
	if team == nil || match.TeamOf(target.ID) != team {
		return nil, fmt.Errorf("%w: target is not on the initiator's team", ErrNotEligible)
	}

	eligible := len(team.Players) - 1
	now := s.now().UTC()

	vk := models.VoteKick{
		MatchID:       match.ID,
		TeamID:        team.ID,
		TargetID:      target.ID,
		InitiatorID:   initiator.ID,
		Status:        models.VoteKickPending,
		Threshold:     s.Threshold(eligible),
		EligibleCount: eligible,
		CreatedAt:     now,
	}
	initial := models.VoteKickVote{VoterID: initiator.ID, Approve: true, CreatedAt: now}

	// 팀 인원이 적으면 발의만으로 결정될 수 있음
	if status := DecideVote(&vk, initial); status != models.VoteKickPending {
		vk.Status = status
		vk.ResolvedAt = &now
	}

	created, err := s.store.Create(ctx, vk, initial)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Vote kick started",
		zap.Int64("voteKickId", created.ID),
		zap.Int64("matchId", created.MatchID),
		zap.Int64("targetId", created.TargetID),
		zap.Int("threshold", created.Threshold))

	s.notifier.Announce(ctx, EventVoteKickStarted, created)
	if created.Status != models.VoteKickPending {
		s.resolved(ctx, created)
	}
	return created, nil
}

// CastVote 투표 반영
func (s *VoteKickService) CastVote(ctx context.Context, voteKickID int64, voterExternalID string, approve bool) (*VoteTally, error) {
	voter, err := s.players.GetByExternalID(ctx, voterExternalID)
	if err != nil {
		return nil, err
	}

	vk, err := s.store.Get(ctx, voteKickID)
	if err != nil {
		return nil, fmt.Errorf("failed to get vote kick: %w", err)
	}
	if vk == nil {
		return nil, ErrVoteKickNotFound
	}
	if vk.Status != models.VoteKickPending {
		return nil, ErrVoteKickClosed
	}

	match, err := s.matches.Get(ctx, vk.MatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if match == nil || match.Status.IsTerminal() {
		return nil, ErrVoteKickClosed
	}
	team := match.TeamByID(vk.TeamID)
	if team == nil || voter.ID == vk.TargetID || match.TeamOf(voter.ID) != team {
		return nil, ErrNotEligible
	}

	vote := models.VoteKickVote{
		VoteKickID: voteKickID,
		VoterID:    voter.ID,
		Approve:    approve,
		CreatedAt:  s.now().UTC(),
	}

	updated, err := s.store.CastVote(ctx, voteKickID, vote, func(locked *models.VoteKick, v models.VoteKickVote) (models.VoteKickStatus, error) {
		if locked.Status != models.VoteKickPending {
			return "", ErrVoteKickClosed
		}
		if locked.HasVoted(v.VoterID) {
			return "", ErrAlreadyVoted
		}
		return DecideVote(locked, v), nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyVoted) || errors.Is(err, ErrVoteKickClosed) || errors.Is(err, ErrVoteKickNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to cast vote: %w", err)
	}

	approvals, rejections := updated.Tally()
	tally := &VoteTally{
		Tallied:    true,
		Passed:     updated.Status == models.VoteKickApproved,
		Status:     updated.Status,
		Approvals:  approvals,
		Rejections: rejections,
		Threshold:  updated.Threshold,
	}

	if updated.Status != models.VoteKickPending {
		s.resolved(ctx, updated)
	}
	return tally, nil
}

// Get 투표 조회
func (s *VoteKickService) Get(ctx context.Context, id int64) (*models.VoteKick, error) {
	vk, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get vote kick: %w", err)
	}
	if vk == nil {
		return nil, ErrVoteKickNotFound
	}
	return vk, nil
}

func (s *VoteKickService) resolved(ctx context.Context, vk *models.VoteKick) {
	s.logger.Info("Vote kick resolved",
		zap.Int64("voteKickId", vk.ID),
		zap.Int64("targetId", vk.TargetID),
		zap.String("status", string(vk.Status)))
	s.metrics.IncVoteKicks(vk.Status)
	s.notifier.Announce(ctx, EventVoteKickResolved, vk)
}

// DecideVote 새 표를 포함한 집계로 상태 결정
// 찬성이 threshold 이상이면 approved, 남은 표로 도달 불가하거나 전원 투표했으면 rejected
func DecideVote(vk *models.VoteKick, vote models.VoteKickVote) models.VoteKickStatus {
	approvals, rejections := vk.Tally()
	if vote.Approve {
		approvals++
	} else {
		rejections++
	}

	if approvals >= vk.Threshold {
		return models.VoteKickApproved
	}
	remaining := vk.EligibleCount - approvals - rejections
	if remaining <= 0 || approvals+remaining < vk.Threshold {
		return models.VoteKickRejected
	}
	return models.VoteKickPending
}

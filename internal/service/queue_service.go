package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// EnqueuePublisher 다른 인스턴스에 큐 변화를 알림 (Redis pub/sub)
type EnqueuePublisher interface {
	NotifyPlayerEnqueued(ctx context.Context, playerID int64) error
}

// QueueService 큐 참가/이탈/조회
type QueueService struct {
	queue      QueueStore
	matches    MatchStore
	players    *PlayerService
	processing *ProcessingSet
	notifier   Notifier
	publisher  EnqueuePublisher
	metrics    Metrics
	maxSize    int
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// QueueServiceOptions 선택 의존성
type QueueServiceOptions struct {
	MaxSize   int
	Timeout   time.Duration
	Notifier  Notifier
	Publisher EnqueuePublisher
	Metrics   Metrics
	Now       func() time.Time
}

func NewQueueService(
	queue QueueStore,
	matches MatchStore,
	players *PlayerService,
	processing *ProcessingSet,
	opts QueueServiceOptions,
	logger *zap.Logger,
) *QueueService {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &QueueService{
		queue:      queue,
		matches:    matches,
		players:    players,
		processing: processing,
		notifier:   opts.Notifier,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		maxSize:    opts.MaxSize,
		timeout:    opts.Timeout,
		now:        opts.Now,
		logger:     logger,
	}
}

// Join 큐 참가
func (s *QueueService) Join(ctx context.Context, externalID, displayName string) (*models.QueueEntry, error) {
	player, err := s.players.GetOrCreate(ctx, externalID, displayName)
	if err != nil {
		return nil, err
	}
	if !player.Active {
		return nil, ErrPlayerInactive
	}

	if err := s.ensureNotInMatch(ctx, player.ID); err != nil {
		return nil, err
	}

	entry := models.QueueEntry{
		PlayerID:     player.ID,
		Priority:     0,
		RatingAtJoin: player.Rating,
		JoinedAt:     s.now().UTC(),
	}

	if err := s.queue.Enqueue(ctx, entry, s.maxSize); err != nil {
		if errors.Is(err, ErrAlreadyQueued) || errors.Is(err, ErrQueueFull) || errors.Is(err, ErrAlreadyInMatch) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to enqueue player: %w", err)
	}

	// 예약과 경합했을 수 있으므로 한 번 더 확인
	if s.processing.Contains(player.ID) {
		if _, err := s.queue.Dequeue(ctx, player.ID); err != nil {
			s.logger.Error("Failed to undo enqueue of a player being matched",
				zap.Int64("playerId", player.ID), zap.Error(err))
		}
		return nil, ErrAlreadyInMatch
	}

	s.logger.Info("Player joined queue",
		zap.Int64("playerId", player.ID),
		zap.String("externalId", player.ExternalID),
		zap.Int("rating", player.Rating))

	s.afterChange(ctx)
	if s.publisher != nil {
		if err := s.publisher.NotifyPlayerEnqueued(ctx, player.ID); err != nil {
			s.logger.Warn("Failed to publish enqueue event", zap.Error(err))
		}
	}

	return &entry, nil
}

// Leave 큐 이탈
func (s *QueueService) Leave(ctx context.Context, externalID string) error {
	player, err := s.players.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrPlayerNotFound) {
			return ErrNotQueued
		}
		return err
	}

	removed, err := s.queue.Dequeue(ctx, player.ID)
	if err != nil {
		return fmt.Errorf("failed to dequeue player: %w", err)
	}
	if !removed {
		return ErrNotQueued
	}

	s.logger.Info("Player left queue", zap.Int64("playerId", player.ID))
	s.afterChange(ctx)
	return nil
}

// Snapshot 선택 순서대로 큐 조회
func (s *QueueService) Snapshot(ctx context.Context) ([]models.QueueView, error) {
	entries, err := s.queue.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	if len(entries) == 0 {
		return []models.QueueView{}, nil
	}

	ids := lo.Map(entries, func(e models.QueueEntry, _ int) int64 { return e.PlayerID })
	players, err := s.players.store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load queued players: %w", err)
	}
	byID := lo.KeyBy(players, func(p models.Player) int64 { return p.ID })

	views := make([]models.QueueView, 0, len(entries))
	for _, e := range entries {
		p := byID[e.PlayerID]
		views = append(views, models.QueueView{
			PlayerID:     e.PlayerID,
			ExternalID:   p.ExternalID,
			DisplayName:  p.DisplayName,
			JoinedAt:     e.JoinedAt,
			Priority:     e.Priority,
			RatingAtJoin: e.RatingAtJoin,
		})
	}
	return views, nil
}

// Size 큐 인원
func (s *QueueService) Size(ctx context.Context) (int, error) {
	return s.queue.Size(ctx)
}

// SweepExpired 오래 대기한 엔트리 제거 (주기 작업)
func (s *QueueService) SweepExpired(ctx context.Context) ([]models.QueueEntry, error) {
	if s.timeout <= 0 {
		return nil, nil
	}

	cutoff := s.now().Add(-s.timeout)
	expired, err := s.queue.Sweep(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep queue: %w", err)
	}
	if len(expired) == 0 {
		return nil, nil
	}

	ids := lo.Map(expired, func(e models.QueueEntry, _ int) int64 { return e.PlayerID })
	s.logger.Info("Expired queue entries removed",
		zap.Int("count", len(expired)),
		zap.Int64s("playerIds", ids))

	s.metrics.IncQueueTimeouts(len(expired))
	s.notifier.Announce(ctx, EventQueueTimeout, map[string]interface{}{"playerIds": ids})
	s.afterChange(ctx)
	return expired, nil
}

// RequeuePlayers 매치 종료/취소 후 재등록 (priority 0, 현재 시각)
func (s *QueueService) RequeuePlayers(ctx context.Context, playerIDs []int64) []int64 {
	var requeued []int64
	for _, id := range playerIDs {
		player, err := s.players.Get(ctx, id)
		if err != nil {
			s.logger.Error("Failed to load player for requeue", zap.Int64("playerId", id), zap.Error(err))
			continue
		}
		if !player.Active {
			continue
		}

		entry := models.QueueEntry{
			PlayerID:     id,
			RatingAtJoin: player.Rating,
			JoinedAt:     s.now().UTC(),
		}
		if err := s.queue.Enqueue(ctx, entry, 0); err != nil {
			if !errors.Is(err, ErrAlreadyQueued) {
				s.logger.Error("Failed to requeue player", zap.Int64("playerId", id), zap.Error(err))
			}
			continue
		}
		requeued = append(requeued, id)
	}

	if len(requeued) > 0 {
		s.notifier.Announce(ctx, EventPlayersRequeued, map[string]interface{}{"playerIds": requeued})
		s.afterChange(ctx)
	}
	return requeued
}

// ensureNotInMatch 처리 중 집합과 저장소(권위 있는 출처) 모두 확인
func (s *QueueService) ensureNotInMatch(ctx context.Context, playerID int64) error {
	if s.processing.Contains(playerID) {
		return ErrAlreadyInMatch
	}

	active, err := s.matches.ActiveMatchForPlayer(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to check active match: %w", err)
	}
	if active != nil {
		return ErrAlreadyInMatch
	}
	return nil
}

func (s *QueueService) afterChange(ctx context.Context) {
	size, err := s.queue.Size(ctx)
	if err != nil {
		s.logger.Warn("Failed to read queue size", zap.Error(err))
		return
	}
	s.metrics.SetQueueSize(size)
	s.notifier.Announce(ctx, EventQueueUpdated, map[string]interface{}{"size": size})
}

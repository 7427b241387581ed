package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"go.uber.org/zap"
)

// PlayerService 외부 ID 기반 플레이어 디렉터리
type PlayerService struct {
	store         PlayerStore
	defaultRating int
	logger        *zap.Logger
}

func NewPlayerService(store PlayerStore, defaultRating int, logger *zap.Logger) *PlayerService {
	return &PlayerService{
		store:         store,
		defaultRating: defaultRating,
		logger:        logger,
	}
}

// GetOrCreate 첫 사용 시 기본 레이팅으로 생성
func (s *PlayerService) GetOrCreate(ctx context.Context, externalID, displayName string) (*models.Player, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id is required", ErrInvalidInput)
	}
	if displayName == "" {
		displayName = externalID
	}

	player, err := s.store.GetOrCreate(ctx, externalID, displayName, s.defaultRating)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create player: %w", err)
	}
	return player, nil
}

// Get 내부 ID 로 조회
func (s *PlayerService) Get(ctx context.Context, id int64) (*models.Player, error) {
	player, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if player == nil {
		return nil, ErrPlayerNotFound
	}
	return player, nil
}

// GetByExternalID 외부 ID 로 조회
func (s *PlayerService) GetByExternalID(ctx context.Context, externalID string) (*models.Player, error) {
	player, err := s.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if player == nil {
		return nil, ErrPlayerNotFound
	}
	return player, nil
}

// Leaderboard 레이팅 순위
func (s *PlayerService) Leaderboard(ctx context.Context, limit int) ([]models.Player, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	players, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return players, nil
}

// OverrideRating 관리자 레이팅 수정
func (s *PlayerService) OverrideRating(ctx context.Context, id int64, rating int) (*models.Player, error) {
	if rating < models.MinRating {
		rating = models.MinRating
	}

	player, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateRating(ctx, id, rating); err != nil {
		return nil, fmt.Errorf("failed to override rating: %w", err)
	}

	s.logger.Info("Player rating overridden",
		zap.Int64("playerId", id),
		zap.Int("from", player.Rating),
		zap.Int("to", rating))

	player.Rating = rating
	return player, nil
}

// SetActive 관리자 활성/비활성 전환
func (s *PlayerService) SetActive(ctx context.Context, id int64, active bool) (*models.Player, error) {
	player, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("failed to update player: %w", err)
	}
	player.Active = active
	return player, nil
}

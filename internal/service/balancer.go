package service

import (
	"fmt"
	"sort"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"go.uber.org/zap"
)

// TeamBalancer 고정 인원을 두 팀으로 나눔
type TeamBalancer interface {
	Balance(players []models.Player, teamSize int) (teamA, teamB []models.Player, err error)
}

// GreedyBalancer 레이팅 내림차순으로 정렬 후 합이 작은 팀에 배정 (동점이면 A)
type GreedyBalancer struct {
	defaultRating int
	logger        *zap.Logger
}

func NewGreedyBalancer(defaultRating int, logger *zap.Logger) *GreedyBalancer {
	return &GreedyBalancer{
		defaultRating: defaultRating,
		logger:        logger,
	}
}

// Balance O(n log n). 실패 시 팀을 반환하지 않음
func (b *GreedyBalancer) Balance(players []models.Player, teamSize int) ([]models.Player, []models.Player, error) {
	if teamSize < 1 || len(players) != teamSize*2 {
		return nil, nil, fmt.Errorf("%w: need %d players for two teams of %d, got %d",
			ErrBalancing, teamSize*2, teamSize, len(players))
	}

	pool := make([]models.Player, len(players))
	copy(pool, players)

	for i := range pool {
		// 레이팅 기록이 없는 플레이어는 기본값으로 처리
		if pool[i].Rating <= 0 {
			b.logger.Warn("Player without rating entered the pool, using default rating",
				zap.Int64("playerId", pool[i].ID),
				zap.String("externalId", pool[i].ExternalID),
				zap.Int("defaultRating", b.defaultRating))
			pool[i].Rating = b.defaultRating
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Rating != pool[j].Rating {
			return pool[i].Rating > pool[j].Rating
		}
		return pool[i].ID < pool[j].ID
	})

	teamA := make([]models.Player, 0, teamSize)
	teamB := make([]models.Player, 0, teamSize)
	sumA, sumB := 0, 0

	for _, p := range pool {
		switch {
		case len(teamA) == teamSize:
			teamB = append(teamB, p)
			sumB += p.Rating
		case len(teamB) == teamSize:
			teamA = append(teamA, p)
			sumA += p.Rating
		case sumA <= sumB:
			teamA = append(teamA, p)
			sumA += p.Rating
		default:
			teamB = append(teamB, p)
			sumB += p.Rating
		}
	}

	if err := ValidateTeams(teamA, teamB, teamSize); err != nil {
		return nil, nil, err
	}

	return teamA, teamB, nil
}

// ValidateTeams 두 팀 인원과 중복 여부 확인
func ValidateTeams(teamA, teamB []models.Player, teamSize int) error {
	if len(teamA) != teamSize || len(teamB) != teamSize {
		return fmt.Errorf("%w: team sizes %d/%d, expected %d", ErrBalancing, len(teamA), len(teamB), teamSize)
	}

	seen := make(map[int64]bool, teamSize*2)
	for _, p := range append(append([]models.Player{}, teamA...), teamB...) {
		if seen[p.ID] {
			return fmt.Errorf("%w: player %d assigned twice", ErrBalancing, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// TeamRatingSum 팀 레이팅 합
func TeamRatingSum(team []models.Player) int {
	sum := 0
	for _, p := range team {
		sum += p.Rating
	}
	return sum
}

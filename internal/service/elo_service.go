package service

import (
	"math"

	"github.com/rl-arena/ranked-matchmaker/internal/config"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
)

// ELOService 팀 평균 기반 ELO 레이팅 계산 (상태 없음)
type ELOService struct {
	kFactor           float64
	streakThreshold   int
	streakBonusPerWin int
	streakBonusMax    int
}

// NewELOService ELO 서비스 생성
func NewELOService(cfg config.MatchmakingConfig) *ELOService {
	return &ELOService{
		kFactor:           cfg.KFactor,
		streakThreshold:   cfg.StreakThreshold,
		streakBonusPerWin: cfg.StreakBonusPerWin,
		streakBonusMax:    cfg.StreakBonusMax,
	}
}

// ExpectedScore avgA 팀이 avgB 팀을 이길 기대 승률
func (s *ELOService) ExpectedScore(avgA, avgB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (avgB-avgA)/400.0))
}

// TeamAverage 팀원 레이팅 산술 평균
func (s *ELOService) TeamAverage(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings))
}

// RatingDelta K × (actual − expected), 반올림
func (s *ELOService) RatingDelta(actual, expected float64) int {
	return int(math.Round(s.kFactor * (actual - expected)))
}

// StreakBonus 연승 보너스. threshold 부터 한 판마다 perWin 씩 증가, max 에서 고정
func (s *ELOService) StreakBonus(winStreak int) int {
	if s.streakThreshold <= 0 || winStreak < s.streakThreshold {
		return 0
	}
	bonus := s.streakBonusPerWin * (winStreak - s.streakThreshold + 1)
	if bonus > s.streakBonusMax {
		bonus = s.streakBonusMax
	}
	if bonus < 0 {
		return 0
	}
	return bonus
}

// ApplyResult 한 플레이어의 매치 결과 반영값 계산
// ownAvg/oppAvg 는 처리 시점의 팀 평균
func (s *ELOService) ApplyResult(p models.Player, won bool, ownAvg, oppAvg float64) models.PlayerUpdate {
	expected := s.ExpectedScore(ownAvg, oppAvg)
	actual := 0.0
	if won {
		actual = 1.0
	}

	u := models.PlayerUpdate{
		PlayerID:   p.ID,
		Wins:       p.Wins,
		Losses:     p.Losses,
		WinStreak:  p.WinStreak,
		LossStreak: p.LossStreak,
		Won:        won,
	}

	delta := s.RatingDelta(actual, expected)

	if won {
		u.Wins++
		u.WinStreak++
		u.LossStreak = 0
		u.StreakBonus = s.StreakBonus(u.WinStreak)
	} else {
		u.Losses++
		u.LossStreak++
		u.WinStreak = 0
	}

	newRating := p.Rating + delta + u.StreakBonus
	if newRating < models.MinRating {
		newRating = models.MinRating
	}

	u.Rating = newRating
	u.RatingDelta = newRating - p.Rating
	return u
}

// CalculateMatch 두 팀의 결과 반영값을 한 번에 계산
func (s *ELOService) CalculateMatch(winners, losers []models.Player) []models.PlayerUpdate {
	winAvg := s.TeamAverage(ratingsOf(winners))
	loseAvg := s.TeamAverage(ratingsOf(losers))

	updates := make([]models.PlayerUpdate, 0, len(winners)+len(losers))
	for _, p := range winners {
		updates = append(updates, s.ApplyResult(p, true, winAvg, loseAvg))
	}
	for _, p := range losers {
		updates = append(updates, s.ApplyResult(p, false, loseAvg, winAvg))
	}
	return updates
}

func ratingsOf(players []models.Player) []int {
	ratings := make([]int, len(players))
	for i, p := range players {
		ratings[i] = p.Rating
	}
	return ratings
}

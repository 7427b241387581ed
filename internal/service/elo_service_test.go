package service

import (
	"testing"

	"github.com/rl-arena/ranked-matchmaker/internal/config"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/stretchr/testify/assert"
)

func newTestELOService() *ELOService {
	return NewELOService(config.DefaultMatchmakingConfig())
}

func TestELOService_ExpectedScore(t *testing.T) {
	eloService := newTestELOService()

	tests := []struct {
		name     string
		avgA     float64
		avgB     float64
		expected float64
	}{
		{name: "Equal teams", avgA: 1000, avgB: 1000, expected: 0.5},
		{name: "400 points stronger", avgA: 1400, avgB: 1000, expected: 10.0 / 11.0},
		{name: "400 points weaker", avgA: 1000, avgB: 1400, expected: 1.0 / 11.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, eloService.ExpectedScore(tt.avgA, tt.avgB), 1e-9)
		})
	}

	// E_A + E_B = 1
	assert.InDelta(t, 1.0, eloService.ExpectedScore(1234, 987)+eloService.ExpectedScore(987, 1234), 1e-9)
}

func TestELOService_EqualTeamsMoveBy16(t *testing.T) {
	eloService := newTestELOService()

	winners := []models.Player{{ID: 1, Rating: 1000}, {ID: 2, Rating: 1000}}
	losers := []models.Player{{ID: 3, Rating: 1000}, {ID: 4, Rating: 1000}}

	updates := eloService.CalculateMatch(winners, losers)
	assert.Len(t, updates, 4)

	for _, u := range updates {
		if u.Won {
			assert.Equal(t, 1016, u.Rating, "winner %d", u.PlayerID)
			assert.Equal(t, 16, u.RatingDelta)
		} else {
			assert.Equal(t, 984, u.Rating, "loser %d", u.PlayerID)
			assert.Equal(t, -16, u.RatingDelta)
		}
	}
}

func TestELOService_RatingFloor(t *testing.T) {
	eloService := newTestELOService()

	weak := models.Player{ID: 1, Rating: 10}
	u := eloService.ApplyResult(weak, false, 10, 3000)
	assert.GreaterOrEqual(t, u.Rating, models.MinRating)

	// 기대 승률이 1에 가까운 쪽이 지면 최대 K 만큼 감소
	u = eloService.ApplyResult(models.Player{ID: 2, Rating: 20}, false, 3000, 10)
	assert.Equal(t, models.MinRating, u.Rating)
	assert.Equal(t, models.MinRating-20, u.RatingDelta)
}

func TestELOService_StreakReset(t *testing.T) {
	eloService := newTestELOService()

	p := models.Player{ID: 1, Rating: 1200, Wins: 7, WinStreak: 5}
	u := eloService.ApplyResult(p, false, 1200, 1200)

	assert.Equal(t, 0, u.WinStreak)
	assert.Equal(t, 1, u.LossStreak)
	assert.Equal(t, 7, u.Wins)
	assert.Equal(t, 1, u.Losses)
	assert.Equal(t, 0, u.StreakBonus)

	p = models.Player{ID: 2, Rating: 1200, LossStreak: 3}
	u = eloService.ApplyResult(p, true, 1200, 1200)
	assert.Equal(t, 1, u.WinStreak)
	assert.Equal(t, 0, u.LossStreak)
}

func TestELOService_StreakBonus(t *testing.T) {
	// threshold 3, +2 per win, max 10
	eloService := newTestELOService()

	tests := []struct {
		streak int
		bonus  int
	}{
		{streak: 0, bonus: 0},
		{streak: 2, bonus: 0},
		{streak: 3, bonus: 2},
		{streak: 4, bonus: 4},
		{streak: 7, bonus: 10},
		{streak: 20, bonus: 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bonus, eloService.StreakBonus(tt.streak), "streak %d", tt.streak)
	}

	// 2연승 상태에서 승리하면 3연승이 되어 보너스 적용
	u := eloService.ApplyResult(models.Player{ID: 1, Rating: 1000, WinStreak: 2}, true, 1000, 1000)
	assert.Equal(t, 3, u.WinStreak)
	assert.Equal(t, 2, u.StreakBonus)
	assert.Equal(t, 1018, u.Rating)
}

func TestELOService_UpsetMovesMore(t *testing.T) {
	eloService := newTestELOService()

	underdogs := []models.Player{{ID: 1, Rating: 900}, {ID: 2, Rating: 1000}}
	favourites := []models.Player{{ID: 3, Rating: 1300}, {ID: 4, Rating: 1200}}

	updates := eloService.CalculateMatch(underdogs, favourites)
	for _, u := range updates {
		if u.Won {
			assert.Greater(t, u.RatingDelta, 16)
		} else {
			assert.Less(t, u.RatingDelta, -16)
		}
	}
	t.Logf("upset updates: %+v", updates)
}

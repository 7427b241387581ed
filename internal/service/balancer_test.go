package service

import (
	"math/rand"
	"testing"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func playersWithRatings(ratings ...int) []models.Player {
	players := make([]models.Player, len(ratings))
	for i, r := range ratings {
		players[i] = models.Player{ID: int64(i + 1), Rating: r}
	}
	return players
}

func TestGreedyBalancer_Scenario(t *testing.T) {
	b := NewGreedyBalancer(1000, zap.NewNop())

	teamA, teamB, err := b.Balance(playersWithRatings(1200, 1000, 900, 1100), 2)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{1200, 900}, ratingsOf(teamA))
	assert.ElementsMatch(t, []int{1100, 1000}, ratingsOf(teamB))
	assert.Equal(t, 2100, TeamRatingSum(teamA))
	assert.Equal(t, 2100, TeamRatingSum(teamB))
}

func TestGreedyBalancer_Partition(t *testing.T) {
	b := NewGreedyBalancer(1000, zap.NewNop())
	rng := rand.New(rand.NewSource(42))

	for teamSize := 1; teamSize <= 6; teamSize++ {
		for round := 0; round < 20; round++ {
			ratings := make([]int, teamSize*2)
			for i := range ratings {
				ratings[i] = 500 + rng.Intn(2000)
			}
			input := playersWithRatings(ratings...)

			teamA, teamB, err := b.Balance(input, teamSize)
			require.NoError(t, err)
			require.Len(t, teamA, teamSize)
			require.Len(t, teamB, teamSize)

			all := lo.Map(append(append([]models.Player{}, teamA...), teamB...), func(p models.Player, _ int) int64 { return p.ID })
			assert.ElementsMatch(t, lo.Map(input, func(p models.Player, _ int) int64 { return p.ID }), all)
		}
	}
}

func TestGreedyBalancer_PermutationStable(t *testing.T) {
	b := NewGreedyBalancer(1000, zap.NewNop())
	input := playersWithRatings(1500, 1320, 1320, 1100, 990, 870)

	teamA, teamB, err := b.Balance(input, 3)
	require.NoError(t, err)

	shuffled := lo.Shuffle(append([]models.Player{}, input...))
	teamA2, teamB2, err := b.Balance(shuffled, 3)
	require.NoError(t, err)

	assert.Equal(t, teamA, teamA2)
	assert.Equal(t, teamB, teamB2)
}

func TestGreedyBalancer_SizeMismatch(t *testing.T) {
	b := NewGreedyBalancer(1000, zap.NewNop())

	tests := []struct {
		name     string
		players  []models.Player
		teamSize int
	}{
		{name: "too few", players: playersWithRatings(1000, 1000, 1000), teamSize: 2},
		{name: "too many", players: playersWithRatings(1000, 1000, 1000, 1000, 1000), teamSize: 2},
		{name: "zero team size", players: nil, teamSize: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			teamA, teamB, err := b.Balance(tt.players, tt.teamSize)
			assert.ErrorIs(t, err, ErrBalancing)
			assert.Nil(t, teamA)
			assert.Nil(t, teamB)
		})
	}
}

func TestGreedyBalancer_MissingRatingUsesDefault(t *testing.T) {
	b := NewGreedyBalancer(1000, zap.NewNop())

	teamA, teamB, err := b.Balance(playersWithRatings(0, 1000, 1000, 1000), 2)
	require.NoError(t, err)

	for _, p := range append(teamA, teamB...) {
		assert.Equal(t, 1000, p.Rating)
	}
}

func TestGreedyBalancer_SkewedRatingsStillEqualSize(t *testing.T) {
	b := NewGreedyBalancer(1000, zap.NewNop())

	teamA, teamB, err := b.Balance(playersWithRatings(3000, 100, 100, 100), 2)
	require.NoError(t, err)
	assert.Len(t, teamA, 2)
	assert.Len(t, teamB, 2)
}

func TestValidateTeams_Duplicate(t *testing.T) {
	p := models.Player{ID: 7, Rating: 1000}
	err := ValidateTeams([]models.Player{p}, []models.Player{p}, 1)
	assert.ErrorIs(t, err, ErrBalancing)
}

package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/rl-arena/ranked-matchmaker/internal/config"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeVsThree(t *testing.T) (*harness, *models.MatchDetails) {
	t.Helper()
	h := newHarness(t, func(c *config.MatchmakingConfig) {
		c.TeamSize = 3
		c.MinQueueSize = 6
	})
	return h, createMatch(t, h)
}

func ext(p models.Player) string {
	return p.ExternalID
}

func TestVoteKickService_Threshold(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		eligible int
		want     int
	}{
		{eligible: 1, want: 1},
		{eligible: 2, want: 2},
		{eligible: 4, want: 3},
		{eligible: 9, want: 6},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("eligible_%d", tt.eligible), func(t *testing.T) {
			assert.Equal(t, tt.want, h.votes.Threshold(tt.eligible))
		})
	}
}

func TestVoteKickService_Approved(t *testing.T) {
	h, match := threeVsThree(t)
	ctx := context.Background()
	team := match.Teams[0].Players

	vk, err := h.votes.Initiate(ctx, ext(team[0]), ext(team[1]))
	require.NoError(t, err)
	assert.Equal(t, models.VoteKickPending, vk.Status)
	assert.Equal(t, 2, vk.EligibleCount)
	assert.Equal(t, 2, vk.Threshold)

	// 같은 대상에 대한 중복 발의 불가
	_, err = h.votes.Initiate(ctx, ext(team[2]), ext(team[1]))
	assert.ErrorIs(t, err, service.ErrVoteKickPending)

	_, err = h.votes.CastVote(ctx, vk.ID, ext(team[0]), true)
	assert.ErrorIs(t, err, service.ErrAlreadyVoted)

	tally, err := h.votes.CastVote(ctx, vk.ID, ext(team[2]), true)
	require.NoError(t, err)
	assert.True(t, tally.Tallied)
	assert.True(t, tally.Passed)
	assert.Equal(t, models.VoteKickApproved, tally.Status)
	assert.Equal(t, 2, tally.Approvals)

	_, err = h.votes.CastVote(ctx, vk.ID, ext(team[2]), false)
	assert.ErrorIs(t, err, service.ErrVoteKickClosed)
	assert.Equal(t, 1, h.notifier.count(service.EventVoteKickResolved))
}

func TestVoteKickService_Rejected(t *testing.T) {
	h, match := threeVsThree(t)
	ctx := context.Background()
	team := match.Teams[1].Players

	vk, err := h.votes.Initiate(ctx, ext(team[0]), ext(team[1]))
	require.NoError(t, err)

	tally, err := h.votes.CastVote(ctx, vk.ID, ext(team[2]), false)
	require.NoError(t, err)
	assert.False(t, tally.Passed)
	assert.Equal(t, models.VoteKickRejected, tally.Status)
}

func TestVoteKickService_Eligibility(t *testing.T) {
	h, match := threeVsThree(t)
	ctx := context.Background()
	teamA := match.Teams[0].Players
	teamB := match.Teams[1].Players

	_, err := h.votes.Initiate(ctx, ext(teamA[0]), ext(teamB[0]))
	assert.ErrorIs(t, err, service.ErrNotEligible)

	_, err = h.votes.Initiate(ctx, ext(teamA[0]), ext(teamA[0]))
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	vk, err := h.votes.Initiate(ctx, ext(teamA[0]), ext(teamA[1]))
	require.NoError(t, err)

	_, err = h.votes.CastVote(ctx, vk.ID, ext(teamB[0]), true)
	assert.ErrorIs(t, err, service.ErrNotEligible)

	_, err = h.votes.CastVote(ctx, vk.ID, ext(teamA[1]), false)
	assert.ErrorIs(t, err, service.ErrNotEligible)

	_, err = h.votes.CastVote(ctx, 404, ext(teamA[2]), true)
	assert.ErrorIs(t, err, service.ErrVoteKickNotFound)
}

func TestVoteKickService_ClosedAfterMatchEnds(t *testing.T) {
	h, match := threeVsThree(t)
	ctx := context.Background()
	team := match.Teams[0].Players

	vk, err := h.votes.Initiate(ctx, ext(team[0]), ext(team[1]))
	require.NoError(t, err)

	_, err = h.results.CancelMatch(ctx, match.ID)
	require.NoError(t, err)

	_, err = h.votes.CastVote(ctx, vk.ID, ext(team[2]), true)
	assert.ErrorIs(t, err, service.ErrVoteKickClosed)
}

func TestDecideVote(t *testing.T) {
	vk := &models.VoteKick{Threshold: 3, EligibleCount: 4, Votes: []models.VoteKickVote{{VoterID: 1, Approve: true}}}

	assert.Equal(t, models.VoteKickPending, service.DecideVote(vk, models.VoteKickVote{VoterID: 2, Approve: true}))
	assert.Equal(t, models.VoteKickPending, service.DecideVote(vk, models.VoteKickVote{VoterID: 2, Approve: false}))

	vk.Votes = append(vk.Votes, models.VoteKickVote{VoterID: 2, Approve: false})
	// 찬성 1, 반대 2 → 남은 1표로 3 불가
	assert.Equal(t, models.VoteKickRejected, service.DecideVote(vk, models.VoteKickVote{VoterID: 3, Approve: false}))

	vk.Votes = append(vk.Votes, models.VoteKickVote{VoterID: 3, Approve: true})
	assert.Equal(t, models.VoteKickApproved, service.DecideVote(vk, models.VoteKickVote{VoterID: 4, Approve: true}))
}

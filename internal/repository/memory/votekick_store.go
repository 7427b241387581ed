package memory

import (
	"context"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

type VoteKickStore struct {
	st *state
}

var _ service.VoteKickStore = (*VoteKickStore)(nil)

func (r *VoteKickStore) Create(_ context.Context, vk models.VoteKick, initial models.VoteKickVote) (*models.VoteKick, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, existing := range r.st.voteKicks {
		if existing.Status == models.VoteKickPending &&
			existing.MatchID == vk.MatchID &&
			existing.TargetID == vk.TargetID {
			return nil, service.ErrVoteKickPending
		}
	}

	r.st.nextVoteKick++
	vk.ID = r.st.nextVoteKick
	initial.VoteKickID = vk.ID
	vk.Votes = []models.VoteKickVote{initial}

	stored := vk
	r.st.voteKicks[vk.ID] = &stored
	return copyVoteKick(&stored), nil
}

func (r *VoteKickStore) Get(_ context.Context, id int64) (*models.VoteKick, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	vk, ok := r.st.voteKicks[id]
	if !ok {
		return nil, nil
	}
	return copyVoteKick(vk), nil
}

func (r *VoteKickStore) CastVote(_ context.Context, id int64, vote models.VoteKickVote, decide service.VoteDecider) (*models.VoteKick, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	vk, ok := r.st.voteKicks[id]
	if !ok {
		return nil, service.ErrVoteKickNotFound
	}

	status, err := decide(copyVoteKick(vk), vote)
	if err != nil {
		return nil, err
	}

	vote.VoteKickID = id
	vk.Votes = append(vk.Votes, vote)
	vk.Status = status
	if status != models.VoteKickPending {
		resolved := vote.CreatedAt
		vk.ResolvedAt = &resolved
	}
	return copyVoteKick(vk), nil
}

func copyVoteKick(vk *models.VoteKick) *models.VoteKick {
	cp := *vk
	cp.Votes = append([]models.VoteKickVote(nil), vk.Votes...)
	if vk.ResolvedAt != nil {
		t := *vk.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

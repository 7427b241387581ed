package memory

import (
	"context"
	"sort"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

type PlayerStore struct {
	st *state
}

var _ service.PlayerStore = (*PlayerStore)(nil)

func (r *PlayerStore) GetByID(_ context.Context, id int64) (*models.Player, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	p, ok := r.st.players[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *PlayerStore) GetByExternalID(_ context.Context, externalID string) (*models.Player, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	id, ok := r.st.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	cp := *r.st.players[id]
	return &cp, nil
}

func (r *PlayerStore) GetOrCreate(_ context.Context, externalID, displayName string, defaultRating int) (*models.Player, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if id, ok := r.st.byExternal[externalID]; ok {
		cp := *r.st.players[id]
		return &cp, nil
	}

	r.st.nextPlayer++
	now := r.st.now().UTC()
	p := &models.Player{
		ID:          r.st.nextPlayer,
		ExternalID:  externalID,
		DisplayName: displayName,
		Rating:      defaultRating,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.st.players[p.ID] = p
	r.st.byExternal[externalID] = p.ID

	cp := *p
	return &cp, nil
}

// ListByIDs 존재하는 플레이어만 요청 순서대로 반환
func (r *PlayerStore) ListByIDs(_ context.Context, ids []int64) ([]models.Player, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	out := make([]models.Player, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.st.players[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *PlayerStore) Leaderboard(_ context.Context, limit int) ([]models.Player, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	out := make([]models.Player, 0, len(r.st.players))
	for _, p := range r.st.players {
		if p.Active {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PlayerStore) UpdateRating(_ context.Context, id int64, rating int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	p, ok := r.st.players[id]
	if !ok {
		return service.ErrPlayerNotFound
	}
	p.Rating = rating
	p.UpdatedAt = r.st.now().UTC()
	return nil
}

func (r *PlayerStore) SetActive(_ context.Context, id int64, active bool) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	p, ok := r.st.players[id]
	if !ok {
		return service.ErrPlayerNotFound
	}
	p.Active = active
	p.UpdatedAt = r.st.now().UTC()
	return nil
}

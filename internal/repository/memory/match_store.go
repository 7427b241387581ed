package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

type MatchStore struct {
	st *state
}

var _ service.MatchStore = (*MatchStore)(nil)

func (r *MatchStore) Create(_ context.Context, teams []models.NewTeam) (*models.MatchDetails, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if len(teams) != 2 {
		return nil, fmt.Errorf("%w: a match needs exactly two teams", service.ErrInvalidInput)
	}

	seen := make(map[int64]bool)
	for _, t := range teams {
		for _, id := range t.PlayerIDs {
			if seen[id] {
				return nil, fmt.Errorf("%w: player %d listed twice", service.ErrAlreadyInMatch, id)
			}
			seen[id] = true
			if matchID, ok := r.st.activeMatch[id]; ok {
				return nil, fmt.Errorf("%w: player %d in match %d", service.ErrAlreadyInMatch, id, matchID)
			}
		}
	}

	now := r.st.now().UTC()
	r.st.nextMatch++
	match := &models.Match{
		ID:        r.st.nextMatch,
		Status:    models.MatchStatusWaiting,
		CreatedAt: now,
	}
	r.st.matches[match.ID] = match

	for _, t := range teams {
		r.st.nextTeam++
		team := &models.Team{
			ID:        r.st.nextTeam,
			MatchID:   match.ID,
			Name:      t.Name,
			AvgRating: t.AvgRating,
			CreatedAt: now,
		}
		r.st.teams[team.ID] = team

		for _, id := range t.PlayerIDs {
			r.st.teamPlayers[match.ID] = append(r.st.teamPlayers[match.ID], models.TeamPlayer{
				TeamID:   team.ID,
				PlayerID: id,
				MatchID:  match.ID,
				Active:   true,
			})
			r.st.activeMatch[id] = match.ID
		}
	}

	return r.detailsLocked(match.ID), nil
}

func (r *MatchStore) Get(_ context.Context, id int64) (*models.MatchDetails, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.detailsLocked(id), nil
}

func (r *MatchStore) List(_ context.Context, statuses []models.MatchStatus, limit int) ([]models.MatchDetails, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	wanted := make(map[models.MatchStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var ids []int64
	for id, m := range r.st.matches {
		if len(wanted) == 0 || wanted[m.Status] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.st.matches[ids[i]], r.st.matches[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]models.MatchDetails, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.detailsLocked(id))
	}
	return out, nil
}

func (r *MatchStore) ActiveMatchForPlayer(_ context.Context, playerID int64) (*models.MatchDetails, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	matchID, ok := r.st.activeMatch[playerID]
	if !ok {
		return nil, nil
	}
	return r.detailsLocked(matchID), nil
}

func (r *MatchStore) Transition(_ context.Context, id int64, to models.MatchStatus) (*models.MatchDetails, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	match, ok := r.st.matches[id]
	if !ok {
		return nil, service.ErrMatchNotFound
	}
	if !match.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", service.ErrInvalidMatchState, match.Status, to)
	}

	match.Status = to
	if to == models.MatchStatusCompleted || to == models.MatchStatusCancelled {
		now := r.st.now().UTC()
		match.CompletedAt = &now
		r.releaseLocked(id)
	}
	return r.detailsLocked(id), nil
}

func (r *MatchStore) Complete(_ context.Context, id, winningTeamID int64, completedAt time.Time, compute service.CompleteFunc) (*models.MatchDetails, []models.PlayerUpdate, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	match, ok := r.st.matches[id]
	if !ok {
		return nil, nil, service.ErrMatchNotFound
	}

	updates, err := compute(r.detailsLocked(id))
	if err != nil {
		return nil, nil, err
	}
	if !match.Status.CanTransitionTo(models.MatchStatusCompleted) {
		return nil, nil, fmt.Errorf("%w: %s -> completed", service.ErrInvalidMatchState, match.Status)
	}

	for _, u := range updates {
		p, ok := r.st.players[u.PlayerID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: id %d", service.ErrPlayerNotFound, u.PlayerID)
		}
		p.Rating = u.Rating
		p.Wins = u.Wins
		p.Losses = u.Losses
		p.WinStreak = u.WinStreak
		p.LossStreak = u.LossStreak
		p.UpdatedAt = completedAt
	}

	winner := winningTeamID
	match.Status = models.MatchStatusCompleted
	match.WinningTeamID = &winner
	match.CompletedAt = &completedAt
	r.releaseLocked(id)

	return r.detailsLocked(id), updates, nil
}

func (r *MatchStore) ArchiveBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	n := 0
	for _, m := range r.st.matches {
		if !m.Status.CanTransitionTo(models.MatchStatusArchived) {
			continue
		}
		if m.CompletedAt != nil && m.CompletedAt.Before(cutoff) {
			m.Status = models.MatchStatusArchived
			n++
		}
	}
	return n, nil
}

// releaseLocked 팀원 active 해제
func (r *MatchStore) releaseLocked(matchID int64) {
	tps := r.st.teamPlayers[matchID]
	for i := range tps {
		tps[i].Active = false
		if r.st.activeMatch[tps[i].PlayerID] == matchID {
			delete(r.st.activeMatch, tps[i].PlayerID)
		}
	}
}

// detailsLocked 현재 플레이어 기록을 포함한 매치 사본
func (r *MatchStore) detailsLocked(matchID int64) *models.MatchDetails {
	match, ok := r.st.matches[matchID]
	if !ok {
		return nil
	}

	details := &models.MatchDetails{Match: *match}
	if match.WinningTeamID != nil {
		w := *match.WinningTeamID
		details.WinningTeamID = &w
	}
	if match.CompletedAt != nil {
		c := *match.CompletedAt
		details.CompletedAt = &c
	}

	var teamIDs []int64
	for id, t := range r.st.teams {
		if t.MatchID == matchID {
			teamIDs = append(teamIDs, id)
		}
	}
	sort.Slice(teamIDs, func(i, j int) bool { return teamIDs[i] < teamIDs[j] })

	for _, teamID := range teamIDs {
		td := models.TeamDetails{Team: *r.st.teams[teamID]}
		for _, tp := range r.st.teamPlayers[matchID] {
			if tp.TeamID != teamID {
				continue
			}
			if p, ok := r.st.players[tp.PlayerID]; ok {
				td.Players = append(td.Players, *p)
			} else {
				td.Players = append(td.Players, models.Player{ID: tp.PlayerID})
			}
		}
		details.Teams = append(details.Teams, td)
	}
	return details
}

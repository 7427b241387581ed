package memory

import (
	"context"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
)

type QueueStore struct {
	st *state
}

var _ service.QueueStore = (*QueueStore)(nil)

func (r *QueueStore) Enqueue(_ context.Context, entry models.QueueEntry, maxSize int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.queue[entry.PlayerID]; ok {
		return service.ErrAlreadyQueued
	}
	if _, ok := r.st.activeMatch[entry.PlayerID]; ok {
		return service.ErrAlreadyInMatch
	}
	if maxSize > 0 && len(r.st.queue) >= maxSize {
		return service.ErrQueueFull
	}

	r.st.nextEntry++
	entry.ID = r.st.nextEntry
	r.st.queue[entry.PlayerID] = entry
	return nil
}

func (r *QueueStore) Dequeue(_ context.Context, playerID int64) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.queue[playerID]; !ok {
		return false, nil
	}
	delete(r.st.queue, playerID)
	return true, nil
}

func (r *QueueStore) Contains(_ context.Context, playerID int64) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	_, ok := r.st.queue[playerID]
	return ok, nil
}

func (r *QueueStore) Size(_ context.Context) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return len(r.st.queue), nil
}

func (r *QueueStore) List(_ context.Context) ([]models.QueueEntry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.sortedQueueLocked(), nil
}

func (r *QueueStore) SelectForMatch(_ context.Context, n int, hook service.ReserveHook) ([]models.QueueEntry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if n < 1 || len(r.st.queue) < n {
		return nil, nil
	}

	selected := r.st.sortedQueueLocked()[:n]
	return r.reserveLocked(selected, hook)
}

func (r *QueueStore) SelectPlayers(_ context.Context, playerIDs []int64, hook service.ReserveHook) ([]models.QueueEntry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if len(playerIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[int64]bool, len(playerIDs))
	for _, id := range playerIDs {
		if _, ok := r.st.queue[id]; !ok {
			return nil, nil
		}
		wanted[id] = true
	}

	var selected []models.QueueEntry
	for _, e := range r.st.sortedQueueLocked() {
		if wanted[e.PlayerID] {
			selected = append(selected, e)
		}
	}
	return r.reserveLocked(selected, hook)
}

// reserveLocked hook 이 성공해야 제거
func (r *QueueStore) reserveLocked(selected []models.QueueEntry, hook service.ReserveHook) ([]models.QueueEntry, error) {
	out := append([]models.QueueEntry(nil), selected...)
	if hook != nil {
		if err := hook(out); err != nil {
			return nil, err
		}
	}
	for _, e := range out {
		delete(r.st.queue, e.PlayerID)
	}
	return out, nil
}

// Requeue 이미 대기 중이거나 진행 중 매치에 있는 플레이어는 건너뜀
func (r *QueueStore) Requeue(_ context.Context, entries []models.QueueEntry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, e := range entries {
		if _, ok := r.st.queue[e.PlayerID]; ok {
			continue
		}
		if _, ok := r.st.activeMatch[e.PlayerID]; ok {
			continue
		}
		e.Priority = 0
		if e.ID == 0 {
			r.st.nextEntry++
			e.ID = r.st.nextEntry
		}
		r.st.queue[e.PlayerID] = e
	}
	return nil
}

func (r *QueueStore) Sweep(_ context.Context, cutoff time.Time) ([]models.QueueEntry, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	var expired []models.QueueEntry
	for _, e := range r.st.sortedQueueLocked() {
		if e.JoinedAt.Before(cutoff) {
			expired = append(expired, e)
			delete(r.st.queue, e.PlayerID)
		}
	}
	return expired, nil
}

package distributed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMatches struct {
	busy map[int64]bool
}

func (f fakeMatches) ActiveMatchForPlayer(_ context.Context, playerID int64) (*models.MatchDetails, error) {
	if f.busy[playerID] {
		return &models.MatchDetails{}, nil
	}
	return nil, nil
}

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func entry(playerID int64, offset time.Duration) models.QueueEntry {
	return models.QueueEntry{PlayerID: playerID, RatingAtJoin: 1000, JoinedAt: base.Add(offset)}
}

func playerIDs(entries []models.QueueEntry) []int64 {
	return lo.Map(entries, func(e models.QueueEntry, _ int) int64 { return e.PlayerID })
}

func newQueue(t *testing.T, matches ActiveMatchChecker) *RedisQueueStore {
	_, client := setupRedisClient(t)
	return NewRedisQueueStore(client, "test:queue", matches)
}

func TestRedisQueueStore_EnqueueRules(t *testing.T) {
	q := newQueue(t, fakeMatches{busy: map[int64]bool{9: true}})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, entry(1, 0), 2))
	assert.ErrorIs(t, q.Enqueue(ctx, entry(1, time.Second), 2), service.ErrAlreadyQueued)
	assert.ErrorIs(t, q.Enqueue(ctx, entry(9, 0), 2), service.ErrAlreadyInMatch)

	require.NoError(t, q.Enqueue(ctx, entry(2, time.Second), 2))
	assert.ErrorIs(t, q.Enqueue(ctx, entry(3, 2*time.Second), 2), service.ErrQueueFull)

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	ok, err := q.Contains(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisQueueStore_Ordering(t *testing.T) {
	q := newQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, entry(1, 0), 0))
	require.NoError(t, q.Enqueue(ctx, entry(2, time.Second), 0))
	high := entry(3, 2*time.Second)
	high.Priority = 5
	require.NoError(t, q.Enqueue(ctx, high, 0))

	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, playerIDs(entries))
	assert.NotZero(t, entries[0].ID)
}

func TestRedisQueueStore_SelectForMatch(t *testing.T) {
	q := newQueue(t, nil)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, entry(i, time.Duration(i)*time.Second), 0))
	}

	none, err := q.SelectForMatch(ctx, 4, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	var hooked []int64
	selected, err := q.SelectForMatch(ctx, 2, func(entries []models.QueueEntry) error {
		hooked = playerIDs(entries)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, playerIDs(selected))
	assert.Equal(t, []int64{1, 2}, hooked)

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestRedisQueueStore_ReservationAtomicity(t *testing.T) {
	q := newQueue(t, nil)
	ctx := context.Background()

	for i := int64(1); i <= 8; i++ {
		require.NoError(t, q.Enqueue(ctx, entry(i, time.Duration(i)*time.Second), 0))
	}

	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			selected, err := q.SelectForMatch(ctx, 2, nil)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, e := range selected {
				seen[e.PlayerID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 8)
	for id, n := range seen {
		assert.Equal(t, 1, n, "player %d selected more than once", id)
	}
}

func TestRedisQueueStore_HookFailureRestores(t *testing.T) {
	q := newQueue(t, nil)
	ctx := context.Background()

	first := entry(1, 0)
	first.Priority = 3
	require.NoError(t, q.Enqueue(ctx, first, 0))
	require.NoError(t, q.Enqueue(ctx, entry(2, time.Second), 0))

	boom := errors.New("boom")
	_, err := q.SelectForMatch(ctx, 2, func([]models.QueueEntry) error { return boom })
	assert.ErrorIs(t, err, boom)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, playerIDs(entries))
	assert.Equal(t, 3, entries[0].Priority)
}

func TestRedisQueueStore_SelectPlayersAllOrNothing(t *testing.T) {
	q := newQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, entry(1, 0), 0))
	require.NoError(t, q.Enqueue(ctx, entry(2, time.Second), 0))

	none, err := q.SelectPlayers(ctx, []int64{1, 5}, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	selected, err := q.SelectPlayers(ctx, []int64{2, 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, playerIDs(selected))
}

func TestRedisQueueStore_Requeue(t *testing.T) {
	q := newQueue(t, fakeMatches{busy: map[int64]bool{3: true}})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, entry(2, time.Second), 0))

	returned := entry(1, 0)
	returned.Priority = 7
	require.NoError(t, q.Requeue(ctx, []models.QueueEntry{returned, entry(2, 0), entry(3, 0)}))

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, playerIDs(entries))
	assert.Equal(t, 0, entries[0].Priority)
	assert.True(t, entries[0].JoinedAt.Equal(base))
	assert.True(t, entries[1].JoinedAt.Equal(base.Add(time.Second)))
}

func TestRedisQueueStore_SweepAndDequeue(t *testing.T) {
	q := newQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, entry(1, 0), 0))
	require.NoError(t, q.Enqueue(ctx, entry(2, time.Minute), 0))
	require.NoError(t, q.Enqueue(ctx, entry(3, 2*time.Minute), 0))

	expired, err := q.Sweep(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, playerIDs(expired))

	removed, err := q.Dequeue(ctx, 2)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = q.Dequeue(ctx, 2)
	require.NoError(t, err)
	assert.False(t, removed)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, playerIDs(entries))
}

func TestRedisQueueStore_SameMillisecondJoins(t *testing.T) {
	tests := []struct {
		name      string
		nine, ten time.Duration
	}{
		{name: "sub-millisecond apart", nine: 100 * time.Microsecond, ten: 600 * time.Microsecond},
		{name: "identical instant", nine: 0, ten: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue(t, nil)
			ctx := context.Background()

			require.NoError(t, q.Enqueue(ctx, entry(10, tt.ten), 0))
			require.NoError(t, q.Enqueue(ctx, entry(9, tt.nine), 0))

			entries, err := q.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{9, 10}, playerIDs(entries))

			selected, err := q.SelectForMatch(ctx, 1, nil)
			require.NoError(t, err)
			assert.Equal(t, []int64{9}, playerIDs(selected))
		})
	}
}

func TestRedisQueueStore_SelectionMatchesListOrder(t *testing.T) {
	q := newQueue(t, nil)
	ctx := context.Background()

	offsets := map[int64]time.Duration{
		3:   2 * time.Second,
		12:  time.Microsecond,
		100: time.Microsecond,
		7:   0,
		8:   time.Nanosecond,
	}
	for id, off := range offsets {
		e := entry(id, off)
		if id == 3 {
			e.Priority = 1
		}
		require.NoError(t, q.Enqueue(ctx, e, 0))
	}

	listed, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7, 8, 12, 100}, playerIDs(listed))

	var popped []int64
	for range offsets {
		selected, err := q.SelectForMatch(ctx, 1, nil)
		require.NoError(t, err)
		popped = append(popped, playerIDs(selected)...)
	}
	assert.Equal(t, playerIDs(listed), popped)
}

func TestRedisQueueStore_SweepIsNanosecondExact(t *testing.T) {
	q := newQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, entry(1, 0), 0))
	require.NoError(t, q.Enqueue(ctx, entry(2, 400*time.Microsecond), 0))

	expired, err := q.Sweep(ctx, base.Add(200*time.Microsecond))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, playerIDs(expired))

	ok, err := q.Contains(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

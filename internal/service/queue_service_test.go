package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/repository/memory"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueueService_JoinTwice(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.queue.Join(ctx, "alice", "Alice")
	require.NoError(t, err)

	_, err = h.queue.Join(ctx, "alice", "Alice")
	assert.ErrorIs(t, err, service.ErrAlreadyQueued)
	assert.Equal(t, 1, h.queueSize(t))
	assert.Equal(t, "player is already in the queue", service.Describe(err).Message)
}

func TestQueueService_JoinValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.queue.Join(ctx, "   ", "")
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	p, err := h.players.GetOrCreate(ctx, "bob", "Bob")
	require.NoError(t, err)
	_, err = h.players.SetActive(ctx, p.ID, false)
	require.NoError(t, err)

	_, err = h.queue.Join(ctx, "bob", "Bob")
	assert.ErrorIs(t, err, service.ErrPlayerInactive)
}

func TestQueueService_JoinSnapshotsRating(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.joinMany(t, 1, 1337)

	views, err := h.queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "p1", views[0].ExternalID)
	assert.Equal(t, 1337, views[0].RatingAtJoin)
	assert.Equal(t, 0, views[0].Priority)
}

func TestQueueService_Leave(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.joinMany(t, 1)
	require.NoError(t, h.queue.Leave(ctx, "p1"))
	assert.Equal(t, 0, h.queueSize(t))

	assert.ErrorIs(t, h.queue.Leave(ctx, "p1"), service.ErrNotQueued)
	assert.ErrorIs(t, h.queue.Leave(ctx, "nobody"), service.ErrNotQueued)
}

func TestQueueService_RejectsPlayerBeingProcessed(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	p, err := h.players.GetOrCreate(ctx, "carol", "")
	require.NoError(t, err)
	h.processing.Mark(p.ID)

	_, err = h.queue.Join(ctx, "carol", "")
	assert.ErrorIs(t, err, service.ErrAlreadyInMatch)
	assert.Equal(t, 0, h.queueSize(t))
}

func TestQueueService_ColdStartStillRejectsInMatch(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// 이전 프로세스가 만든 진행 중 매치
	first := newHarness(t, nil, withStore(store))
	first.joinMany(t, 4)
	_, err := first.mm.TryCreateMatch(ctx, false)
	require.NoError(t, err)

	// 캐시가 비어 있는 새 인스턴스
	restarted := newHarness(t, nil, withStore(store))
	assert.Equal(t, 0, restarted.processing.Len())

	_, err = restarted.queue.Join(ctx, "p1", "")
	assert.ErrorIs(t, err, service.ErrAlreadyInMatch)
}

func TestQueueService_SweepExpired(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := fixedNow

	players := service.NewPlayerService(store.Players, 1000, zap.NewNop())
	queue := service.NewQueueService(store.Queue, store.Matches, players, service.NewProcessingSet(), service.QueueServiceOptions{
		Timeout: time.Hour,
		Now:     func() time.Time { return now },
	}, zap.NewNop())

	_, err := queue.Join(ctx, "old", "")
	require.NoError(t, err)

	now = now.Add(90 * time.Minute)
	_, err = queue.Join(ctx, "new", "")
	require.NoError(t, err)

	expired, err := queue.SweepExpired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	views, err := queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "new", views[0].ExternalID)
}

func TestQueueService_RequeuePlayersSkipsInactive(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	a, err := h.players.GetOrCreate(ctx, "a", "")
	require.NoError(t, err)
	b, err := h.players.GetOrCreate(ctx, "b", "")
	require.NoError(t, err)
	_, err = h.players.SetActive(ctx, b.ID, false)
	require.NoError(t, err)

	requeued := h.queue.RequeuePlayers(ctx, []int64{a.ID, b.ID})
	assert.Equal(t, []int64{a.ID}, requeued)
	assert.Equal(t, 1, h.notifier.count(service.EventPlayersRequeued))

	entries, err := h.store.Queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, a.ID, entries[0].PlayerID)
}

package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rl-arena/ranked-matchmaker/internal/config"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/repository/memory"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// failingMatchStore 매치 저장 실패를 흉내냄
type failingMatchStore struct {
	*memory.MatchStore
}

func (failingMatchStore) Create(context.Context, []models.NewTeam) (*models.MatchDetails, error) {
	return nil, errors.New("connection reset by peer")
}

func TestMatchmaking_Scenario(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.joinMany(t, 4, 1200, 1000, 900, 1100)

	match, err := h.mm.TryCreateMatch(ctx, false)
	require.NoError(t, err)
	require.Len(t, match.Teams, 2)

	assert.ElementsMatch(t, []int{1200, 900}, ratingsOfTeam(match.Teams[0]))
	assert.ElementsMatch(t, []int{1100, 1000}, ratingsOfTeam(match.Teams[1]))
	assert.InDelta(t, 1050.0, match.Teams[0].AvgRating, 1e-9)
	assert.InDelta(t, 1050.0, match.Teams[1].AvgRating, 1e-9)

	// 부가 채널이 없으면 바로 active
	assert.Equal(t, models.MatchStatusActive, match.Status)
	assert.Equal(t, 0, h.queueSize(t))
	assert.Equal(t, 0, h.processing.Len())
	assert.Equal(t, 1, h.notifier.count(service.EventMatchCreated))
}

func TestMatchmaking_InsufficientPlayers(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.joinMany(t, 3)

	_, err := h.mm.TryCreateMatch(ctx, false)
	assert.ErrorIs(t, err, service.ErrInsufficientPlayers)
	assert.Equal(t, 3, h.queueSize(t))
}

func TestMatchmaking_MinQueueSizeAboveMatchSize(t *testing.T) {
	h := newHarness(t, func(c *config.MatchmakingConfig) { c.MinQueueSize = 6 })
	ctx := context.Background()

	h.joinMany(t, 5)
	_, err := h.mm.TryCreateMatch(ctx, false)
	assert.ErrorIs(t, err, service.ErrInsufficientPlayers)

	// force 는 최소 인원 확인을 건너뜀
	match, err := h.mm.TryCreateMatch(ctx, true)
	require.NoError(t, err)
	assert.Len(t, match.PlayerIDs(), 4)
	assert.Equal(t, 1, h.queueSize(t))
}

func TestMatchmaking_RollbackOnBalancingFailure(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	players := h.joinMany(t, 3)

	// 우선순위가 있던 엔트리도 복구 후에는 0
	_, err := h.store.Queue.Dequeue(ctx, players[0].ID)
	require.NoError(t, err)
	require.NoError(t, h.store.Queue.Enqueue(ctx, models.QueueEntry{PlayerID: players[0].ID, Priority: 7, JoinedAt: fixedNow}, 0))

	_, err = h.mm.TryCreateMatch(ctx, true)
	assert.ErrorIs(t, err, service.ErrBalancing)

	entries, err := h.store.Queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, 0, e.Priority)
		assert.False(t, h.processing.Contains(e.PlayerID))
	}

	active, err := h.mm.ActiveMatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMatchmaking_RollbackOnPersistenceFailure(t *testing.T) {
	store := memory.New()
	h := newHarness(t, nil, withStore(store), withMatchStore(failingMatchStore{store.Matches}))
	ctx := context.Background()

	h.joinMany(t, 4)

	_, err := h.mm.TryCreateMatch(ctx, false)
	require.ErrorIs(t, err, service.ErrMatchCreationFailed)
	assert.Equal(t, "match creation failed, players requeued", service.Describe(err).Message)

	assert.Equal(t, 4, h.queueSize(t))
	assert.Equal(t, 0, h.processing.Len())
}

func TestMatchmaking_ConcurrentCreationNeverDoubleBooks(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.joinMany(t, 8)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*models.MatchDetails
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			match, err := h.mm.TryCreateMatch(ctx, false)
			if err != nil {
				assert.True(t,
					errors.Is(err, service.ErrMatchCreationInProgress) || errors.Is(err, service.ErrInsufficientPlayers),
					"unexpected error: %v", err)
				return
			}
			mu.Lock()
			created = append(created, match)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// 남은 인원으로 결정적으로 마무리
	for {
		match, err := h.mm.TryCreateMatch(ctx, false)
		if err != nil {
			require.ErrorIs(t, err, service.ErrInsufficientPlayers)
			break
		}
		created = append(created, match)
	}

	require.Len(t, created, 2)
	seen := make(map[int64]bool)
	for _, m := range created {
		for _, id := range m.PlayerIDs() {
			assert.False(t, seen[id], "player %d booked twice", id)
			seen[id] = true

			queued, err := h.store.Queue.Contains(ctx, id)
			require.NoError(t, err)
			assert.False(t, queued, "player %d both queued and in match", id)
		}
	}
	assert.Len(t, seen, 8)
}

func TestMatchmaking_SingleFlight(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.joinMany(t, 4)

	blocking := &blockingLocker{entered: make(chan struct{}), release: make(chan struct{})}
	mm := service.NewMatchmakingService(service.MatchmakingDeps{
		Queue:   h.store.Queue,
		Matches: h.matches,
		Players: h.players,
		Locker:  blocking,
	}, h.cfg, zapNop())

	done := make(chan error, 1)
	go func() {
		_, err := mm.TryCreateMatch(ctx, false)
		done <- err
	}()
	<-blocking.entered

	_, err := mm.TryCreateMatch(ctx, false)
	assert.ErrorIs(t, err, service.ErrMatchCreationInProgress)

	close(blocking.release)
	require.NoError(t, <-done)
}

func TestMatchmaking_LockHeldElsewhere(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.joinMany(t, 4)

	mm := service.NewMatchmakingService(service.MatchmakingDeps{
		Queue:   h.store.Queue,
		Matches: h.matches,
		Players: h.players,
		Locker:  busyLocker{},
	}, h.cfg, zapNop())

	_, err := mm.TryCreateMatch(ctx, false)
	assert.ErrorIs(t, err, service.ErrMatchCreationInProgress)
	assert.Equal(t, 4, h.queueSize(t))
}

func TestMatchmaking_SideChannelFailureKeepsWaiting(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.joinMany(t, 4)

	mm := service.NewMatchmakingService(service.MatchmakingDeps{
		Queue:       h.store.Queue,
		Matches:     h.matches,
		Players:     h.players,
		SideChannel: failingSideChannel{},
	}, h.cfg, zapNop())

	match, err := mm.TryCreateMatch(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusWaiting, match.Status)

	activated, err := mm.ActivateMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusActive, activated.Status)

	_, err = mm.ActivateMatch(ctx, match.ID)
	assert.ErrorIs(t, err, service.ErrInvalidMatchState)
}

func TestMatchmaking_RunOnceCreatesUpToLimit(t *testing.T) {
	h := newHarness(t, func(c *config.MatchmakingConfig) { c.MaxMatchesPerTick = 2 })
	ctx := context.Background()
	h.joinMany(t, 13)

	h.mm.RunOnce(ctx)

	active, err := h.mm.ActiveMatches(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Equal(t, 5, h.queueSize(t))
}

func TestMatchmaking_GroupRetention(t *testing.T) {
	h := newHarness(t, func(c *config.MatchmakingConfig) { c.RequeueAfterMatch = true })
	ctx := context.Background()
	h.joinMany(t, 4)

	first, err := h.mm.TryCreateMatch(ctx, false)
	require.NoError(t, err)
	losers := idsOfTeam(first.Teams[0])

	_, err = h.results.EndMatch(ctx, first.ID, first.Teams[1].ID)
	require.NoError(t, err)
	require.Len(t, h.groups.RetainedGroups(), 1)
	assert.Equal(t, 4, h.queueSize(t))

	// 진 그룹이 그대로 다시 묶임
	second, err := h.mm.TryCreateMatch(ctx, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, losers, idsOfTeam(second.Teams[0]))

	// 두 번째 패배에서 그룹 해체
	_, err = h.results.EndMatch(ctx, second.ID, second.Teams[1].ID)
	require.NoError(t, err)
	assert.Empty(t, h.groups.RetainedGroups())
}

func TestMatchmaking_BrokenGroupRequeuedAtBack(t *testing.T) {
	h := newHarness(t, func(c *config.MatchmakingConfig) {
		c.RequeueAfterMatch = true
		c.GroupLossCap = 1
	}, withClock(tickingClock(fixedNow)))
	ctx := context.Background()
	h.joinMany(t, 4)

	match, err := h.mm.TryCreateMatch(ctx, false)
	require.NoError(t, err)
	losers := idsOfTeam(match.Teams[0])
	winners := idsOfTeam(match.Teams[1])

	_, err = h.results.EndMatch(ctx, match.ID, match.Teams[1].ID)
	require.NoError(t, err)
	assert.Empty(t, h.groups.RetainedGroups())

	snapshot, err := h.queue.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 4)

	order := make([]int64, len(snapshot))
	for i, v := range snapshot {
		order[i] = v.PlayerID
	}
	assert.ElementsMatch(t, winners, order[:2])
	assert.ElementsMatch(t, losers, order[2:])
	assert.True(t, snapshot[1].JoinedAt.Before(snapshot[2].JoinedAt))
}

func TestMatchmaking_RetainedGroupWarnsOnMissingRating(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newHarness(t, func(c *config.MatchmakingConfig) { c.RequeueAfterMatch = true }, withLogger(zap.New(core)))
	ctx := context.Background()
	h.joinMany(t, 4)

	first, err := h.mm.TryCreateMatch(ctx, false)
	require.NoError(t, err)
	losers := idsOfTeam(first.Teams[0])

	_, err = h.results.EndMatch(ctx, first.ID, first.Teams[1].ID)
	require.NoError(t, err)
	require.Len(t, h.groups.RetainedGroups(), 1)

	require.NoError(t, h.store.Players.UpdateRating(ctx, losers[0], 0))

	second, err := h.mm.TryCreateMatch(ctx, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, losers, idsOfTeam(second.Teams[0]))

	warned := logs.FilterMessage("Player without rating entered the retained group, using default rating").All()
	require.Len(t, warned, 1)
	assert.Equal(t, losers[0], warned[0].ContextMap()["playerId"])
}

func TestMatchmaking_Queries(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.joinMany(t, 4)

	match, err := h.mm.TryCreateMatch(ctx, false)
	require.NoError(t, err)

	got, err := h.mm.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, match.ID, got.ID)

	_, err = h.mm.GetMatch(ctx, 999)
	assert.ErrorIs(t, err, service.ErrMatchNotFound)

	recent, err := h.mm.RecentMatches(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

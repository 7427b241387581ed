package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rl-arena/ranked-matchmaker/internal/config"
	"github.com/rl-arena/ranked-matchmaker/internal/models"
	"github.com/rl-arena/ranked-matchmaker/internal/repository/memory"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Announce(_ context.Context, event string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

type harness struct {
	cfg        config.MatchmakingConfig
	store      *memory.Store
	matches    service.MatchStore
	players    *service.PlayerService
	queue      *service.QueueService
	mm         *service.MatchmakingService
	results    *service.ResultService
	votes      *service.VoteKickService
	groups     *service.GroupTracker
	processing *service.ProcessingSet
	notifier   *recordingNotifier
}

type harnessOption func(*harnessOptions)

type harnessOptions struct {
	matches service.MatchStore
	store   *memory.Store
	now     func() time.Time
	logger  *zap.Logger
}

func withMatchStore(m service.MatchStore) harnessOption {
	return func(o *harnessOptions) { o.matches = m }
}

func withStore(s *memory.Store) harnessOption {
	return func(o *harnessOptions) { o.store = s }
}

func withClock(now func() time.Time) harnessOption {
	return func(o *harnessOptions) { o.now = now }
}

func withLogger(l *zap.Logger) harnessOption {
	return func(o *harnessOptions) { o.logger = l }
}

// tickingClock 호출할 때마다 1초씩 앞으로 가는 시계
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newHarness(t *testing.T, mutate func(*config.MatchmakingConfig), opts ...harnessOption) *harness {
	t.Helper()

	cfg := config.DefaultMatchmakingConfig()
	cfg.TeamSize = 2
	cfg.MinQueueSize = 4
	if mutate != nil {
		mutate(&cfg)
	}

	o := &harnessOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = memory.New()
	}
	if o.matches == nil {
		o.matches = o.store.Matches
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := &recordingNotifier{}
	processing := service.NewProcessingSet()
	groups := service.NewGroupTracker(cfg.GroupLossCap).WithMaxAge(cfg.QueueTimeout)

	players := service.NewPlayerService(o.store.Players, cfg.DefaultRating, logger)
	queue := service.NewQueueService(o.store.Queue, o.matches, players, processing, service.QueueServiceOptions{
		MaxSize:  cfg.MaxQueueSize,
		Timeout:  cfg.QueueTimeout,
		Notifier: notifier,
		Now:      o.now,
	}, logger)

	mm := service.NewMatchmakingService(service.MatchmakingDeps{
		Queue:      o.store.Queue,
		Matches:    o.matches,
		Players:    players,
		QueueSvc:   queue,
		Groups:     groups,
		Processing: processing,
		Notifier:   notifier,
	}, cfg, logger)

	results := service.NewResultService(service.ResultServiceDeps{
		Matches:           o.matches,
		ELO:               service.NewELOService(cfg),
		QueueSvc:          queue,
		Groups:            groups,
		Notifier:          notifier,
		RequeueAfterMatch: cfg.RequeueAfterMatch,
	}, logger)

	votes := service.NewVoteKickService(o.store.VoteKicks, o.matches, players,
		cfg.VoteKickMajorityPercent, cfg.VoteKickMinVotes, notifier, nil, logger)

	return &harness{
		cfg:        cfg,
		store:      o.store,
		matches:    o.matches,
		players:    players,
		queue:      queue,
		mm:         mm,
		results:    results,
		votes:      votes,
		groups:     groups,
		processing: processing,
		notifier:   notifier,
	}
}

// joinMany 외부 ID p1..pn 으로 큐 참가. ratings 가 주어지면 참가 전에 레이팅 설정
func (h *harness) joinMany(t *testing.T, n int, ratings ...int) []*models.Player {
	t.Helper()
	ctx := context.Background()

	out := make([]*models.Player, 0, n)
	for i := 0; i < n; i++ {
		ext := fmt.Sprintf("p%d", i+1)
		p, err := h.players.GetOrCreate(ctx, ext, "Player "+ext)
		require.NoError(t, err)
		if i < len(ratings) {
			p, err = h.players.OverrideRating(ctx, p.ID, ratings[i])
			require.NoError(t, err)
		}
		_, err = h.queue.Join(ctx, ext, "")
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func (h *harness) queueSize(t *testing.T) int {
	t.Helper()
	n, err := h.queue.Size(context.Background())
	require.NoError(t, err)
	return n
}

func (h *harness) player(t *testing.T, id int64) *models.Player {
	t.Helper()
	p, err := h.players.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func ratingsOfTeam(team models.TeamDetails) []int {
	out := make([]int, len(team.Players))
	for i, p := range team.Players {
		out[i] = p.Rating
	}
	return out
}

func idsOfTeam(team models.TeamDetails) []int64 {
	out := make([]int64, len(team.Players))
	for i, p := range team.Players {
		out[i] = p.ID
	}
	return out
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

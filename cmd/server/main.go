package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/ranked-matchmaker/internal/api"
	"github.com/rl-arena/ranked-matchmaker/internal/api/handlers"
	"github.com/rl-arena/ranked-matchmaker/internal/app"
	"github.com/rl-arena/ranked-matchmaker/internal/config"
	"github.com/rl-arena/ranked-matchmaker/internal/metrics"
	"github.com/rl-arena/ranked-matchmaker/internal/repository"
	"github.com/rl-arena/ranked-matchmaker/internal/repository/memory"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/rl-arena/ranked-matchmaker/internal/websocket"
	"github.com/rl-arena/ranked-matchmaker/pkg/database"
	"github.com/rl-arena/ranked-matchmaker/pkg/distributed"
	jwtutil "github.com/rl-arena/ranked-matchmaker/pkg/jwt"
	"github.com/rl-arena/ranked-matchmaker/pkg/logger"
	"github.com/rl-arena/ranked-matchmaker/pkg/ratelimit"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.LogLevel, cfg.Env)
	defer logger.Sync()

	logger.Info("Starting ranked matchmaker",
		"port", cfg.Port,
		"env", cfg.Env,
		"queueBackend", cfg.QueueBackend,
		"teamSize", cfg.Matchmaking.TeamSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]handlers.Pinger{}

	// 데이터베이스 연결 (memory 백엔드 제외)
	var db *database.DB
	if cfg.QueueBackend != "memory" {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		if _, err := db.Migrate(); err != nil {
			logger.Fatal("Failed to apply migrations", "error", err)
		}
		health["database"] = handlers.PingFunc(db.PingContext)
	}

	// Redis (선택)
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", "error", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		health["redis"] = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		logger.Info("Redis connection established")
	}

	stores := buildStores(cfg, db, rdb)

	// 지표
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.New(registry)

	// 알림: 웹소켓 허브 + (Redis 있으면) 다른 인스턴스로 전달
	hub := websocket.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	extras := app.Extras{Metrics: promMetrics}
	sinks := []service.Notifier{hub}

	var coordinator *distributed.MatchmakingCoordinator
	var limiter ratelimit.Limiter
	if rdb != nil {
		coordinator = distributed.NewMatchmakingCoordinator(rdb, "", logger.Named("coordinator"))
		extras.Publisher = coordinator
		extras.Locker = distributed.NewLocker(rdb, cfg.LockTTL, logger.Named("lock")).
			WithRetry(cfg.LockRetries, cfg.LockRetryInterval)
		sinks = append(sinks, coordinator)
		limiter = ratelimit.NewRedisLimiter(rdb, int(cfg.QueueRateLimit)*60, time.Minute)
	} else {
		local := ratelimit.NewLocalLimiter(cfg.QueueRateLimit, cfg.QueueRateLimit)
		go local.Run(ctx)
		limiter = local
	}
	extras.Notifier = service.NewFanoutNotifier(logger.Named("notifier"), sinks...)

	svcs := app.NewServices(cfg.Matchmaking, stores, extras, logger.L())

	if coordinator != nil {
		go func() {
			err := coordinator.Start(ctx, func(ctx context.Context, event distributed.MatchmakingEvent, fromSelf bool) error {
				switch event.Type {
				case distributed.EventPlayerEnqueued, distributed.EventMatchingRequested:
					svcs.Matchmaking.Trigger(ctx, event.Type)
				case distributed.EventAnnouncement:
					// 자기 알림은 이미 허브로 전달됨
					if !fromSelf {
						hub.Broadcast(event.Name, event.Payload)
					}
				}
				return nil
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("Matchmaking coordinator stopped", "error", err)
			}
		}()
	}

	svcs.Matchmaking.Start()

	router := api.SetupRouter(cfg, api.Deps{
		Players:     svcs.Players,
		Queue:       svcs.Queue,
		Matchmaking: svcs.Matchmaking,
		Results:     svcs.Results,
		VoteKicks:   svcs.VoteKicks,
		Hub:         hub,
		JWT:         jwtutil.NewJWTManager(cfg.AdminJWTSecret, 24*time.Hour),
		Limiter:     limiter,
		Registry:    registry,
		Health:      health,
		Logger:      logger.Named("http"),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	svcs.Matchmaking.Stop()
	if coordinator != nil {
		coordinator.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

// buildStores QUEUE_BACKEND 에 따라 저장소 선택
func buildStores(cfg *config.Config, db *database.DB, rdb *redis.Client) app.Stores {
	switch cfg.QueueBackend {
	case "memory":
		store := memory.New()
		logger.Warn("Using in-memory storage, state is lost on restart")
		return app.Stores{
			Players:   store.Players,
			Queue:     store.Queue,
			Matches:   store.Matches,
			VoteKicks: store.VoteKicks,
		}
	}

	matches := repository.NewMatchRepository(db)
	stores := app.Stores{
		Players:   repository.NewPlayerRepository(db),
		Queue:     repository.NewQueueRepository(db),
		Matches:   matches,
		VoteKicks: repository.NewVoteKickRepository(db),
	}

	if cfg.QueueBackend == "redis" {
		if rdb == nil {
			logger.Fatal("REDIS_URL is required for the redis queue backend")
		}
		stores.Queue = distributed.NewRedisQueueStore(rdb, "", matches)
		logger.Info("Using redis queue store", "prefix", "matchmaking:queue")
	}
	return stores
}

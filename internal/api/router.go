package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rl-arena/ranked-matchmaker/internal/api/handlers"
	"github.com/rl-arena/ranked-matchmaker/internal/api/middleware"
	"github.com/rl-arena/ranked-matchmaker/internal/config"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"github.com/rl-arena/ranked-matchmaker/internal/websocket"
	jwtutil "github.com/rl-arena/ranked-matchmaker/pkg/jwt"
	"github.com/rl-arena/ranked-matchmaker/pkg/ratelimit"
	"go.uber.org/zap"
)

// Deps 라우터가 사용하는 서비스 묶음
type Deps struct {
	Players     *service.PlayerService
	Queue       *service.QueueService
	Matchmaking *service.MatchmakingService
	Results     *service.ResultService
	VoteKicks   *service.VoteKickService
	Hub         *websocket.Hub
	JWT         *jwtutil.JWTManager
	Limiter     ratelimit.Limiter
	Registry    *prometheus.Registry
	Health      map[string]handlers.Pinger
	Logger      *zap.Logger
}

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	queueHandler := handlers.NewQueueHandler(deps.Queue)
	matchHandler := handlers.NewMatchHandler(deps.Matchmaking, deps.Results)
	voteKickHandler := handlers.NewVoteKickHandler(deps.VoteKicks)
	playerHandler := handlers.NewPlayerHandler(deps.Players)
	healthHandler := handlers.NewHealthHandler(deps.Health)

	router.GET("/health", healthHandler.Check)
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	admin := middleware.AdminAuth(deps.JWT)
	queueLimit := func(c *gin.Context) { c.Next() }
	if deps.Limiter != nil {
		queueLimit = middleware.RateLimit(deps.Limiter, middleware.IPKeyFunc, deps.Logger)
	}

	v1 := router.Group("/api/v1")
	{
		if deps.Hub != nil {
			wsHandler := handlers.NewWebSocketHandler(deps.Hub, cfg.CORSAllowedOrigins)
			v1.GET("/ws", wsHandler.HandleWebSocket)
		}

		queue := v1.Group("/queue")
		{
			queue.GET("", queueHandler.Snapshot)
			queue.POST("/join", queueLimit, queueHandler.Join)
			queue.POST("/leave", queueLimit, queueHandler.Leave)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("/active", matchHandler.Active)
			matches.GET("/recent", matchHandler.Recent)
			matches.GET("/:id", matchHandler.Get)
			matches.POST("", admin, matchHandler.Create)
			matches.POST("/:id/activate", admin, matchHandler.Activate)
			matches.POST("/:id/winner", admin, matchHandler.ReportWinner)
			matches.POST("/:id/cancel", admin, matchHandler.Cancel)
		}

		voteKicks := v1.Group("/votekicks")
		{
			voteKicks.POST("", voteKickHandler.Initiate)
			voteKicks.GET("/:id", voteKickHandler.Get)
			voteKicks.POST("/:id/votes", voteKickHandler.Vote)
		}

		v1.GET("/players/:externalId", playerHandler.Get)
		v1.GET("/leaderboard", playerHandler.Leaderboard)

		adminGroup := v1.Group("/admin", admin)
		{
			adminGroup.PUT("/players/:id/rating", playerHandler.OverrideRating)
			adminGroup.PUT("/players/:id/active", playerHandler.SetActive)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "route not found"})
	})

	return router
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis (비어 있으면 분산 락/이벤트 비활성)
	RedisURL string

	// 매치 생성 분산 락
	LockTTL           time.Duration
	LockRetries       int
	LockRetryInterval time.Duration

	// QueueBackend postgres | redis | memory
	QueueBackend string

	// Admin JWT
	AdminJWTSecret string

	// CORS
	CORSAllowedOrigins []string

	// QueueRateLimit 플레이어별 큐 명령 초당 허용 횟수
	QueueRateLimit int64

	Matchmaking MatchmakingConfig
}

// MatchmakingConfig 매칭/레이팅 설정
type MatchmakingConfig struct {
	TeamSize     int
	MinQueueSize int
	MaxQueueSize int // 0 = 무제한

	KFactor       float64
	DefaultRating int

	StreakThreshold   int
	StreakBonusPerWin int
	StreakBonusMax    int

	QueueTimeout      time.Duration
	Interval          time.Duration
	MaxMatchesPerTick int
	ArchiveAfter      time.Duration

	GroupLossCap      int
	RequeueAfterMatch bool

	VoteKickMajorityPercent int
	VoteKickMinVotes        int
}

// MatchSize 한 매치에 필요한 인원
func (c MatchmakingConfig) MatchSize() int {
	return c.TeamSize * 2
}

// DefaultMatchmakingConfig 기본값 (5v5)
func DefaultMatchmakingConfig() MatchmakingConfig {
	return MatchmakingConfig{
		TeamSize:                5,
		MinQueueSize:            10,
		MaxQueueSize:            0,
		KFactor:                 32,
		DefaultRating:           1000,
		StreakThreshold:         3,
		StreakBonusPerWin:       2,
		StreakBonusMax:          10,
		QueueTimeout:            time.Hour,
		Interval:                30 * time.Second,
		MaxMatchesPerTick:       5,
		ArchiveAfter:            7 * 24 * time.Hour,
		GroupLossCap:            2,
		RequeueAfterMatch:       false,
		VoteKickMajorityPercent: 60,
		VoteKickMinVotes:        2,
	}
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	def := DefaultMatchmakingConfig()
	teamSize := getEnvInt("TEAM_SIZE", def.TeamSize)

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		LockTTL:            parseDuration(getEnv("LOCK_TTL", "10s"), 10*time.Second),
		LockRetries:        getEnvInt("LOCK_RETRIES", 3),
		LockRetryInterval:  parseDuration(getEnv("LOCK_RETRY_INTERVAL", "100ms"), 100*time.Millisecond),
		QueueBackend:       getEnv("QUEUE_BACKEND", "postgres"),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", "change-me"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		QueueRateLimit:     int64(getEnvInt("QUEUE_RATE_LIMIT", 2)),
		Matchmaking: MatchmakingConfig{
			TeamSize:                teamSize,
			MinQueueSize:            getEnvInt("MIN_QUEUE_SIZE", teamSize*2),
			MaxQueueSize:            getEnvInt("MAX_QUEUE_SIZE", def.MaxQueueSize),
			KFactor:                 getEnvFloat("K_FACTOR", def.KFactor),
			DefaultRating:           getEnvInt("DEFAULT_RATING", def.DefaultRating),
			StreakThreshold:         getEnvInt("STREAK_THRESHOLD", def.StreakThreshold),
			StreakBonusPerWin:       getEnvInt("STREAK_BONUS_PER_WIN", def.StreakBonusPerWin),
			StreakBonusMax:          getEnvInt("STREAK_BONUS_MAX", def.StreakBonusMax),
			QueueTimeout:            parseDuration(getEnv("QUEUE_TIMEOUT", "1h"), def.QueueTimeout),
			Interval:                parseDuration(getEnv("MATCHMAKING_INTERVAL", "30s"), def.Interval),
			MaxMatchesPerTick:       getEnvInt("MAX_MATCHES_PER_TICK", def.MaxMatchesPerTick),
			ArchiveAfter:            parseDuration(getEnv("ARCHIVE_AFTER", "168h"), def.ArchiveAfter),
			GroupLossCap:            getEnvInt("GROUP_LOSS_CAP", def.GroupLossCap),
			RequeueAfterMatch:       getEnvBool("REQUEUE_AFTER_MATCH", def.RequeueAfterMatch),
			VoteKickMajorityPercent: getEnvInt("VOTE_KICK_MAJORITY_PERCENT", def.VoteKickMajorityPercent),
			VoteKickMinVotes:        getEnvInt("VOTE_KICK_MIN_VOTES", def.VoteKickMinVotes),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 설정 조합 검증
func (c *Config) Validate() error {
	switch c.QueueBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres queue backend")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis queue backend")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for match storage")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}

	return c.Matchmaking.Validate()
}

// Validate 매칭 설정 검증
func (c MatchmakingConfig) Validate() error {
	if c.TeamSize < 1 {
		return fmt.Errorf("TEAM_SIZE must be at least 1, got %d", c.TeamSize)
	}
	if c.MinQueueSize < c.MatchSize() {
		return fmt.Errorf("MIN_QUEUE_SIZE (%d) must be at least twice TEAM_SIZE (%d)", c.MinQueueSize, c.MatchSize())
	}
	if c.MaxQueueSize != 0 && c.MaxQueueSize < c.MinQueueSize {
		return fmt.Errorf("MAX_QUEUE_SIZE (%d) must be 0 or at least MIN_QUEUE_SIZE (%d)", c.MaxQueueSize, c.MinQueueSize)
	}
	if c.KFactor <= 0 {
		return fmt.Errorf("K_FACTOR must be positive")
	}
	if c.DefaultRating < 1 {
		return fmt.Errorf("DEFAULT_RATING must be at least 1")
	}
	if c.VoteKickMajorityPercent < 1 || c.VoteKickMajorityPercent > 100 {
		return fmt.Errorf("VOTE_KICK_MAJORITY_PERCENT must be between 1 and 100")
	}
	if c.GroupLossCap < 1 {
		return fmt.Errorf("GROUP_LOSS_CAP must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/ranked-matchmaker/internal/service"
	"go.uber.org/zap"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// 자신이 획득한 락만 TTL 연장
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLock Redis 기반 분산 락
type RedisLock struct {
	client redis.UniversalClient
	key    string
	value  string
	ttl    time.Duration
}

// RedisLockManager Redis 분산 락 관리자
type RedisLockManager struct {
	client redis.UniversalClient
}

func NewRedisLockManager(client redis.UniversalClient) *RedisLockManager {
	return &RedisLockManager{client: client}
}

// AcquireLock SET NX PX 로 원자적 획득
func (m *RedisLockManager) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (*RedisLock, error) {
	ok, err := m.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &RedisLock{
		client: m.client,
		key:    key,
		value:  value,
		ttl:    ttl,
	}, nil
}

// TryLockWithRetry 재시도를 통한 락 획득
func (m *RedisLockManager) TryLockWithRetry(
	ctx context.Context,
	key, value string,
	ttl time.Duration,
	maxRetries int,
	retryInterval time.Duration,
) (*RedisLock, error) {
	for i := 0; i < maxRetries; i++ {
		lock, err := m.AcquireLock(ctx, key, value, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}

	return nil, ErrLockNotAcquired
}

// Release 락 해제
func (l *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 락 TTL 연장
func (l *RedisLock) Extend(ctx context.Context, extension time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, extension.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	l.ttl = extension
	return nil
}

// IsHeld 락이 현재 유효한지 확인
func (l *RedisLock) IsHeld(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.value, nil
}

// Locker 인스턴스 간 매치 생성 상호 배제. 작업이 길어지면 TTL 을 주기적으로 연장
type Locker struct {
	manager       *RedisLockManager
	instanceID    string
	prefix        string
	ttl           time.Duration
	retries       int
	retryInterval time.Duration
	logger        *zap.Logger
}

var _ service.Locker = (*Locker)(nil)

func NewLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{
		manager:    NewRedisLockManager(client),
		instanceID: uuid.New().String(),
		prefix:     "matchmaking:lock:",
		ttl:        ttl,
		retries:    1,
		logger:     logger,
	}
}

// WithRetry 다른 인스턴스가 잡고 있을 때 interval 간격으로 최대 retries 번 시도
func (l *Locker) WithRetry(retries int, interval time.Duration) *Locker {
	if retries < 1 {
		retries = 1
	}
	l.retries = retries
	l.retryInterval = interval
	return l
}

// Acquire 다른 인스턴스가 잡고 있으면 ErrMatchCreationInProgress
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	value := l.instanceID + ":" + uuid.New().String()

	lock, err := l.manager.TryLockWithRetry(ctx, l.prefix+key, value, l.ttl, l.retries, l.retryInterval)
	if errors.Is(err, ErrLockNotAcquired) {
		l.logger.Debug("Lock already held by another instance", zap.String("key", key))
		return nil, service.ErrMatchCreationInProgress
	}
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go l.keepAlive(lock, done)

	release := func() {
		close(done)
		if err := lock.Release(context.Background()); err != nil {
			l.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, nil
}

func (l *Locker) keepAlive(lock *RedisLock, done <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx := context.Background()
			held, err := lock.IsHeld(ctx)
			if err != nil {
				l.logger.Warn("Failed to check lock ownership", zap.String("key", lock.key), zap.Error(err))
				continue
			}
			if !held {
				l.logger.Warn("Lock lost before work finished", zap.String("key", lock.key))
				return
			}
			if err := lock.Extend(ctx, l.ttl); err != nil {
				l.logger.Warn("Failed to extend lock", zap.String("key", lock.key), zap.Error(err))
				return
			}
		}
	}
}

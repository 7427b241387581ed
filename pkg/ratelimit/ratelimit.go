package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 키별 요청 허용 여부
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// tokenBucket 초당 rate 개씩 채워지는 버킷
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// LocalLimiter 프로세스 로컬 토큰 버킷 (단일 인스턴스용)
type LocalLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	capacity float64
	rate     float64
	idle     time.Duration
	now      func() time.Time
}

// NewLocalLimiter capacity 만큼 버스트, 초당 rate 개 회복
func NewLocalLimiter(capacity, rate int64) *LocalLimiter {
	return &LocalLimiter{
		buckets:  make(map[string]*tokenBucket),
		capacity: float64(capacity),
		rate:     float64(rate),
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: l.capacity, lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(l.capacity, b.tokens+elapsed*l.rate)
	b.lastRefill = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Run ctx 가 취소될 때까지 오래 쓰지 않은 버킷 정리
func (l *LocalLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *LocalLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	for key, b := range l.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Len 추적 중인 키 수
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

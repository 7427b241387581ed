package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/ranked-matchmaker/pkg/ratelimit"
	"go.uber.org/zap"
)

// IPKeyFunc 클라이언트 IP 기준
func IPKeyFunc(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// RateLimit 제한 초과 시 429. 저장소 오류는 통과시킴
func RateLimit(limiter ratelimit.Limiter, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = IPKeyFunc
	}

	return func(c *gin.Context) {
		key := keyFunc(c)

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("Rate limit check failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many requests, slow down",
			})
			return
		}

		c.Next()
	}
}

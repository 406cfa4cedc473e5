package middleware

import (
	"SocialSync/consts"
	"SocialSync/pkg/logger"
	"SocialSync/pkg/result"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	limiterCacheSize = 10000
	limiterIdleTTL   = 10 * time.Minute
)

// RateLimiter 按键（主体邮箱或 IP）的本地令牌桶。
// 桶存放在带过期的 LRU 中，长期不活跃的键自动淘汰。
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter perSecond<=0 表示不限流
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterIdleTTL),
	}
}

// Allow 消耗一个令牌
func (l *RateLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 || key == "" {
		return true
	}
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(key, b)
	}
	return b.Allow()
}

// RateLimitMiddleware 已认证请求按主体限流，否则按 IP
func RateLimitMiddleware(l *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetPrincipalEmail(c)
		if !ok {
			key = "ip:" + ClientIPFromGinContext(c)
		}
		if !l.Allow(key) {
			logger.Warn(NewContextWithGin(c), "请求被限流",
				logger.String("key", key),
				logger.String("path", c.Request.URL.Path),
			)
			result.Abort(c, http.StatusTooManyRequests, consts.CodeTooManyRequests)
			return
		}
		c.Next()
	}
}

package middleware

import (
	"SocialSync/consts"
	"SocialSync/pkg/logger"
	"SocialSync/pkg/result"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
)

var errServerStatus = errors.New("server error status")

// NewBreaker 连续失败 maxFailures 次后打开，openTimeout 后进入半开
func NewBreaker(name string, maxFailures uint32, openTimeout time.Duration) *gobreaker.CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // 半开状态下最多放行 3 个探测请求
		Interval:    15 * time.Second,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "熔断器状态变化",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
}

// CircuitBreakerMiddleware 以响应状态码统计失败（5xx 计失败），熔断打开时直接返回 503
func CircuitBreakerMiddleware(cb *gobreaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := cb.Execute(func() (interface{}, error) {
			c.Next()
			if c.Writer.Status() >= http.StatusInternalServerError {
				return nil, fmt.Errorf("%w: %d", errServerStatus, c.Writer.Status())
			}
			return nil, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result.Abort(c, http.StatusServiceUnavailable, consts.CodeServiceUnavailable)
		}
	}
}

package middleware

import (
	"SocialSync/consts"
	"SocialSync/pkg/ctxmeta"
	"SocialSync/pkg/logger"
	"SocialSync/pkg/result"
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// slowRequestThreshold 超过该耗时的请求记 Warn
const slowRequestThreshold = 2 * time.Second

// NewContextWithGin 把 gin.Context 上的 trace_id、主体、设备、IP 带到 context.Context，供日志与下游使用
func NewContextWithGin(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if traceID := ctxmeta.TraceIDFromGin(c); traceID != "" {
		ctx = ctxmeta.WithTraceID(ctx, traceID)
	}
	if email := c.GetString(ginPrincipalEmailKey); email != "" {
		ctx = ctxmeta.WithPrincipal(ctx, email)
	}
	if deviceID := c.GetString(ginDeviceIDKey); deviceID != "" {
		ctx = ctxmeta.WithDeviceID(ctx, deviceID)
	}
	if ip := c.GetString(ginClientIPKey); ip != "" {
		ctx = ctxmeta.WithClientIP(ctx, ip)
	}
	return ctx
}

// GinLogger 访问日志：请求开始记 Info，只对 5xx 与慢请求记 Warn
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		ctx := NewContextWithGin(c)

		logger.Info(ctx, "请求开始",
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.String("query", query),
			logger.String("ip", ClientIPFromGinContext(c)),
		)

		c.Next()

		cost := time.Since(start)
		status := c.Writer.Status()
		if status >= http.StatusInternalServerError || cost > slowRequestThreshold {
			// 认证中间件在 c.Next() 中写入了主体，这里重新取一次
			logger.Warn(NewContextWithGin(c), "慢请求或服务端错误",
				logger.Int("status", status),
				logger.String("method", c.Request.Method),
				logger.String("path", path),
				logger.String("query", query),
				logger.String("user-agent", c.Request.UserAgent()),
				logger.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()),
				logger.Duration("cost", cost),
			)
		}
	}
}

// GinRecovery 捕获 panic，记录日志后返回 500
func GinRecovery(stack bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				fields := []zap.Field{
					logger.String("path", c.Request.URL.Path),
					logger.Any("panic", err),
				}
				if stack {
					fields = append(fields, logger.String("stack", string(debug.Stack())))
				}
				logger.Error(NewContextWithGin(c), "请求处理 panic", fields...)
				result.Abort(c, http.StatusInternalServerError, consts.CodeInternalError)
			}
		}()
		c.Next()
	}
}

// TimeoutMiddleware 给请求 context 加超时；下游超时且尚未写响应时兜底返回
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			logger.Warn(NewContextWithGin(c), "请求超时",
				logger.String("path", c.Request.URL.Path),
				logger.Duration("timeout", timeout),
			)
			result.Abort(c, http.StatusGatewayTimeout, consts.CodeTimeoutError)
		}
	}
}

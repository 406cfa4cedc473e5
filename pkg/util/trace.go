package util

import (
	"SocialSync/pkg/ctxmeta"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderXRequestID = "X-Request-ID"

// TraceLogger 追踪中间件，生成或获取 trace_id 并存入 Gin 上下文
func TraceLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 优先沿用上游（Nginx/网关）传来的请求 ID
		traceId := c.GetHeader(HeaderXRequestID)

		// 2. 没有则自己生成
		if traceId == "" {
			traceId = uuid.New().String()
		}

		// 3. 放入 Gin 上下文与响应头
		c.Set(ctxmeta.GinTraceIDKey, traceId)
		c.Header(HeaderXRequestID, traceId)

		c.Next()
	}
}

// NewUUID 生成新的 UUID
func NewUUID() string {
	return uuid.New().String()
}

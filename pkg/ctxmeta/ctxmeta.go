// Package ctxmeta 在 context 中携带链路元数据（trace_id、主体、设备、IP）。
package ctxmeta

import (
	"context"

	"github.com/gin-gonic/gin"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	principalKey
	deviceIDKey
	clientIPKey
)

// GinTraceIDKey gin.Context 中存放 trace_id 的键（由 util.TraceLogger 写入）
const GinTraceIDKey = "trace_id"

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceID(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

// WithPrincipal 记录当前主体（email）
func WithPrincipal(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, principalKey, email)
}

func Principal(ctx context.Context) string {
	return stringValue(ctx, principalKey)
}

func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

func DeviceID(ctx context.Context) string {
	return stringValue(ctx, deviceIDKey)
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIP(ctx context.Context) string {
	return stringValue(ctx, clientIPKey)
}

// TraceIDFromGin 读取 TraceLogger 中间件写入的 trace_id
func TraceIDFromGin(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(GinTraceIDKey)
}

// Detach 复制元数据到一个不会随请求取消的新 context，供连接级/后台任务使用
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	if v := TraceID(ctx); v != "" {
		out = WithTraceID(out, v)
	}
	if v := Principal(ctx); v != "" {
		out = WithPrincipal(out, v)
	}
	if v := DeviceID(ctx); v != "" {
		out = WithDeviceID(out, v)
	}
	if v := ClientIP(ctx); v != "" {
		out = WithClientIP(out, v)
	}
	return out
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

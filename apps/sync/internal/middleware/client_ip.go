package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerXRealIP       = "X-Real-IP"
	headerXForwardedFor = "X-Forwarded-For"

	ginClientIPKey = "client_ip"
)

// GetClientIP 客户端真实 IP，优先级 X-Real-IP > X-Forwarded-For 首段 > RemoteAddr
func GetClientIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader(headerXRealIP)); ip != "" && net.ParseIP(ip) != nil {
		return ip
	}
	if xff := c.GetHeader(headerXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return c.ClientIP()
}

// ClientIPMiddleware 把客户端 IP 写入 gin.Context
func ClientIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ginClientIPKey, GetClientIP(c))
		c.Next()
	}
}

// ClientIPFromGinContext 读取 ClientIPMiddleware 写入的 IP，没有则现算
func ClientIPFromGinContext(c *gin.Context) string {
	if ip := c.GetString(ginClientIPKey); ip != "" {
		return ip
	}
	return GetClientIP(c)
}

package server

import (
	"SocialSync/apps/sync/internal/handler"
	"SocialSync/apps/sync/internal/middleware"
	"SocialSync/config"
	"SocialSync/consts"
	"SocialSync/pkg/result"
	"SocialSync/pkg/util"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Signer         *util.TokenSigner
	WSHandler      *handler.WSHandler
	ProfileHandler *handler.ProfileHandler
	Limiter        *middleware.RateLimiter
	Breaker        *gobreaker.CircuitBreaker
}

// NewRouter 初始化路由
func NewRouter(cfg config.ServerConfig, deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.GinRecovery(true))
	// 生成 trace_id
	r.Use(util.TraceLogger())
	r.Use(middleware.ClientIPMiddleware())
	r.Use(middleware.GinLogger())
	r.Use(middleware.PrometheusMiddleware())
	r.Use(middleware.CorsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		result.Abort(c, http.StatusNotFound, consts.CodeResourceNotFound)
	})

	// WebSocket 接入，鉴权在握手里完成
	r.GET("/ws", deps.WSHandler.ServeWS)

	api := r.Group("/api/v1")
	{
		public := api.Group("/public")
		{
			public.POST("/profile", deps.ProfileHandler.CreateProfile)
		}

		auth := api.Group("/auth")
		auth.Use(middleware.JWTAuthMiddleware(deps.Signer))
		auth.Use(middleware.RateLimitMiddleware(deps.Limiter))
		if deps.Breaker != nil {
			auth.Use(middleware.CircuitBreakerMiddleware(deps.Breaker))
		}
		if cfg.RequestTimeout > 0 {
			auth.Use(middleware.TimeoutMiddleware(cfg.RequestTimeout))
		}
		{
			auth.GET("/profile", deps.ProfileHandler.GetProfile)
			auth.PUT("/profile/nickname", deps.ProfileHandler.UpdateNickname)
			auth.POST("/profile/avatar", deps.ProfileHandler.UploadAvatar)
			auth.GET("/directory/search", deps.ProfileHandler.SearchDirectory)
		}
	}

	return r
}

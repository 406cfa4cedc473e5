package server

import (
	"SocialSync/config"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Server 对 http.Server 的轻量封装，集中管理启动和优雅关闭
type Server struct {
	httpServer *http.Server
}

// New 设置 gin 模式并包装成 HTTP Server
func New(cfg config.ServerConfig, deps RouterDeps) *Server {
	mode := cfg.GinMode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(cfg, deps),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Start 启动 HTTP 监听。
// 优雅关闭时返回 http.ErrServerClosed，调用方应视为正常退出。
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown 优雅停机，ctx 需带超时
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

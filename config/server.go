package config

import "time"

// ServerConfig HTTP/WebSocket 服务配置
type ServerConfig struct {
	Addr              string        `json:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
	ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	RequestTimeout    time.Duration `json:"requestTimeout" yaml:"requestTimeout"` // REST 单请求超时
	GinMode           string        `json:"ginMode" yaml:"ginMode"`

	JWTSecret string        `json:"jwtSecret" yaml:"jwtSecret"`
	JWTIssuer string        `json:"jwtIssuer" yaml:"jwtIssuer"`
	TokenTTL  time.Duration `json:"tokenTTL" yaml:"tokenTTL"`

	// 每个主体的上行操作限流（令牌桶）
	RateLimitPerSecond float64 `json:"rateLimitPerSecond" yaml:"rateLimitPerSecond"`
	RateLimitBurst     int     `json:"rateLimitBurst" yaml:"rateLimitBurst"`

	// 熔断器：连续失败次数达到阈值后打开
	BreakerMaxFailures uint32        `json:"breakerMaxFailures" yaml:"breakerMaxFailures"`
	BreakerOpenTimeout time.Duration `json:"breakerOpenTimeout" yaml:"breakerOpenTimeout"`
}

// DefaultServerConfig 返回本地开发的默认配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RequestTimeout:     10 * time.Second,
		GinMode:            "release",
		JWTSecret:          "social-sync-dev-secret",
		JWTIssuer:          "social-sync",
		TokenTTL:           24 * time.Hour,
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 10 * time.Second,
	}
}

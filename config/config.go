package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

// Config 服务整体配置
type Config struct {
	StoreDriver string       `json:"storeDriver" yaml:"storeDriver"` // mysql / memory
	Logger      LoggerConfig `json:"logger" yaml:"logger"`
	MySQL       MySQLConfig  `json:"mysql" yaml:"mysql"`
	Redis       RedisConfig  `json:"redis" yaml:"redis"`
	Kafka       KafkaConfig  `json:"kafka" yaml:"kafka"`
	Async       AsyncConfig  `json:"async" yaml:"async"`
	MinIO       MinIOConfig  `json:"minio" yaml:"minio"`
	Server      ServerConfig `json:"server" yaml:"server"`
	Sync        SyncConfig   `json:"sync" yaml:"sync"`
	NodeID      int64        `json:"nodeId" yaml:"nodeId"` // 雪花算法节点号
}

// DefaultConfig 返回全部默认配置
func DefaultConfig() Config {
	return Config{
		StoreDriver: StoreDriverMySQL,
		Logger:      DefaultLoggerConfig(),
		MySQL:       DefaultMySQLConfig(),
		Redis:       DefaultRedisConfig(),
		Kafka:       DefaultKafkaConfig(),
		Async:       DefaultAsyncConfig(),
		MinIO:       DefaultMinIOConfig(),
		Server:      DefaultServerConfig(),
		Sync:        DefaultSyncConfig(),
		NodeID:      1,
	}
}

// Load 在默认配置之上叠加 YAML 文件与环境变量。
// path 为空或文件不存在时只使用默认值 + 环境变量。
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return cfg, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 校验关键参数
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverMySQL, StoreDriverMemory:
	default:
		return fmt.Errorf("未知的 storeDriver: %q", c.StoreDriver)
	}
	if c.Sync.SuggestionQuota <= 0 || c.Sync.SuggestionPageSize <= 0 {
		return fmt.Errorf("suggestionQuota/suggestionPageSize 必须大于 0")
	}
	if c.Sync.MessageWindow <= 0 || c.Sync.HistoryPageSize <= 0 {
		return fmt.Errorf("messageWindow/historyPageSize 必须大于 0")
	}
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("jwtSecret 不能为空")
	}
	return nil
}

// applyEnv 环境变量覆盖（容器部署时使用）
func applyEnv(cfg *Config) {
	if v := os.Getenv("SYNC_STORE_DRIVER"); v != "" {
		cfg.StoreDriver = strings.ToLower(v)
	}
	if v := os.Getenv("SYNC_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SYNC_MYSQL_DSN"); v != "" {
		cfg.MySQL.DSN = v
	}
	if v := os.Getenv("SYNC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SYNC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SYNC_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("SYNC_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}

package config

import "time"

// MySQLConfig MySQL 连接配置
type MySQLConfig struct {
	DSN             string        `json:"dsn" yaml:"dsn"`                         // 主库 DSN
	ReplicaDSNs     []string      `json:"replicaDsns" yaml:"replicaDsns"`         // 只读副本 DSN（为空则读写都走主库）
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`       // 最大打开连接数
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`       // 最大空闲连接数
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"` // 连接最大生命周期
	SlowThreshold   time.Duration `json:"slowThreshold" yaml:"slowThreshold"`     // 慢查询阈值
	AutoMigrate     bool          `json:"autoMigrate" yaml:"autoMigrate"`         // 启动时自动建表
}

// DefaultMySQLConfig 返回本地开发的默认配置（与 docker-compose.yml 对齐）
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		DSN:             "root:root@tcp(mysql:3306)/social_sync?charset=utf8mb4&parseTime=True&loc=Local",
		MaxOpenConns:    50,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		SlowThreshold:   200 * time.Millisecond,
		AutoMigrate:     true,
	}
}

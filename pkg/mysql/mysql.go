package mysql

import (
	"context"
	"fmt"
	"time"

	"SocialSync/config"
	"SocialSync/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

var global *gorm.DB

// DB 返回全局 gorm 实例（未初始化时为 nil）
func DB() *gorm.DB { return global }

// ReplaceGlobal 设置全局 gorm 实例
func ReplaceGlobal(db *gorm.DB) { global = db }

// Build 根据配置创建 gorm 连接。
// 配置了 ReplicaDSNs 时注册 dbresolver：写走主库，读走副本。
func Build(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.New(zapWriter{}, gormlogger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true, // 唯一键冲突翻译为 gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("打开 MySQL 连接失败: %w", err)
	}

	if len(cfg.ReplicaDSNs) > 0 {
		replicas := make([]gorm.Dialector, 0, len(cfg.ReplicaDSNs))
		for _, dsn := range cfg.ReplicaDSNs {
			replicas = append(replicas, mysql.Open(dsn))
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxOpenConns(cfg.MaxOpenConns).
			SetMaxIdleConns(cfg.MaxIdleConns).
			SetConnMaxLifetime(cfg.ConnMaxLifetime)
		if err := db.Use(resolver); err != nil {
			return nil, fmt.Errorf("注册读写分离失败: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("MySQL ping 失败: %w", err)
	}
	return db, nil
}

// AutoMigrate 建表/补齐索引
func AutoMigrate(db *gorm.DB, models ...interface{}) error {
	start := time.Now()
	if err := db.AutoMigrate(models...); err != nil {
		return err
	}
	logger.Info(context.Background(), "MySQL 表结构同步完成", logger.Duration("cost", time.Since(start)))
	return nil
}

// zapWriter 将 gorm 日志转到 zap
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.L().Sugar().Warnf(format, args...)
}

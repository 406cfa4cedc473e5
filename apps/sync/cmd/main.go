package main

import (
	"SocialSync/apps/sync/internal/engine"
	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/handler"
	"SocialSync/apps/sync/internal/manager"
	"SocialSync/apps/sync/internal/memstore"
	"SocialSync/apps/sync/internal/middleware"
	"SocialSync/apps/sync/internal/presence"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/apps/sync/internal/server"
	"SocialSync/apps/sync/internal/svc"
	"SocialSync/apps/sync/mq"
	"SocialSync/config"
	"SocialSync/model"
	"SocialSync/pkg/async"
	"SocialSync/pkg/ctxmeta"
	"SocialSync/pkg/kafka"
	"SocialSync/pkg/logger"
	pkgminio "SocialSync/pkg/minio"
	pkgmysql "SocialSync/pkg/mysql"
	pkgredis "SocialSync/pkg/redis"
	"SocialSync/pkg/util"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", os.Getenv("SYNC_CONFIG"), "配置文件路径")
	flag.Parse()

	// 启动期日志没有请求上下文，放一个固定 trace_id 串联
	ctx := ctxmeta.WithTraceID(context.Background(), "0")

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 1) 日志必须最先完成
	l, err := logger.Build(cfg.Logger)
	if err != nil {
		panic(err)
	}
	logger.ReplaceGlobal(l)
	defer func() {
		_ = l.Sync()
	}()

	// 2) 协程池与序号生成器
	if err := async.Init(cfg.Async); err != nil {
		logger.Fatal(ctx, "协程池初始化失败", logger.ErrorField("error", err))
	}
	defer func() {
		_ = async.Release()
	}()
	if err := util.InitSnowflake(cfg.NodeID); err != nil {
		logger.Fatal(ctx, "雪花算法初始化失败", logger.ErrorField("error", err))
	}

	// 3) Redis：变更通知与在线状态依赖它。
	// 不可用时降级为单机内存通知，仅适合单实例部署。
	redisClient, err := pkgredis.Build(cfg.Redis)
	if err != nil {
		logger.Warn(ctx, "Redis 初始化失败，降级为单机模式",
			logger.ErrorField("error", err),
		)
		redisClient = nil
	} else {
		pkgredis.ReplaceGlobal(redisClient)
		logger.Info(ctx, "Redis 初始化成功", logger.String("addr", cfg.Redis.Addr))
	}

	var f feed.Feed
	if redisClient != nil {
		f = feed.NewRedisFeed(redisClient)
	} else {
		f = feed.NewMemoryFeed()
	}

	// 4) 存储
	store, err := buildStore(ctx, cfg, redisClient, f)
	if err != nil {
		logger.Fatal(ctx, "存储初始化失败", logger.ErrorField("error", err))
	}

	var presenceStore presence.Store
	if redisClient != nil {
		presenceStore = presence.NewRedisStore(redisClient, f, cfg.Sync.PresenceTTL)
	} else {
		presenceStore = presence.NewMemoryStore(f)
	}
	channel := presence.NewChannel(presenceStore, f, cfg.Sync.ResyncInterval)

	// 5) Kafka：领域事件与 Redis 重试队列，可选
	var events mq.EventPublisher = mq.NopEventPublisher{}
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		eventProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventTopic, cfg.Kafka.BatchTimeout)
		defer func() { _ = eventProducer.Close() }()
		events = mq.NewKafkaEventPublisher(eventProducer)

		if redisClient != nil {
			retryProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.RedisRetryTopic, cfg.Kafka.BatchTimeout)
			defer func() { _ = retryProducer.Close() }()
			mq.SetGlobalProducer(retryProducer)

			consumerCfg := cfg.Kafka.ConsumerConfig
			reader := kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.RedisRetryTopic, consumerCfg.GroupID,
				consumerCfg.MinBytes, consumerCfg.MaxBytes, consumerCfg.CommitInterval, kafka.NewZapLoggerAdapter(l))
			consumer := mq.NewRedisRetryConsumer(reader, redisClient)
			defer func() { _ = consumer.Close() }()
			go func() {
				if err := consumer.Run(consumerCtx); err != nil {
					logger.Error(ctx, "Redis 重试消费者退出", logger.ErrorField("error", err))
				}
			}()
		}
		logger.Info(ctx, "Kafka 初始化完成", logger.Strings("brokers", cfg.Kafka.Brokers))
	}

	// 6) 引擎与头像存储
	eng := engine.New(engine.Deps{
		Store:    store,
		Feed:     f,
		Presence: channel,
		Events:   events,
		Config:   cfg.Sync,
	})

	var uploader engine.AvatarUploader
	var maxAvatarBytes int64
	if cfg.MinIO.Enabled {
		minioClient, err := pkgminio.Build(cfg.MinIO)
		if err != nil {
			logger.Warn(ctx, "MinIO 初始化失败，头像上传不可用", logger.ErrorField("error", err))
		} else {
			uploader = minioClient
			maxAvatarBytes = cfg.MinIO.MaxFileSize
		}
	}

	// 7) 连接层与 HTTP 服务
	signer := util.NewTokenSigner(cfg.Server.JWTSecret, cfg.Server.JWTIssuer, cfg.Server.TokenTTL)
	syncSvc := svc.NewSyncService(signer)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)
	connManager := manager.NewConnectionManager()

	srv := server.New(cfg.Server, server.RouterDeps{
		Signer:         signer,
		WSHandler:      handler.NewWSHandler(connManager, syncSvc, eng, channel, limiter),
		ProfileHandler: handler.NewProfileHandler(eng.Profiles(uploader), syncSvc, maxAvatarBytes),
		Limiter:        limiter,
		Breaker:        middleware.NewBreaker("social-sync-api", cfg.Server.BreakerMaxFailures, cfg.Server.BreakerOpenTimeout),
	})

	go func() {
		logger.Info(ctx, "Sync 服务启动中",
			logger.String("addr", cfg.Server.Addr),
			logger.String("store", cfg.StoreDriver),
		)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Sync 服务启动失败", logger.ErrorField("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 先断开所有 WebSocket（触发离线写入），再关闭 HTTP 服务
	logger.Info(ctx, "Sync 服务开始优雅停机")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	connManager.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Sync 服务优雅停机失败", logger.ErrorField("error", err))
	}
	stopConsumer()
	if closer, ok := f.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	logger.Info(ctx, "Sync 服务已退出")
}

// buildStore 按 storeDriver 选择存储实现
func buildStore(ctx context.Context, cfg config.Config, redisClient *redis.Client, f feed.Feed) (repository.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Info(ctx, "使用内存存储")
		return memstore.New(f).Repositories(), nil
	}

	db, err := pkgmysql.Build(cfg.MySQL)
	if err != nil {
		return repository.Store{}, err
	}
	pkgmysql.ReplaceGlobal(db)
	if cfg.MySQL.AutoMigrate {
		if err := pkgmysql.AutoMigrate(db,
			&model.Profile{},
			&model.LinkOwner{},
			&model.LinkEntry{},
			&model.FriendRequest{},
			&model.ConversationIndex{},
			&model.Message{},
		); err != nil {
			return repository.Store{}, err
		}
	}
	logger.Info(ctx, "MySQL 初始化成功", logger.Int("replicas", len(cfg.MySQL.ReplicaDSNs)))
	return repository.NewMySQLStore(db, redisClient, f), nil
}

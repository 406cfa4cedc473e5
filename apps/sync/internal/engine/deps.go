package engine

import (
	"context"
	"time"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/presence"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/apps/sync/mq"
	"SocialSync/config"
	"SocialSync/pkg/async"
	"SocialSync/pkg/ctxmeta"
	"SocialSync/pkg/logger"
	"SocialSync/pkg/util"
)

// Deps 会话共享的依赖，由进程启动时组装一次
type Deps struct {
	Store    repository.Store
	Feed     feed.Feed
	Presence *presence.Channel
	Events   mq.EventPublisher
	Resolver *ProfileResolver
	Config   config.SyncConfig

	NextSeq func() int64
	NewID   func() string
	Now     func() time.Time
}

// withDefaults 补齐未设置的字段
func (d Deps) withDefaults() *Deps {
	def := config.DefaultSyncConfig()
	if d.Config.MessageWindow <= 0 {
		d.Config.MessageWindow = def.MessageWindow
	}
	if d.Config.HistoryPageSize <= 0 {
		d.Config.HistoryPageSize = def.HistoryPageSize
	}
	if d.Config.SuggestionQuota <= 0 {
		d.Config.SuggestionQuota = def.SuggestionQuota
	}
	if d.Config.SuggestionPageSize <= 0 {
		d.Config.SuggestionPageSize = def.SuggestionPageSize
	}
	if d.Config.SuggestionMaxPages <= 0 {
		d.Config.SuggestionMaxPages = def.SuggestionMaxPages
	}
	if d.Config.SearchLimit <= 0 {
		d.Config.SearchLimit = def.SearchLimit
	}
	if d.Config.BroadcastBuffer <= 0 {
		d.Config.BroadcastBuffer = def.BroadcastBuffer
	}
	if d.Events == nil {
		d.Events = mq.NopEventPublisher{}
	}
	if d.Resolver == nil {
		d.Resolver = NewProfileResolver(d.Store.Profiles, d.Config.ProfileCacheSize, d.Config.ProfileCacheTTL)
	}
	if d.NextSeq == nil {
		d.NextSeq = util.NextSeq
	}
	if d.NewID == nil {
		d.NewID = util.NewUUID
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &d
}

// emit 异步发布领域事件，失败只记日志
func (d *Deps) emit(ctx context.Context, ev mq.Event) {
	ev.TraceID = ctxmeta.TraceID(ctx)
	if ev.At.IsZero() {
		ev.At = d.Now()
	}
	async.RunSafe(ctx, func(runCtx context.Context) {
		if err := d.Events.PublishEvent(runCtx, ev); err != nil {
			logger.Warn(runCtx, "领域事件发布失败",
				logger.String("type", string(ev.Type)),
				logger.ErrorField("error", err),
			)
		}
	}, 5*time.Second)
}

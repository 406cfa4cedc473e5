package repository

import (
	"SocialSync/apps/sync/internal/feed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// NewMySQLStore 组装 MySQL + Redis 后端
func NewMySQLStore(db *gorm.DB, redisClient *redis.Client, f feed.Feed) Store {
	return Store{
		Profiles:      NewProfileRepository(db, redisClient, f),
		Links:         NewLinkRepository(db),
		Requests:      NewRequestRepository(db, f),
		Conversations: NewConversationRepository(db),
		Batcher:       NewBatchRepository(db, f),
	}
}

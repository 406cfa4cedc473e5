package repository

import (
	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/mq"
	rediskey "SocialSync/consts/redisKey"
	"SocialSync/model"
	"SocialSync/pkg/async"
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// profileRepositoryImpl 资料数据访问层实现，Redis cache-aside，redisClient 为 nil 时直连 DB
type profileRepositoryImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
	feed        feed.Feed
}

// NewProfileRepository 创建资料仓储实例
func NewProfileRepository(db *gorm.DB, redisClient *redis.Client, f feed.Feed) IProfileRepository {
	return &profileRepositoryImpl{db: db, redisClient: redisClient, feed: f}
}

// GetByEmail 按邮箱查询资料
func (r *profileRepositoryImpl) GetByEmail(ctx context.Context, email string) (*model.Profile, error) {
	cacheKey := rediskey.ProfileKey(email)

	// ==================== 1. 查缓存 ====================
	if r.redisClient != nil {
		cached, err := r.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			if cached == rediskey.EmptyPlaceholder {
				return nil, nil
			}
			var p model.Profile
			if err := json.Unmarshal([]byte(cached), &p); err == nil {
				return &p, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			LogRedisError(ctx, err)
		}
	}

	// ==================== 2. 回源 MySQL ====================
	var p model.Profile
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.cacheEmpty(ctx, email)
			return nil, nil
		}
		return nil, WrapDBError(err)
	}

	// ==================== 3. 回填缓存 ====================
	r.cacheProfiles(ctx, []*model.Profile{&p})
	return &p, nil
}

// GetByPrincipal 按身份主体查询，登录时调用一次，不走缓存
func (r *profileRepositoryImpl) GetByPrincipal(ctx context.Context, principalID string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.WithContext(ctx).Where("principal_id = ?", principalID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, WrapDBError(err)
	}
	return &p, nil
}

// BatchGetByEmails 批量查询资料
func (r *profileRepositoryImpl) BatchGetByEmails(ctx context.Context, emails []string) ([]*model.Profile, error) {
	if len(emails) == 0 {
		return []*model.Profile{}, nil
	}

	// email -> profile，nil 表示确认不存在
	found := make(map[string]*model.Profile, len(emails))
	miss := make([]string, 0, len(emails))

	// ==================== 1. 批量查 Redis ====================
	var cached []interface{}
	if r.redisClient != nil {
		keys := make([]string, 0, len(emails))
		for _, e := range emails {
			keys = append(keys, rediskey.ProfileKey(e))
		}
		var err error
		cached, err = r.redisClient.MGet(ctx, keys...).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			LogRedisError(ctx, err)
			cached = nil
		}
	}

	if cached != nil {
		for i, v := range cached {
			email := emails[i]
			raw, ok := v.(string)
			if !ok || raw == "" {
				miss = append(miss, email)
				continue
			}
			if raw == rediskey.EmptyPlaceholder {
				found[email] = nil
				continue
			}
			var p model.Profile
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				miss = append(miss, email)
				continue
			}
			found[email] = &p
		}
	} else {
		miss = append(miss, emails...)
	}

	// ==================== 2. 未命中部分回源 ====================
	if len(miss) > 0 {
		var rows []*model.Profile
		if err := r.db.WithContext(ctx).Where("email IN ?", miss).Find(&rows).Error; err != nil {
			return nil, WrapDBError(err)
		}
		hit := make(map[string]struct{}, len(rows))
		for _, p := range rows {
			found[p.Email] = p
			hit[p.Email] = struct{}{}
		}
		for _, email := range miss {
			if _, ok := hit[email]; !ok {
				found[email] = nil
				r.cacheEmpty(ctx, email)
			}
		}
		r.cacheProfiles(ctx, rows)
	}

	// ==================== 3. 按传入顺序组装 ====================
	result := make([]*model.Profile, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		if p := found[email]; p != nil {
			result = append(result, p)
		}
	}
	return result, nil
}

// ListAfter 按 (search_key, email) 游标翻页
func (r *profileRepositoryImpl) ListAfter(ctx context.Context, cursor ProfileCursor, limit int) ([]*model.Profile, error) {
	var rows []*model.Profile
	err := r.db.WithContext(ctx).
		Where("search_key > ? OR (search_key = ? AND email > ?)", cursor.SearchKey, cursor.SearchKey, cursor.Email).
		Order("search_key ASC, email ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}

// SearchByPrefix 按小写昵称前缀检索
func (r *profileRepositoryImpl) SearchByPrefix(ctx context.Context, prefix string, limit int) ([]*model.Profile, error) {
	var rows []*model.Profile
	err := r.db.WithContext(ctx).
		Where("search_key LIKE ?", escapeLike(model.BuildSearchKey(prefix))+"%").
		Order("search_key ASC, email ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return rows, nil
}

// Create 创建资料
func (r *profileRepositoryImpl) Create(ctx context.Context, profile *model.Profile) error {
	profile.SearchKey = model.BuildSearchKey(profile.DisplayName)
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return WrapDBError(err)
	}
	// 覆盖之前可能写入的空占位
	r.invalidate(ctx, profile.Email, "ProfileRepository.Create")
	notify(ctx, r.feed, feed.KindChanged, feed.ProfileTopic(profile.Email))
	return nil
}

// UpdateDisplayName 更新昵称
func (r *profileRepositoryImpl) UpdateDisplayName(ctx context.Context, email, displayName string) error {
	return r.update(ctx, email, map[string]interface{}{
		"display_name": displayName,
		"search_key":   model.BuildSearchKey(displayName),
	}, "ProfileRepository.UpdateDisplayName")
}

// UpdateAvatar 更新头像
func (r *profileRepositoryImpl) UpdateAvatar(ctx context.Context, email, avatarURL string) error {
	return r.update(ctx, email, map[string]interface{}{
		"avatar_url": avatarURL,
	}, "ProfileRepository.UpdateAvatar")
}

func (r *profileRepositoryImpl) update(ctx context.Context, email string, updates map[string]interface{}, source string) error {
	res := r.db.WithContext(ctx).Model(&model.Profile{}).Where("email = ?", email).Updates(updates)
	if res.Error != nil {
		return WrapDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	r.invalidate(ctx, email, source)
	notify(ctx, r.feed, feed.KindChanged, feed.ProfileTopic(email))
	return nil
}

// invalidate 删除缓存，失败进重试队列
func (r *profileRepositoryImpl) invalidate(ctx context.Context, email, source string) {
	if r.redisClient == nil {
		return
	}
	cacheKey := rediskey.ProfileKey(email)
	if err := r.redisClient.Del(ctx, cacheKey).Err(); err != nil {
		task := mq.BuildDelTask(cacheKey).WithSource(source)
		LogAndRetryRedisError(ctx, task, err)
	}
}

func (r *profileRepositoryImpl) cacheProfiles(ctx context.Context, profiles []*model.Profile) {
	if r.redisClient == nil || len(profiles) == 0 {
		return
	}
	async.RunSafe(ctx, func(runCtx context.Context) {
		pipe := r.redisClient.Pipeline()
		for _, p := range profiles {
			raw, err := json.Marshal(p)
			if err != nil {
				continue
			}
			pipe.Set(runCtx, rediskey.ProfileKey(p.Email), raw, getRandomExpireTime(rediskey.ProfileTTL))
		}
		if _, err := pipe.Exec(runCtx); err != nil {
			LogRedisError(runCtx, err)
		}
	}, 0)
}

func (r *profileRepositoryImpl) cacheEmpty(ctx context.Context, email string) {
	if r.redisClient == nil {
		return
	}
	async.RunSafe(ctx, func(runCtx context.Context) {
		err := r.redisClient.Set(runCtx, rediskey.ProfileKey(email), rediskey.EmptyPlaceholder,
			getRandomExpireTime(rediskey.ProfileEmptyTTL)).Err()
		if err != nil {
			LogRedisError(runCtx, err)
		}
	}, 0)
}

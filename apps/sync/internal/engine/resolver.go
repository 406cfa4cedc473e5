package engine

import (
	"context"
	"time"

	"SocialSync/apps/sync/internal/repository"
	"SocialSync/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ProfileResolver 把邮箱批量解析为资料，本地 LRU 挡在仓储前面
type ProfileResolver struct {
	repo  repository.IProfileRepository
	cache *expirable.LRU[string, model.Profile]
}

// NewProfileResolver 创建解析器，size<=0 时关闭本地缓存
func NewProfileResolver(repo repository.IProfileRepository, size int, ttl time.Duration) *ProfileResolver {
	r := &ProfileResolver{repo: repo}
	if size > 0 {
		r.cache = expirable.NewLRU[string, model.Profile](size, nil, ttl)
	}
	return r
}

// Resolve 按传入顺序返回存在的资料，重复邮箱只保留一次
func (r *ProfileResolver) Resolve(ctx context.Context, emails []string) ([]model.Profile, error) {
	emails = uniqueStrings(emails)
	if len(emails) == 0 {
		return []model.Profile{}, nil
	}

	found := make(map[string]model.Profile, len(emails))
	miss := make([]string, 0, len(emails))
	for _, e := range emails {
		if r.cache != nil {
			if p, ok := r.cache.Get(e); ok {
				found[e] = p
				continue
			}
		}
		miss = append(miss, e)
	}

	if len(miss) > 0 {
		rows, err := r.repo.BatchGetByEmails(ctx, miss)
		if err != nil {
			return nil, err
		}
		for _, p := range rows {
			found[p.Email] = *p
			if r.cache != nil {
				r.cache.Add(p.Email, *p)
			}
		}
	}

	out := make([]model.Profile, 0, len(emails))
	for _, e := range emails {
		if p, ok := found[e]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Invalidate 资料变更后剔除本地缓存
func (r *ProfileResolver) Invalidate(email string) {
	if r.cache != nil {
		r.cache.Remove(email)
	}
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"SocialSync/apps/sync/internal/repository"
	"SocialSync/model"
	"SocialSync/pkg/logger"
)

// 扫描失败后的重试间隔，逐次翻倍
const (
	scanRetryMin = 100 * time.Millisecond
	scanRetryMax = 30 * time.Second
)

// SuggestionGenerator "可能认识的人"：排除自己、好友与双向待处理申请后的目录扫描。
// 首次三份排除集合都确定后扫描一次；之后关系变化只在已有结果上就地剔除。
type SuggestionGenerator struct {
	deps *Deps
	self Principal
	out  *gate[[]model.Profile]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	friends  map[string]struct{}
	received map[string]struct{}
	sent     map[string]struct{}
	held     []model.Profile
	scanned  bool
	scanning bool
}

func newSuggestionGenerator(parent context.Context, deps *Deps, self Principal, out *gate[[]model.Profile]) *SuggestionGenerator {
	ctx, cancel := context.WithCancel(parent)
	return &SuggestionGenerator{deps: deps, self: self, out: out, ctx: ctx, cancel: cancel}
}

// SetFriends 好友集合已确定
func (g *SuggestionGenerator) SetFriends(emails []string) { g.update(&g.friends, emails) }

// SetReceived 收到的申请集合已确定
func (g *SuggestionGenerator) SetReceived(emails []string) { g.update(&g.received, emails) }

// SetSent 发出的申请集合已确定
func (g *SuggestionGenerator) SetSent(emails []string) { g.update(&g.sent, emails) }

func (g *SuggestionGenerator) update(target *map[string]struct{}, emails []string) {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		set[e] = struct{}{}
	}

	g.mu.Lock()
	if g.ctx.Err() != nil {
		g.mu.Unlock()
		return
	}
	*target = set
	ready := g.friends != nil && g.received != nil && g.sent != nil
	switch {
	case g.scanned:
		pruned, changed := g.pruneLocked()
		g.mu.Unlock()
		if changed {
			g.out.publish(pruned)
		}
	case ready && !g.scanning:
		g.scanning = true
		g.wg.Add(1)
		g.mu.Unlock()
		go g.runScan()
	default:
		g.mu.Unlock()
	}
}

// excludedLocked 调用方持有 g.mu
func (g *SuggestionGenerator) excludedLocked(email string) bool {
	if email == g.self.Email {
		return true
	}
	for _, set := range []map[string]struct{}{g.friends, g.received, g.sent} {
		if _, ok := set[email]; ok {
			return true
		}
	}
	return false
}

// pruneLocked 就地剔除已被排除的条目，返回新快照
func (g *SuggestionGenerator) pruneLocked() ([]model.Profile, bool) {
	kept := make([]model.Profile, 0, len(g.held))
	for _, p := range g.held {
		if !g.excludedLocked(p.Email) {
			kept = append(kept, p)
		}
	}
	changed := len(kept) != len(g.held)
	g.held = kept
	return append([]model.Profile(nil), kept...), changed
}

// runScan 扫描直到成功或本代被取消，失败按退避间隔重试
func (g *SuggestionGenerator) runScan() {
	defer g.wg.Done()

	delay := scanRetryMin
	for {
		profiles, err := g.scan(g.ctx)
		if err == nil {
			g.mu.Lock()
			g.held = profiles
			g.scanning = false
			g.scanned = true
			// 扫描期间排除集合可能已变化
			snapshot, _ := g.pruneLocked()
			g.mu.Unlock()
			g.out.publish(snapshot)
			return
		}
		if g.ctx.Err() != nil {
			g.mu.Lock()
			g.scanning = false
			g.mu.Unlock()
			return
		}
		logger.Warn(g.ctx, "推荐扫描失败，稍后重试",
			logger.ErrorField("error", err),
			logger.Duration("retry_in", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-g.ctx.Done():
			timer.Stop()
			g.mu.Lock()
			g.scanning = false
			g.mu.Unlock()
			return
		case <-timer.C:
		}
		delay = min(delay*2, scanRetryMax)
	}
}

// scan 按 (search_key, email) 游标循环翻页，直到凑满配额、遇到短页或达到页数上限
func (g *SuggestionGenerator) scan(ctx context.Context) ([]model.Profile, error) {
	quota := g.deps.Config.SuggestionQuota
	pageSize := g.deps.Config.SuggestionPageSize
	maxPages := g.deps.Config.SuggestionMaxPages

	acc := make([]model.Profile, 0, quota)
	cursor := repository.ProfileCursor{}
	pages := 0
	for pages < maxPages && len(acc) < quota {
		rows, err := g.deps.Store.Profiles.ListAfter(ctx, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		pages++

		g.mu.Lock()
		for _, p := range rows {
			if len(acc) >= quota {
				break
			}
			if !g.excludedLocked(p.Email) {
				acc = append(acc, *p)
			}
		}
		g.mu.Unlock()

		if len(rows) < pageSize {
			break
		}
		last := rows[len(rows)-1]
		cursor = repository.ProfileCursor{SearchKey: last.SearchKey, Email: last.Email}
	}
	suggestionPages.Observe(float64(pages))
	return acc, nil
}

// Current 当前持有的推荐
func (g *SuggestionGenerator) Current() ([]model.Profile, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Profile(nil), g.held...), g.scanned
}

// SearchDirectory 按昵称前缀检索目录，不含自己
func (g *SuggestionGenerator) SearchDirectory(ctx context.Context, text string) ([]model.Profile, error) {
	return searchDirectory(ctx, g.deps.Store.Profiles, g.self.Email, text, g.deps.Config.SearchLimit)
}

// searchDirectory 按搜索键前缀查目录，排除自己
func searchDirectory(ctx context.Context, repo repository.IProfileRepository, self, text string, limit int) ([]model.Profile, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidArgument("search text is empty")
	}
	rows, err := repo.SearchByPrefix(ctx, text, limit+1)
	if err != nil {
		return nil, err
	}
	out := make([]model.Profile, 0, len(rows))
	for _, p := range rows {
		if p.Email == self {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, *p)
	}
	return out, nil
}

// Stop 取消进行中的扫描并等待退出
func (g *SuggestionGenerator) Stop() {
	g.mu.Lock()
	g.cancel()
	g.mu.Unlock()
	g.wg.Wait()
	g.mu.Lock()
	g.held = nil
	g.mu.Unlock()
}

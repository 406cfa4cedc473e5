package engine

import (
	"context"
	"sync"

	"SocialSync/apps/sync/internal/presence"
	"SocialSync/pkg/logger"
)

// PresenceTracker 维护当前主体在本连接上的在线状态。
// 断连写入每条连接每个主体只登记一次。
type PresenceTracker struct {
	conn *presence.Conn

	mu       sync.Mutex
	email    string
	armedFor string
}

// NewPresenceTracker 绑定一条连接
func NewPresenceTracker(conn *presence.Conn) *PresenceTracker {
	return &PresenceTracker{conn: conn}
}

// Activate 登录：写在线并登记断连写入。写入失败只记日志，不阻塞登录。
func (t *PresenceTracker) Activate(ctx context.Context, p *Principal) {
	t.mu.Lock()
	t.email = p.Email
	t.mu.Unlock()

	if err := t.SetPresence(ctx, true); err != nil {
		logger.Warn(ctx, "写入在线状态失败", logger.String("email", p.Email), logger.ErrorField("error", err))
	}
	t.arm(p.Email)
}

// arm 登记断连写入，已登记则跳过
func (t *PresenceTracker) arm(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armedFor == email {
		return
	}
	if t.armedFor != "" {
		t.conn.OnDisconnect(t.armedFor).Cancel()
	}
	t.conn.OnDisconnect(email).SetValue(false)
	t.armedFor = email
}

// Deactivate 登出：写离线并撤销断连写入
func (t *PresenceTracker) Deactivate(ctx context.Context) {
	t.mu.Lock()
	email := t.email
	if t.armedFor != "" {
		t.conn.OnDisconnect(t.armedFor).Cancel()
		t.armedFor = ""
	}
	t.mu.Unlock()
	if email == "" {
		return
	}

	if err := t.conn.SetValue(ctx, email, false); err != nil {
		logger.Warn(ctx, "写入离线状态失败", logger.String("email", email), logger.ErrorField("error", err))
	}
	t.mu.Lock()
	t.email = ""
	t.mu.Unlock()
}

// SetPresence 写当前主体的在线状态
func (t *PresenceTracker) SetPresence(ctx context.Context, online bool) error {
	t.mu.Lock()
	email := t.email
	t.mu.Unlock()
	if email == "" {
		return ErrNoPrincipal
	}
	return t.conn.SetValue(ctx, email, online)
}

// Armed 当前已登记断连写入的主体
func (t *PresenceTracker) Armed() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armedFor
}

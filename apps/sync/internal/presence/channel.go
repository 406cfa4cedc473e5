package presence

import (
	"context"
	"sync"
	"time"

	"SocialSync/apps/sync/internal/feed"
	"SocialSync/apps/sync/internal/repository"
	"SocialSync/apps/sync/internal/watch"
	"SocialSync/apps/sync/mq"
	rediskey "SocialSync/consts/redisKey"
	"SocialSync/model"
)

// Channel 在线状态通道：写入、读取、订阅以及按连接登记断连写入
type Channel struct {
	store  Store
	feed   feed.Feed
	resync time.Duration
}

// NewChannel 创建通道，resync 为订阅兜底重查周期
func NewChannel(store Store, f feed.Feed, resync time.Duration) *Channel {
	return &Channel{store: store, feed: f, resync: resync}
}

// SetValue 直接写入一条记录
func (c *Channel) SetValue(ctx context.Context, rec model.PresenceRecord) error {
	return c.store.Set(ctx, rec)
}

// Get 读取记录，不存在时视为离线
func (c *Channel) Get(ctx context.Context, email string) (model.PresenceRecord, error) {
	rec, _, err := c.store.Get(ctx, email)
	return rec, err
}

// Heartbeat 续期
func (c *Channel) Heartbeat(ctx context.Context, email, deviceID string) error {
	return c.store.Touch(ctx, email, deviceID)
}

// Watch 订阅某用户的在线状态，不存在的记录以 Online=false 回调
func (c *Channel) Watch(ctx context.Context, email string, onUpdate func(model.PresenceRecord)) (*watch.Handle, error) {
	return watch.Value(ctx, c.feed, watch.ValueOptions[model.PresenceRecord]{
		Name:   "presence:" + email,
		Topics: []string{feed.PresenceTopic(email)},
		Load: func(ctx context.Context) (model.PresenceRecord, bool, error) {
			return c.store.Get(ctx, email)
		},
		Equal: func(a, b model.PresenceRecord) bool {
			return a.Online == b.Online && a.DeviceId == b.DeviceId
		},
		Resync: c.resync,
		OnUpdate: func(u watch.ValueUpdate[model.PresenceRecord]) {
			rec := u.Value
			rec.Email = email
			if !u.Exists {
				rec.Online = false
			}
			onUpdate(rec)
		},
	})
}

// Connect 为一条客户端连接创建 Conn
func (c *Channel) Connect(deviceID string) *Conn {
	return &Conn{ch: c, deviceID: deviceID, hooks: make(map[string]*DisconnectHook)}
}

// ==================== 连接级断连写入 ====================

// Conn 一条客户端连接。Drop 时触发全部已登记的断连写入，只触发一次。
type Conn struct {
	ch       *Channel
	deviceID string

	mu      sync.Mutex
	hooks   map[string]*DisconnectHook // email -> hook
	dropped bool
}

// DeviceID 连接所属设备
func (c *Conn) DeviceID() string { return c.deviceID }

// SetValue 以本连接的设备身份写入在线状态
func (c *Conn) SetValue(ctx context.Context, email string, online bool) error {
	return c.ch.store.Set(ctx, model.PresenceRecord{Email: email, Online: online, DeviceId: c.deviceID})
}

// OnDisconnect 取得某路径上的断连写入，同一路径重复调用返回同一个 hook
func (c *Conn) OnDisconnect(email string) *DisconnectHook {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.hooks[email]; ok {
		return h
	}
	h := &DisconnectHook{conn: c, email: email}
	c.hooks[email] = h
	return h
}

// Armed 某路径上是否已登记断连写入
func (c *Conn) Armed(email string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hooks[email]
	return ok && h.armed
}

// Dropped 连接是否已断开
func (c *Conn) Dropped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Drop 连接断开，执行全部已登记的写入
func (c *Conn) Drop(ctx context.Context) {
	c.mu.Lock()
	if c.dropped {
		c.mu.Unlock()
		return
	}
	c.dropped = true
	pending := make([]model.PresenceRecord, 0, len(c.hooks))
	for _, h := range c.hooks {
		if h.armed {
			pending = append(pending, model.PresenceRecord{Email: h.email, Online: h.online, DeviceId: c.deviceID})
		}
	}
	c.hooks = map[string]*DisconnectHook{}
	c.mu.Unlock()

	for _, rec := range pending {
		if err := c.ch.store.Set(ctx, rec); err != nil {
			task := mq.BuildHSetTask(rediskey.PresenceKey(rec.Email),
				"online", boolFlag(rec.Online), "device_id", rec.DeviceId, "updated_at", time.Now().UnixMilli()).
				WithSource("presence.Conn.Drop")
			repository.LogAndRetryRedisError(ctx, task, err)
		}
	}
}

// DisconnectHook 某路径上的断连写入
type DisconnectHook struct {
	conn   *Conn
	email  string
	online bool
	armed  bool
}

// SetValue 登记断连时写入的值
func (h *DisconnectHook) SetValue(online bool) {
	h.conn.mu.Lock()
	defer h.conn.mu.Unlock()
	h.online = online
	h.armed = true
}

// Cancel 撤销登记
func (h *DisconnectHook) Cancel() {
	h.conn.mu.Lock()
	defer h.conn.mu.Unlock()
	h.armed = false
	delete(h.conn.hooks, h.email)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

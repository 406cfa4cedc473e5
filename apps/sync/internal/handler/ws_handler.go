package handler

import (
	"SocialSync/apps/sync/internal/engine"
	"SocialSync/apps/sync/internal/manager"
	"SocialSync/apps/sync/internal/middleware"
	"SocialSync/apps/sync/internal/presence"
	"SocialSync/apps/sync/internal/svc"
	"SocialSync/consts"
	"SocialSync/pkg/ctxmeta"
	"SocialSync/pkg/logger"
	"SocialSync/pkg/result"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// 单个上行操作的超时
	opTimeout = 10 * time.Second
	// 断连清理（停组件、写离线）的超时
	closeTimeout = 5 * time.Second
	// 同设备新连接等待旧连接清理完成的上限
	replaceWait = 3 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 多端本地调试放开来源校验，生产环境在网关层按域名收紧
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// WSHandler /ws 接入：鉴权、升级，然后为每条连接挂一个引擎会话
type WSHandler struct {
	connManager *manager.ConnectionManager
	syncSvc     *svc.SyncService
	engine      *engine.Engine
	channel     *presence.Channel
	limiter     *middleware.RateLimiter
}

// NewWSHandler limiter 为 nil 时不限流
func NewWSHandler(connManager *manager.ConnectionManager, syncSvc *svc.SyncService, eng *engine.Engine, channel *presence.Channel, limiter *middleware.RateLimiter) *WSHandler {
	return &WSHandler{
		connManager: connManager,
		syncSvc:     syncSvc,
		engine:      eng,
		channel:     channel,
		limiter:     limiter,
	}
}

// ServeWS 处理握手
// GET /ws?token=...&device_id=...
func (h *WSHandler) ServeWS(c *gin.Context) {
	hs, err := h.syncSvc.Authenticate(c.Query("token"), c.Query("device_id"), middleware.ClientIPFromGinContext(c))
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	connCtx := context.Background()
	if traceID := ctxmeta.TraceIDFromGin(c); traceID != "" {
		connCtx = ctxmeta.WithTraceID(connCtx, traceID)
	}
	connCtx = ctxmeta.WithPrincipal(connCtx, hs.Principal.Email)
	connCtx = ctxmeta.WithDeviceID(connCtx, hs.Principal.DeviceID)
	connCtx = ctxmeta.WithClientIP(connCtx, hs.ClientIP)

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(connCtx, "WebSocket 升级失败", logger.ErrorField("error", err))
		return
	}

	h.handleConnection(connCtx, conn, hs)
}

// handleConnection 单条连接的完整生命周期
func (h *WSHandler) handleConnection(ctx context.Context, conn *websocket.Conn, hs *svc.Handshake) {
	client := manager.NewClient(conn, hs.Principal.Email, hs.Principal.DeviceID)
	replaced, ok := h.connManager.Register(client)
	if !ok {
		client.Close()
		return
	}
	// 旧连接的断连写入（离线）必须先于新连接的上线写入
	h.retire(ctx, replaced)

	ctx, cancel := context.WithCancel(ctx)
	session := h.engine.NewSession(h.channel.Connect(hs.Principal.DeviceID))
	identity := engine.NewIdentity()
	unbind := session.Bind(ctx, identity)

	cn := newConnection(ctx, h, client, session, identity, hs.Principal.DeviceID)
	go cn.pump()
	principal := hs.Principal
	identity.Set(&principal)

	logger.Info(ctx, "WebSocket 连接已建立",
		logger.String("client_ip", hs.ClientIP),
		logger.Int("online_count", h.connManager.Count()),
	)

	client.Run(ctx, cn.handleMessage, func() {
		cancel()
		unbind()
		cn.close()

		closeCtx, closeCancel := context.WithTimeout(ctxmeta.Detach(ctx), closeTimeout)
		defer closeCancel()
		session.Close(closeCtx)
		h.connManager.Unregister(client)

		logger.Info(ctx, "WebSocket 连接已断开",
			logger.Int("online_count", h.connManager.Count()),
		)
	})
}

// retire 关闭被替换的旧连接并等它清理完成
func (h *WSHandler) retire(ctx context.Context, old *manager.Client) {
	if old == nil {
		return
	}
	old.Close()
	select {
	case <-old.Finished():
	case <-time.After(replaceWait):
		logger.Warn(ctx, "等待旧连接清理超时", logger.String("device_id", old.DeviceID()))
	}
}

// writeAuthError 握手阶段还未升级，直接回 HTTP JSON
func (h *WSHandler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, svc.ErrTokenRequired), errors.Is(err, svc.ErrDeviceIDRequired):
		result.Abort(c, http.StatusBadRequest, consts.CodeParamError)
	case errors.Is(err, svc.ErrTokenInvalid):
		result.Abort(c, http.StatusUnauthorized, consts.CodeInvalidToken)
	default:
		result.Abort(c, http.StatusInternalServerError, consts.CodeInternalError)
	}
}

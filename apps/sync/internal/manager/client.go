package manager

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSendQueueSize = 64
	wsWriteTimeout       = 5 * time.Second
	maxFrameBytes        = 64 * 1024
)

// MessageHandler 上行帧回调，raw 为客户端原始载荷
type MessageHandler func(raw []byte)

// CloseHandler 读写循环退出后的清理回调
type CloseHandler func()

// Client 一条 WebSocket 连接。
// 下行经 send 队列异步写出；done 为统一关闭信号；once 保证 Close 幂等。
// principal 在 login/logout 帧后会变化，只由 ConnectionManager 在持锁时改写。
type Client struct {
	conn     *websocket.Conn
	deviceID string
	send     chan []byte
	done     chan struct{}
	finished chan struct{}
	once     sync.Once

	mu        sync.RWMutex
	principal string
}

// NewClient 创建连接包装，principal 可为空（未登录连接）
func NewClient(conn *websocket.Conn, principal, deviceID string) *Client {
	return &Client{
		conn:      conn,
		principal: principal,
		deviceID:  deviceID,
		send:      make(chan []byte, defaultSendQueueSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// Key 连接键 principal:device_id，未登录时为空
func (c *Client) Key() string {
	p := c.Principal()
	if p == "" {
		return ""
	}
	return buildKey(p, c.deviceID)
}

func (c *Client) Principal() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.principal
}

func (c *Client) setPrincipal(p string) {
	c.mu.Lock()
	c.principal = p
	c.mu.Unlock()
}

func (c *Client) DeviceID() string {
	return c.deviceID
}

// Done 连接关闭信号
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Finished Run 退出且 onClose 执行完毕后关闭
func (c *Client) Finished() <-chan struct{} {
	return c.finished
}

// Enqueue 投递下行帧。
// 返回 false 表示连接已关闭或队列已满，调用方通常直接断开慢连接。
func (c *Client) Enqueue(msg []byte) bool {
	if len(msg) == 0 {
		return true
	}
	select {
	case <-c.done:
		return false
	default:
	}
	cloned := append([]byte(nil), msg...)
	select {
	case <-c.done:
		return false
	case c.send <- cloned:
		return true
	default:
		return false
	}
}

// Run 启动写循环并在当前 goroutine 读，读循环结束即整体退出
func (c *Client) Run(ctx context.Context, onMessage MessageHandler, onClose CloseHandler) {
	defer func() {
		c.Close()
		if onClose != nil {
			onClose()
		}
		close(c.finished)
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	go c.writeLoop(ctx)
	c.readLoop(ctx, onMessage)
}

// Close 先发关闭信号再断开底层连接
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readLoop(ctx context.Context, onMessage MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(raw)
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		}
	}
}

package manager

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionsOnline = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "social_sync",
	Name:      "ws_connections",
	Help:      "当前 WebSocket 连接数",
})

// ConnectionManager 在线连接索引。
// clients 含全部连接（包括未登录的）；byKey 只索引已登录连接，
// 同一主体同一设备最多一条，新连接替换旧连接。
type ConnectionManager struct {
	mu       sync.Mutex
	clients  map[*Client]struct{}
	byKey    map[string]*Client
	shutdown bool
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[*Client]struct{}),
		byKey:   make(map[string]*Client),
	}
}

// Register 注册连接，返回被替换的旧连接（调用方负责关闭）。
// 已停机时返回 ok=false。
func (m *ConnectionManager) Register(client *Client) (replaced *Client, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, false
	}
	m.clients[client] = struct{}{}
	connectionsOnline.Set(float64(len(m.clients)))
	return m.bindLocked(client), true
}

// Rebind 连接切换主体（login/logout 帧），principal 为空表示登出
func (m *ConnectionManager) Rebind(client *Client, principal string) (replaced *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[client]; !ok {
		client.setPrincipal(principal)
		return nil
	}
	m.unbindLocked(client)
	client.setPrincipal(principal)
	return m.bindLocked(client)
}

// Unregister 注销连接。只删除 map 中确实是该连接的条目，避免误删替换进来的新连接。
func (m *ConnectionManager) Unregister(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	m.unbindLocked(client)
	connectionsOnline.Set(float64(len(m.clients)))
}

// Lookup 按主体与设备查找已登录连接
func (m *ConnectionManager) Lookup(principal, deviceID string) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[buildKey(principal, deviceID)]
}

// Count 当前连接数
func (m *ConnectionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Shutdown 关闭全部连接并拒绝后续注册
func (m *ConnectionManager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true

	clients := make([]*Client, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.clients = make(map[*Client]struct{})
	m.byKey = make(map[string]*Client)
	connectionsOnline.Set(0)
	m.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}

func (m *ConnectionManager) bindLocked(client *Client) (replaced *Client) {
	key := client.Key()
	if key == "" {
		return nil
	}
	if old, ok := m.byKey[key]; ok && old != client {
		replaced = old
		delete(m.clients, old)
		connectionsOnline.Set(float64(len(m.clients)))
	}
	m.byKey[key] = client
	return replaced
}

func (m *ConnectionManager) unbindLocked(client *Client) {
	key := client.Key()
	if key == "" {
		return
	}
	if current, ok := m.byKey[key]; ok && current == client {
		delete(m.byKey, key)
	}
}

func buildKey(principal, deviceID string) string {
	return principal + ":" + deviceID
}

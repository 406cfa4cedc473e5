package engine

import "sync"

// Principal 当前登录主体
type Principal struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	DeviceID string `json:"device_id"`
}

func (p *Principal) same(o *Principal) bool {
	if p == nil || o == nil {
		return p == nil && o == nil
	}
	return p.ID == o.ID && p.Email == o.Email
}

func (p *Principal) clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Identity 身份协作方：持有当前主体并在切换时通知监听者
type Identity struct {
	mu       sync.Mutex
	current  *Principal
	nextID   int
	handlers map[int]func(*Principal)
	order    []int
}

// NewIdentity 创建未登录的身份持有者
func NewIdentity() *Identity {
	return &Identity{handlers: make(map[int]func(*Principal))}
}

// Current 当前主体，未登录返回 nil
func (i *Identity) Current() *Principal {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current.clone()
}

// Set 切换主体（nil 表示登出），按注册顺序同步通知
func (i *Identity) Set(p *Principal) {
	i.mu.Lock()
	i.current = p.clone()
	handlers := make([]func(*Principal), 0, len(i.order))
	for _, id := range i.order {
		if h, ok := i.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	i.mu.Unlock()

	for _, h := range handlers {
		h(p.clone())
	}
}

// OnPrincipalChanged 注册监听，返回注销函数
func (i *Identity) OnPrincipalChanged(h func(*Principal)) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := i.nextID
	i.nextID++
	i.handlers[id] = h
	i.order = append(i.order, id)
	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		delete(i.handlers, id)
	}
}

package model

// PresenceRecord 在线状态记录（存放在低延迟 KV 中，不落库）。
// 登录/登出/断连时覆盖写，从不显式删除。
type PresenceRecord struct {
	Email     string `json:"email"`
	Online    bool   `json:"online"`
	DeviceId  string `json:"device_id,omitempty"`
	UpdatedAt int64  `json:"updated_at"` // unix 毫秒
}

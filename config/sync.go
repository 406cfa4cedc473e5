package config

import "time"

// SyncConfig 同步引擎参数
type SyncConfig struct {
	MessageWindow      int           `json:"messageWindow" yaml:"messageWindow"`           // 实时尾部窗口（最近 N 条）
	HistoryPageSize    int           `json:"historyPageSize" yaml:"historyPageSize"`       // 向前翻页每页条数
	SuggestionQuota    int           `json:"suggestionQuota" yaml:"suggestionQuota"`       // 推荐人数目标
	SuggestionPageSize int           `json:"suggestionPageSize" yaml:"suggestionPageSize"` // 目录扫描每页条数
	SuggestionMaxPages int           `json:"suggestionMaxPages" yaml:"suggestionMaxPages"` // 扫描页数上限
	SearchLimit        int           `json:"searchLimit" yaml:"searchLimit"`               // 目录搜索返回上限
	PresenceTTL        time.Duration `json:"presenceTTL" yaml:"presenceTTL"`               // 在线记录 TTL（心跳续期）
	ResyncInterval     time.Duration `json:"resyncInterval" yaml:"resyncInterval"`         // 订阅兜底重查周期，0 表示关闭
	BroadcastBuffer    int           `json:"broadcastBuffer" yaml:"broadcastBuffer"`       // 每个订阅者的快照缓冲
	ProfileCacheSize   int           `json:"profileCacheSize" yaml:"profileCacheSize"`     // 本地资料缓存容量
	ProfileCacheTTL    time.Duration `json:"profileCacheTTL" yaml:"profileCacheTTL"`       // 本地资料缓存 TTL
}

// DefaultSyncConfig 返回默认参数
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MessageWindow:      20,
		HistoryPageSize:    20,
		SuggestionQuota:    50,
		SuggestionPageSize: 50,
		SuggestionMaxPages: 200,
		SearchLimit:        20,
		PresenceTTL:        90 * time.Second,
		ResyncInterval:     30 * time.Second,
		BroadcastBuffer:    8,
		ProfileCacheSize:   4096,
		ProfileCacheTTL:    30 * time.Second,
	}
}

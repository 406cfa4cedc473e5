package model

import (
	"strings"
	"time"
)

// Profile 用户公开资料。
// Email 是全局稳定标识，所有关系/会话/申请记录都以 email 作为外键。
// SearchKey = lower(DisplayName)，目录扫描按 (search_key, email) 排序翻页。
type Profile struct {
	Id          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	PrincipalId string    `gorm:"column:principal_id;type:varchar(64);not null;uniqueIndex:uidx_principal;comment:身份主体id" json:"principal_id"`
	Email       string    `gorm:"column:email;type:varchar(128);not null;uniqueIndex:uidx_email;index:idx_search_key_email,priority:2;comment:邮箱" json:"email"`
	DisplayName string    `gorm:"column:display_name;type:varchar(64);not null;default:'';comment:昵称" json:"display_name"`
	SearchKey   string    `gorm:"column:search_key;type:varchar(64);not null;default:'';index:idx_search_key_email,priority:1;comment:小写昵称" json:"search_key"`
	AvatarURL   string    `gorm:"column:avatar_url;type:varchar(512);not null;default:'';comment:头像地址" json:"avatar_url"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Profile) TableName() string { return "profile" }

// BuildSearchKey 由昵称生成检索键
func BuildSearchKey(displayName string) string {
	return strings.ToLower(strings.TrimSpace(displayName))
}

// CloneProfiles 复制一组资料（值拷贝），用于发布不可变快照
func CloneProfiles(in []*Profile) []Profile {
	out := make([]Profile, 0, len(in))
	for _, p := range in {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

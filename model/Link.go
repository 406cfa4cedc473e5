package model

import "time"

// LinkOwner 好友链接表的根记录，每个用户至多一条，首次需要时惰性创建。
type LinkOwner struct {
	Id        string    `gorm:"column:id;type:char(36);primaryKey;comment:根记录id(uuid)"`
	Email     string    `gorm:"column:email;type:varchar(128);not null;uniqueIndex:uidx_owner_email;comment:所属用户邮箱"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LinkOwner) TableName() string { return "link_owner" }

// LinkEntry 根记录下的好友条目，一个好友一条；接受申请时写入，正常流程不删除。
// uidx_owner_peer 保证重复接受不会产生重复条目。
type LinkEntry struct {
	Id         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerId    string    `gorm:"column:owner_id;type:char(36);not null;uniqueIndex:uidx_owner_peer;comment:根记录id"`
	OwnerEmail string    `gorm:"column:owner_email;type:varchar(128);not null;index;comment:根记录所属邮箱"`
	Email      string    `gorm:"column:email;type:varchar(128);not null;uniqueIndex:uidx_owner_peer;comment:好友邮箱"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LinkEntry) TableName() string { return "link_entry" }

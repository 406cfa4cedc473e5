package model

import "time"

// FriendRequest 好友申请 sender -> receiver。
// 不做唯一约束：重复发送是无害的，接受时按 email 去重。
type FriendRequest struct {
	Id            string    `gorm:"column:id;type:char(36);primaryKey;comment:申请id(uuid)"`
	SenderEmail   string    `gorm:"column:sender_email;type:varchar(128);not null;index:idx_sender_receiver,priority:1;comment:发起方邮箱"`
	ReceiverEmail string    `gorm:"column:receiver_email;type:varchar(128);not null;index:idx_sender_receiver,priority:2;index:idx_receiver;comment:接收方邮箱"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (FriendRequest) TableName() string { return "friend_request" }

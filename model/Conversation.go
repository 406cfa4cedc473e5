package model

import "time"

// ConversationIndex 两人会话的规范标识。
// 同一无序二元组至多一条：PairKey 是排序后的 "a|b"，由唯一索引兜底。
type ConversationIndex struct {
	ConversationId string    `gorm:"column:conversation_id;type:char(36);primaryKey;comment:会话id(uuid)"`
	ParticipantA   string    `gorm:"column:participant_a;type:varchar(128);not null;index;comment:参与方A"`
	ParticipantB   string    `gorm:"column:participant_b;type:varchar(128);not null;index;comment:参与方B"`
	PairKey        string    `gorm:"column:pair_key;type:varchar(260);not null;uniqueIndex:uidx_pair_key;comment:规范化参与方组合"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ConversationIndex) TableName() string { return "conversation_index" }

// PairKey 生成与顺序无关的参与方组合键
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Peer 返回对端邮箱
func (c *ConversationIndex) Peer(self string) string {
	if c.ParticipantA == self {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message 会话内的一条消息，写入后不可变。
// Seq 由服务端分配（雪花算法），会话内单调且唯一，是排序与翻页游标；
// SentAt 为发送端时间，仅用于展示。
type Message struct {
	Seq            int64     `gorm:"column:seq;primaryKey;autoIncrement:false;comment:服务端序号" json:"seq,string"`
	ConversationId string    `gorm:"column:conversation_id;type:char(36);not null;index:idx_conv_seq,priority:1;comment:会话id" json:"conversation_id"`
	SenderEmail    string    `gorm:"column:sender_email;type:varchar(128);not null;comment:发送方邮箱" json:"sender_email"`
	Text           string    `gorm:"column:text;type:text;not null;comment:消息内容" json:"text"`
	SentAt         time.Time `gorm:"column:sent_at;not null;comment:发送端时间" json:"sent_at"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

func (Message) TableName() string { return "message" }

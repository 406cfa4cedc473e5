package util

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	snowNode *snowflake.Node
	snowOnce sync.Once
	snowMu   sync.Mutex
)

// InitSnowflake 初始化雪花节点（节点号 0~1023，多实例部署需各不相同）
func InitSnowflake(nodeID int64) error {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	snowMu.Lock()
	snowNode = node
	snowMu.Unlock()
	return nil
}

// NextSeq 生成全局唯一、按时间递增的序号。
// 未显式初始化时使用节点 0。
func NextSeq() int64 {
	snowOnce.Do(func() {
		snowMu.Lock()
		defer snowMu.Unlock()
		if snowNode == nil {
			snowNode, _ = snowflake.NewNode(0)
		}
	})
	snowMu.Lock()
	node := snowNode
	snowMu.Unlock()
	return node.Generate().Int64()
}

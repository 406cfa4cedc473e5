package mq

import (
	"context"
	"time"

	"SocialSync/pkg/ctxmeta"
)

// ==================== Redis 任务定义 ====================

type CommandType string

const (
	CmdSimple   CommandType = "simple"   // Set, Del, HSet...
	CmdPipeline CommandType = "pipeline" // 批量操作
	CmdLua      CommandType = "lua"      // Lua 脚本
)

const defaultMaxRetries = 3

// RedisTask 写入 Kafka 重试队列的 Redis 操作
type RedisTask struct {
	Type CommandType `json:"type"`

	// 普通命令 (如 DEL key)
	Command string        `json:"command,omitempty"`
	Args    []interface{} `json:"args,omitempty"`

	// Pipeline
	PipelineCmds []RedisCmd `json:"pipeline_cmds,omitempty"`

	// Lua 脚本
	LuaScript string        `json:"lua_script,omitempty"`
	LuaKeys   []string      `json:"lua_keys,omitempty"`
	LuaArgs   []interface{} `json:"lua_args,omitempty"`

	// 追踪与重试控制
	TraceID     string    `json:"trace_id,omitempty"`
	Principal   string    `json:"principal,omitempty"`
	DeviceID    string    `json:"device_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RetryCount  int       `json:"retry_count"`
	MaxRetries  int       `json:"max_retries"`
	OriginalErr string    `json:"original_err"`
	Source      string    `json:"source,omitempty"`
}

type RedisCmd struct {
	Command string        `json:"command"`
	Args    []interface{} `json:"args"`
}

// ==================== 构造器 ====================

func newTask(t CommandType) RedisTask {
	return RedisTask{Type: t, Timestamp: time.Now(), MaxRetries: defaultMaxRetries}
}

// BuildDelTask 构造 DEL 任务
func BuildDelTask(keys ...string) RedisTask {
	t := newTask(CmdSimple)
	t.Command = "del"
	for _, k := range keys {
		t.Args = append(t.Args, k)
	}
	return t
}

// BuildSetTask 构造 SET 任务
func BuildSetTask(key string, val interface{}, ttl time.Duration) RedisTask {
	t := newTask(CmdSimple)
	t.Command = "set"
	t.Args = []interface{}{key, val}
	if ttl > 0 {
		t.Args = append(t.Args, "EX", int(ttl.Seconds()))
	}
	return t
}

// BuildHSetTask 构造 HSET 任务，fieldValues 为 field, value 交替
func BuildHSetTask(key string, fieldValues ...interface{}) RedisTask {
	t := newTask(CmdSimple)
	t.Command = "hset"
	t.Args = append([]interface{}{key}, fieldValues...)
	return t
}

// BuildPipelineTask 构造 Pipeline 任务
func BuildPipelineTask(cmds []RedisCmd) RedisTask {
	t := newTask(CmdPipeline)
	t.PipelineCmds = cmds
	return t
}

// BuildLuaTask 构造 Lua 脚本任务
func BuildLuaTask(script string, keys []string, args ...interface{}) RedisTask {
	t := newTask(CmdLua)
	t.LuaScript = script
	t.LuaKeys = keys
	t.LuaArgs = args
	return t
}

// ==================== 链式方法 ====================

// WithContext 从 ctx 中带上追踪信息
func (t RedisTask) WithContext(ctx context.Context) RedisTask {
	t.TraceID = ctxmeta.TraceID(ctx)
	t.Principal = ctxmeta.Principal(ctx)
	t.DeviceID = ctxmeta.DeviceID(ctx)
	return t
}

// WithError 记录原始错误
func (t RedisTask) WithError(err error) RedisTask {
	if err != nil {
		t.OriginalErr = err.Error()
	}
	return t
}

// WithSource 记录操作来源
func (t RedisTask) WithSource(source string) RedisTask {
	t.Source = source
	return t
}

// WithMaxRetries 设置最大重试次数
func (t RedisTask) WithMaxRetries(maxRetries int) RedisTask {
	t.MaxRetries = maxRetries
	return t
}

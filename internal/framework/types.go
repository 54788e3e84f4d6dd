package framework

import (
	"context"
	"time"
)

// Job 任务结构（框架内部流转）
type Job struct {
	ID       string // 任务 ID
	Name     string // 任务名称（视图名）
	Attempts int    // 已执行次数
}

// JobRespStatus 任务处理结果状态
type JobRespStatus int

const (
	// JobRespStatusSuccess 处理成功
	JobRespStatusSuccess JobRespStatus = iota
	// JobRespStatusFailed 处理失败，不影响其他任务
	JobRespStatusFailed
)

// String 日志输出
func (s JobRespStatus) String() string {
	switch s {
	case JobRespStatusSuccess:
		return "success"
	case JobRespStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobResp 任务处理结果
type JobResp struct {
	Action   JobRespStatus // 处理动作
	Data     interface{}   // 业务数据（可选）
	Err      error         // 失败原因
	Duration time.Duration // 处理耗时（由 Processor 填写）
}

// Proc 业务处理函数类型（注入到 Processor）
type Proc func(ctx context.Context, job *Job) *JobResp

// Logger 日志接口
type Logger interface {
	Debugf(ctx context.Context, format string, args ...interface{})
	Infof(ctx context.Context, format string, args ...interface{})
	Warnf(ctx context.Context, format string, args ...interface{})
	Errorf(ctx context.Context, format string, args ...interface{})
}

// ProcessorConfig Processor 配置
type ProcessorConfig struct {
	Concurrency int           // 并发协程数
	Timeout     time.Duration // 单个任务超时，0 表示不限制
}

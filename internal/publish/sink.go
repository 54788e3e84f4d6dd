package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"veia/viewsync/pkg/errorutil"
)

// Sink 视图文档的输出端
type Sink interface {
	Name() string
	Write(ctx context.Context, runID, artifact string, data []byte) error
}

// FileSink 每个文档写入 <dir>/<artifact>.json
type FileSink struct {
	dir string
}

// NewFileSink 创建文件输出端（目录不存在时创建）
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errorutil.SinkFailure("file", err, false)
	}
	return &FileSink{dir: dir}, nil
}

// Name 输出端名称
func (s *FileSink) Name() string { return "file" }

// Path 文档的完整路径
func (s *FileSink) Path(artifact string) string {
	return filepath.Join(s.dir, artifact+".json")
}

// Write 先写临时文件再 rename，读者不会看到半份文档
func (s *FileSink) Write(ctx context.Context, _ string, artifact string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, artifact+".*.tmp")
	if err != nil {
		return errorutil.SinkFailure(s.Name(), err, false)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errorutil.SinkFailure(s.Name(), err, false)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errorutil.SinkFailure(s.Name(), err, false)
	}
	if err := os.Rename(tmpName, s.Path(artifact)); err != nil {
		os.Remove(tmpName)
		return errorutil.SinkFailure(s.Name(), err, false)
	}
	return nil
}

// ViewSaver 持久化视图文档（mysql.ViewDAO）
type ViewSaver interface {
	SaveView(ctx context.Context, runID, name string, payload []byte) error
}

// MySQLSink 写入 derived_views 表
type MySQLSink struct {
	saver ViewSaver
}

// NewMySQLSink 创建 MySQL 输出端
func NewMySQLSink(saver ViewSaver) *MySQLSink {
	return &MySQLSink{saver: saver}
}

// Name 输出端名称
func (s *MySQLSink) Name() string { return "mysql" }

// Write 数据库错误视为可重试
func (s *MySQLSink) Write(ctx context.Context, runID, artifact string, data []byte) error {
	if err := s.saver.SaveView(ctx, runID, artifact, data); err != nil {
		return errorutil.SinkFailure(s.Name(), err, true)
	}
	return nil
}

// ViewCache 缓存视图文档并通知（redis.ViewStore）
type ViewCache interface {
	StoreView(ctx context.Context, runID, name string, payload []byte) error
}

// RedisSink 写入 Redis 并发布就绪通知
type RedisSink struct {
	cache ViewCache
}

// NewRedisSink 创建 Redis 输出端
func NewRedisSink(cache ViewCache) *RedisSink {
	return &RedisSink{cache: cache}
}

// Name 输出端名称
func (s *RedisSink) Name() string { return "redis" }

// Write 网络错误视为可重试
func (s *RedisSink) Write(ctx context.Context, runID, artifact string, data []byte) error {
	if err := s.cache.StoreView(ctx, runID, artifact, data); err != nil {
		return errorutil.SinkFailure(s.Name(), err, true)
	}
	return nil
}

// QueuePublisher 投递消息到队列（lmstfy.Client）
type QueuePublisher interface {
	Publish(queue string, data []byte, ttl, delay uint32) (string, error)
}

// ViewPublishedJob 下游任务消息：只携带文档位置，不携带文档本身
type ViewPublishedJob struct {
	RunID       string `json:"run_id"`
	Artifact    string `json:"artifact"`
	Bytes       int    `json:"bytes"`
	PublishedAt int64  `json:"published_at"`
}

// LmstfySink 每个文档投递一条下游任务
type LmstfySink struct {
	queue string
	ttl   uint32
	pub   QueuePublisher
}

// NewLmstfySink 创建 lmstfy 输出端
func NewLmstfySink(pub QueuePublisher, queue string, ttl uint32) *LmstfySink {
	return &LmstfySink{pub: pub, queue: queue, ttl: ttl}
}

// Name 输出端名称
func (s *LmstfySink) Name() string { return "lmstfy" }

// Write 投递 ViewPublishedJob
func (s *LmstfySink) Write(ctx context.Context, runID, artifact string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := json.Marshal(&ViewPublishedJob{
		RunID:       runID,
		Artifact:    artifact,
		Bytes:       len(data),
		PublishedAt: time.Now().Unix(),
	})
	if err != nil {
		return errorutil.SinkFailure(s.Name(), fmt.Errorf("marshal job: %w", err), false)
	}
	if _, err := s.pub.Publish(s.queue, msg, s.ttl, 0); err != nil {
		return errorutil.SinkFailure(s.Name(), err, true)
	}
	return nil
}

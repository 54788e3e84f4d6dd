package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"veia/viewsync/internal/views"
	"veia/viewsync/pkg/errorutil"
	"veia/viewsync/pkg/logger"
)

// Recorder 记录写入结果（metrics.Metrics）
type Recorder interface {
	RecordSink(sink string, err error)
}

// Options 发布参数
type Options struct {
	Indent     bool          // 缩进输出（两个空格）
	MaxRetries uint64        // 可重试错误的最大重试次数
	MaxElapsed time.Duration // 单个输出端的最长重试时间
}

// Publisher 将一个文档扇出到所有输出端
// 单个输出端失败不影响其他输出端
type Publisher struct {
	sinks    []Sink
	opts     Options
	logger   logger.Logger
	recorder Recorder
}

// NewPublisher 创建 Publisher；recorder 可为 nil
func NewPublisher(sinks []Sink, opts Options, log logger.Logger, recorder Recorder) *Publisher {
	return &Publisher{
		sinks:    sinks,
		opts:     opts,
		logger:   log,
		recorder: recorder,
	}
}

// Sinks 已启用的输出端名称
func (p *Publisher) Sinks() []string {
	names := make([]string, 0, len(p.sinks))
	for _, s := range p.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Encode 序列化文档
func (p *Publisher) Encode(art views.Artifact) ([]byte, error) {
	if p.opts.Indent {
		return json.MarshalIndent(art.Payload, "", "  ")
	}
	return json.Marshal(art.Payload)
}

// Publish 序列化并写入所有输出端，返回所有失败的合并错误
func (p *Publisher) Publish(ctx context.Context, runID string, art views.Artifact) error {
	data, err := p.Encode(art)
	if err != nil {
		return errorutil.InvalidInput(fmt.Sprintf("encode artifact %s", art.Name), err)
	}

	// 每个输出端独立写入；Wait 只返回第一个错误，完整错误按输出端顺序合并
	var g errgroup.Group
	errs := make([]error, len(p.sinks))
	for i, sink := range p.sinks {
		i, sink := i, sink
		g.Go(func() error {
			err := p.writeWithRetry(ctx, sink, runID, art.Name, data)
			if p.recorder != nil {
				p.recorder.RecordSink(sink.Name(), err)
			}
			if err != nil {
				p.logger.Errorf(ctx, "[Publisher] %s -> %s failed: %v", art.Name, sink.Name(), err)
				errs[i] = fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Join(errs...)
	}
	return nil
}

func (p *Publisher) writeWithRetry(ctx context.Context, sink Sink, runID, artifact string, data []byte) error {
	attempt := 0
	op := func() error {
		attempt++
		err := sink.Write(ctx, runID, artifact, data)
		if err == nil {
			return nil
		}
		if !errorutil.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		p.logger.Warnf(ctx, "[Publisher] %s -> %s attempt %d failed: %v", artifact, sink.Name(), attempt, err)
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	if p.opts.MaxElapsed > 0 {
		eb.MaxElapsedTime = p.opts.MaxElapsed
	}
	var b backoff.BackOff = eb
	b = backoff.WithMaxRetries(b, p.opts.MaxRetries)

	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

package framework

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/atomic"

	"veia/viewsync/pkg/logger"
)

// Reporter 接收每个任务的处理结果
type Reporter func(job *Job, resp *JobResp)

// Processor 处理器：接收任务，调用业务处理函数
type Processor struct {
	cfg        *ProcessorConfig
	proc       Proc // 业务处理函数
	report     Reporter
	logger     Logger
	shutdownCh chan struct{} // 专门的退出信号通道
	closed     *atomic.Bool
	wg         sync.WaitGroup

	processed *atomic.Int64
	failed    *atomic.Int64
}

// NewProcessor 创建处理器
func NewProcessor(cfg *ProcessorConfig, proc Proc, report Reporter, log Logger) *Processor {
	return &Processor{
		cfg:        cfg,
		proc:       proc,
		report:     report,
		logger:     log,
		shutdownCh: make(chan struct{}),
		closed:     atomic.NewBool(false),
		processed:  atomic.NewInt64(0),
		failed:     atomic.NewInt64(0),
	}
}

// Start 启动处理协程
func (p *Processor) Start(ctx context.Context, inputChan <-chan *Job) {
	concurrency := p.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	p.logger.Infof(ctx, "[Processor] Starting with %d workers", concurrency)

	for i := 0; i < concurrency; i++ {
		workerID := i
		p.wg.Add(1)
		go p.loop(ctx, workerID, inputChan)
	}
}

// SignalShutdown 通知 Processor 准备退出（进入 Drain 模式），可重复调用
func (p *Processor) SignalShutdown() {
	if p.closed.CAS(false, true) {
		p.logger.Debugf(context.Background(), "[Processor] Shutdown signal received")
		close(p.shutdownCh)
	}
}

// Wait 等待所有处理协程退出
func (p *Processor) Wait() {
	p.wg.Wait()
	p.logger.Debugf(context.Background(), "[Processor] All workers exited, processed: %d, failed: %d",
		p.processed.Load(), p.failed.Load())
}

// Processed 已处理任务数
func (p *Processor) Processed() int64 { return p.processed.Load() }

// Failed 失败任务数
func (p *Processor) Failed() int64 { return p.failed.Load() }

// loop 处理循环（单个 Worker）
func (p *Processor) loop(ctx context.Context, workerID int, inputChan <-chan *Job) {
	defer p.wg.Done()
	p.logger.Debugf(ctx, "[Processor-%d] Started", workerID)

	for {
		select {
		// A. 正常业务处理
		case job, ok := <-inputChan:
			if !ok {
				return
			}
			p.process(ctx, job, workerID)

		// B. Drain 模式：处理完剩余任务再退出
		case <-p.shutdownCh:
			count := 0
			for {
				select {
				case job, ok := <-inputChan:
					if !ok {
						p.logger.Debugf(ctx, "[Processor-%d] Drained %d jobs, exiting", workerID, count)
						return
					}
					p.process(ctx, job, workerID)
					count++
				default:
					// Channel 空了，安全退出
					p.logger.Debugf(ctx, "[Processor-%d] Drained %d jobs, exiting", workerID, count)
					return
				}
			}
		}
	}
}

// process 处理单个任务
func (p *Processor) process(ctx context.Context, job *Job, workerID int) {
	if job == nil {
		return
	}

	startTime := time.Now()
	job.Attempts++

	// 1. 创建超时控制的 Context
	procCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	// 2. 注入元信息到 Context
	procCtx = logger.WithWorkerID(procCtx, workerID)
	procCtx = logger.WithView(procCtx, job.Name)

	p.logger.Debugf(procCtx, "[Processor-%d] Processing job: %s", workerID, job.ID)

	// 3. 调用业务处理函数（捕获 panic，单个任务失败不影响其他任务）
	resp := p.safeProc(procCtx, job)
	if resp == nil {
		resp = &JobResp{Action: JobRespStatusFailed, Err: fmt.Errorf("job %s returned no response", job.ID)}
	}

	// 4. 记录处理时长
	resp.Duration = time.Since(startTime)
	p.processed.Inc()
	if resp.Action != JobRespStatusSuccess {
		p.failed.Inc()
	}
	p.logger.Debugf(procCtx, "[Processor-%d] Job processed: %s, action: %s, duration: %v",
		workerID, job.ID, resp.Action, resp.Duration)

	if p.report != nil {
		p.report(job, resp)
	}
}

func (p *Processor) safeProc(ctx context.Context, job *Job) (resp *JobResp) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf(ctx, "[Processor] job %s panic: %v\n%s", job.ID, r, debug.Stack())
			resp = &JobResp{
				Action: JobRespStatusFailed,
				Err:    fmt.Errorf("job %s panicked: %v", job.ID, r),
			}
		}
	}()
	return p.proc(ctx, job)
}

// Run 一次性处理一批任务：全部入队后进入 Drain 模式，等待处理完成
// 返回结果与 jobs 顺序一致
func Run(ctx context.Context, cfg *ProcessorConfig, proc Proc, log Logger, jobs []*Job) []*JobResp {
	results := make([]*JobResp, len(jobs))
	index := make(map[*Job]int, len(jobs))
	for i, job := range jobs {
		index[job] = i
	}

	var mu sync.Mutex
	report := func(job *Job, resp *JobResp) {
		mu.Lock()
		defer mu.Unlock()
		results[index[job]] = resp
	}

	inputChan := make(chan *Job, len(jobs))
	for _, job := range jobs {
		inputChan <- job
	}

	p := NewProcessor(cfg, proc, report, log)
	p.Start(ctx, inputChan)
	p.SignalShutdown()
	p.Wait()

	return results
}

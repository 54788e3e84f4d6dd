package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"veia/viewsync/internal/framework"
	"veia/viewsync/internal/ledger"
	"veia/viewsync/internal/metrics"
	"veia/viewsync/internal/publish"
	"veia/viewsync/internal/views"
	"veia/viewsync/pkg/config"
	"veia/viewsync/pkg/errorutil"
	"veia/viewsync/pkg/logger"
)

// ErrClosing Manager 已关闭
var ErrClosing = errors.New("manager is closing")

// Manager 接口
type Manager interface {
	Run(ctx context.Context) (*RunReport, error)
	Shutdown()
}

// Deps Manager 依赖（由配置装配，测试中可替换）
type Deps struct {
	Source    ledger.Source
	Views     []views.View
	Publisher *publish.Publisher
	Metrics   *metrics.Metrics
	Closers   []func() error
}

// ManagerInstance Manager 实例
type ManagerInstance struct {
	cfg       *config.Config
	source    ledger.Source
	views     []views.View
	publisher *publish.Publisher
	metrics   *metrics.Metrics
	closers   []func() error
	closing   *atomic.Bool
	baseCtx   context.Context // Shutdown 时取消，所有进行中的运行随之取消
	stopAll   context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	logger    logger.Logger
}

// NewManagerInstance 按配置装配依赖并创建 Manager
func NewManagerInstance(ctx context.Context, cfg *config.Config, log logger.Logger, m *metrics.Metrics) (*ManagerInstance, error) {
	if m == nil {
		m = metrics.New(nil)
	}
	deps, err := buildDeps(ctx, cfg, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependencies: %w", err)
	}
	return NewManagerWithDeps(cfg, log, deps), nil
}

// NewManagerWithDeps 使用给定依赖创建 Manager
func NewManagerWithDeps(cfg *config.Config, log logger.Logger, deps Deps) *ManagerInstance {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if deps.Views == nil {
		deps.Views = views.All(ViewParams(cfg))
	}
	baseCtx, stopAll := context.WithCancel(context.Background())
	return &ManagerInstance{
		cfg:       cfg,
		source:    deps.Source,
		views:     deps.Views,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		closers:   deps.Closers,
		closing:   atomic.NewBool(false),
		baseCtx:   baseCtx,
		stopAll:   stopAll,
		logger:    log,
	}
}

// ViewParams 配置映射到视图参数
func ViewParams(cfg *config.Config) views.Params {
	p := views.DefaultParams()
	pc := cfg.Pipeline
	p.TopBuyers = pc.Graph.TopBuyers
	p.TopSellers = pc.Graph.TopSellers
	p.ParticleSample = pc.Particles.SampleSize
	p.MarketplaceSample = pc.Marketplaces.SampleSize
	p.RingLabel = pc.Ring.Label
	p.RingTopN = pc.Ring.TopN
	p.RingEdgeCap = pc.Ring.EdgeCap
	p.DashboardSample = pc.Dashboard.SampleSize
	p.TopAnomalies = pc.Dashboard.TopAnomalies
	p.FlareThreshold = pc.FlareThreshold
	return p
}

// Views 已注册的视图
func (m *ManagerInstance) Views() []views.View {
	return m.views
}

// Run 执行一次完整流水线：读取账本 → 并发计算视图 → 发布文档
// 单个视图失败不影响其他视图；任一视图失败时返回合并错误
func (m *ManagerInstance) Run(ctx context.Context) (*RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 关闭检查与 wg.Add 在同一把锁内，避免与 Shutdown 的 wg.Wait 交错
	m.mu.Lock()
	if m.closing.Load() {
		m.mu.Unlock()
		return nil, ErrClosing
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	// Shutdown 取消 baseCtx 时同步取消本次运行
	stop := context.AfterFunc(m.baseCtx, cancel)
	defer stop()

	runID := uuid.New().String()
	ctx = logger.WithRunID(ctx, runID)

	seed := m.cfg.Pipeline.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m.logger.Infof(ctx, "[Manager] Run started, seed: %d", seed)

	// 1. 选择视图
	selected, err := selectViews(m.views, m.cfg.Pipeline.Only)
	if err != nil {
		return nil, err
	}

	// 2. 读取账本（所有读取先于计算）
	l, err := m.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	anomalies := l.AnomalyCount()
	m.metrics.LedgerTransactions.Set(float64(l.Len()))
	share := 0.0
	if l.Len() > 0 {
		share = 100 * float64(anomalies) / float64(l.Len())
	}
	m.logger.Infof(ctx, "[Manager] Ledger loaded: %d transactions, %d anomalies (%.1f%%)",
		l.Len(), anomalies, share)

	// 3. 每个视图一个任务
	byName := make(map[string]views.View, len(selected))
	jobs := make([]*framework.Job, 0, len(selected))
	for _, v := range selected {
		byName[v.Name()] = v
		jobs = append(jobs, &framework.Job{
			ID:   fmt.Sprintf("%s/%s", runID[:8], v.Name()),
			Name: v.Name(),
		})
	}

	procCfg := &framework.ProcessorConfig{
		Concurrency: m.cfg.Pipeline.Threads,
		Timeout:     m.cfg.Pipeline.Timeout,
	}
	results := framework.Run(ctx, procCfg, m.viewProc(l, byName, seed, runID), m.logger, jobs)

	// 4. 汇总
	report := &RunReport{
		RunID:        runID,
		Seed:         seed,
		Transactions: l.Len(),
		Anomalies:    anomalies,
		Views:        make([]ViewReport, 0, len(jobs)),
	}
	for i, job := range jobs {
		report.Views = append(report.Views, toViewReport(job, results[i]))
	}

	if failed := report.Failed(); len(failed) > 0 {
		m.logger.Errorf(ctx, "[Manager] Run finished with %d failed views: %v", len(failed), failed)
		return report, report.Err()
	}
	m.logger.Infof(ctx, "[Manager] Run complete: %d views, %d artifacts", len(report.Views), report.Artifacts())
	return report, nil
}

// viewProc 单个视图的处理函数（注入到 Processor）
func (m *ManagerInstance) viewProc(l *ledger.Ledger, byName map[string]views.View, seed int64, runID string) framework.Proc {
	return func(ctx context.Context, job *framework.Job) *framework.JobResp {
		view := byName[job.Name]
		startTime := time.Now()

		// 1. 计算（每个视图独立的随机流）
		artifacts, err := view.Build(ctx, l, views.NewRand(seed, job.Name))
		m.metrics.RecordView(job.Name, time.Since(startTime), err)
		if err != nil {
			m.logger.Errorf(ctx, "[Manager] ❌ %s failed: %v", job.Name, err)
			return &framework.JobResp{Action: framework.JobRespStatusFailed, Err: err}
		}

		// 2. 发布
		reports := make([]ArtifactReport, 0, len(artifacts))
		for _, art := range artifacts {
			m.metrics.RecordArtifact(art.Name, art.Counts)
			var publishErr error
			if m.publisher != nil {
				publishErr = m.publisher.Publish(ctx, runID, art)
			}
			reports = append(reports, ArtifactReport{
				Name:       art.Name,
				Counts:     art.Counts,
				PublishErr: publishErr,
			})
			if publishErr != nil {
				m.logger.Errorf(ctx, "[Manager] ❌ %s.json not fully published: %v", art.Name, publishErr)
				continue
			}
			m.logger.Infof(ctx, "[Manager] ✅ %s.json %s", art.Name, formatCounts(art.Counts))
		}

		return &framework.JobResp{Action: framework.JobRespStatusSuccess, Data: reports}
	}
}

func toViewReport(job *framework.Job, resp *framework.JobResp) ViewReport {
	vr := ViewReport{View: job.Name}
	if resp == nil {
		vr.Err = fmt.Errorf("view %s was not processed", job.Name)
		return vr
	}
	vr.Duration = resp.Duration
	vr.Err = resp.Err
	if resp.Action != framework.JobRespStatusSuccess && vr.Err == nil {
		vr.Err = fmt.Errorf("view %s failed", job.Name)
	}
	if arts, ok := resp.Data.([]ArtifactReport); ok {
		vr.Artifacts = arts
	}
	return vr
}

// selectViews 按名称筛选视图，保持注册顺序
func selectViews(all []views.View, only []string) ([]views.View, error) {
	if len(only) == 0 {
		return all, nil
	}

	known := make(map[string]bool, len(all))
	for _, v := range all {
		known[v.Name()] = true
	}
	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		if !known[name] {
			return nil, errorutil.InvalidInput(fmt.Sprintf("unknown view %q", name), nil)
		}
		wanted[name] = true
	}

	selected := make([]views.View, 0, len(only))
	for _, v := range all {
		if wanted[v.Name()] {
			selected = append(selected, v)
		}
	}
	return selected, nil
}

// Shutdown 优雅退出：取消进行中的运行，等待其结束后释放连接
func (m *ManagerInstance) Shutdown() {
	ctx := context.Background()
	m.logger.Infof(ctx, "[Manager] Began to close")

	// 1. 标记关闭并取消进行中的运行（与 Run 的登记共用一把锁）
	m.mu.Lock()
	if !m.closing.CAS(false, true) {
		m.mu.Unlock()
		return
	}
	m.stopAll()
	m.mu.Unlock()

	// 2. 等待运行退出
	m.wg.Wait()

	// 3. 关闭外部连接
	for _, closeFn := range m.closers {
		if err := closeFn(); err != nil {
			m.logger.Warnf(ctx, "[Manager] close failed: %v", err)
		}
	}

	m.logger.Infof(ctx, "[Manager] Shutdown complete")
}

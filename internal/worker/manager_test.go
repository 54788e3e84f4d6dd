package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"veia/viewsync/internal/ledger"
	"veia/viewsync/internal/metrics"
	"veia/viewsync/internal/publish"
	"veia/viewsync/internal/views"
	"veia/viewsync/pkg/config"
	"veia/viewsync/pkg/errorutil"
	"veia/viewsync/pkg/logger"
)

type staticSource struct {
	l   *ledger.Ledger
	err error
}

func (s *staticSource) Load(ctx context.Context) (*ledger.Ledger, error) {
	return s.l, s.err
}

// brokenView 模拟区域缺失导致的失败
type brokenView struct{}

func (brokenView) Name() string { return "broken" }

func (brokenView) Build(ctx context.Context, l *ledger.Ledger, rng *rand.Rand) ([]views.Artifact, error) {
	return nil, errorutil.MissingLookup("region", "ATLANTIS")
}

type panicView struct{}

func (panicView) Name() string { return "panics" }

func (panicView) Build(ctx context.Context, l *ledger.Ledger, rng *rand.Rand) ([]views.Artifact, error) {
	panic("unexpected")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Pipeline.Seed = 42
	cfg.Output.Dir = t.TempDir()
	return cfg
}

func sampleLedger() *ledger.Ledger {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	regions := []string{"EU", "SEA", "OCE"}
	markets := []string{"Prime", "Shadow", "Arcade"}
	labels := []string{"normal", "normal", "price_spike", "wash_trade_ring"}
	txns := make([]ledger.Transaction, 0, 200)
	for i := 0; i < 200; i++ {
		txns = append(txns, ledger.Transaction{
			TransactionID: fmt.Sprintf("t%03d", i),
			Timestamp:     base.Add(time.Duration(i) * time.Hour),
			BuyerID:       []string{"u1", "u2", "u3", "u4", "u5"}[i%5],
			SellerID:      []string{"u2", "u3", "u4", "u5", "u6", "u7"}[i%6],
			Category:      []string{"skin", "weapon"}[i%2],
			Price:         float64(i),
			PriceZ:        float64(i%7) - 3,
			Marketplace:   markets[i%3],
			BuyerRegion:   regions[i%3],
			SellerRegion:  regions[(i+1)%3],
			AnomalyLabel:  labels[i%4],
		})
	}
	return ledger.New(txns, nil)
}

func newTestManager(t *testing.T, cfg *config.Config, src ledger.Source, vs []views.View) (*ManagerInstance, *metrics.Metrics) {
	t.Helper()
	fileSink, err := publish.NewFileSink(cfg.Output.Dir)
	require.NoError(t, err)

	m := metrics.New(nil)
	pub := publish.NewPublisher([]publish.Sink{fileSink}, publish.Options{Indent: true}, logger.NewNopLogger(), m)
	mgr := NewManagerWithDeps(cfg, logger.NewNopLogger(), Deps{
		Source:    src,
		Views:     vs,
		Publisher: pub,
		Metrics:   m,
	})
	return mgr, m
}

func TestManager_RunWritesAllArtifacts(t *testing.T) {
	cfg := testConfig(t)
	mgr, m := newTestManager(t, cfg, &staticSource{l: sampleLedger()}, nil)

	report, err := mgr.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Failed())
	assert.Equal(t, int64(42), report.Seed)
	assert.Equal(t, 200, report.Transactions)
	assert.Len(t, report.Views, 7)
	assert.Equal(t, 10, report.Artifacts())

	for _, name := range []string{
		"network", "timeline", "particles", "geo_flows", "wash_ring", "marketplaces",
		"stats", "transactions", "anomalies", "categories",
	} {
		_, err := os.Stat(filepath.Join(cfg.Output.Dir, name+".json"))
		assert.NoError(t, err, name)
	}

	assert.Equal(t, 200.0, testutil.ToFloat64(m.LedgerTransactions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewBuildsTotal.WithLabelValues("stats", metrics.StatusSuccess)))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.SinkWritesTotal.WithLabelValues("file", metrics.StatusSuccess)))
}

func TestManager_FailingViewsAreIsolated(t *testing.T) {
	cfg := testConfig(t)
	vs := []views.View{
		views.NewTimelineView(ViewParams(cfg)),
		brokenView{},
		panicView{},
		views.NewRingView(ViewParams(cfg)),
	}
	mgr, m := newTestManager(t, cfg, &staticSource{l: sampleLedger()}, vs)

	report, err := mgr.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errorutil.ErrMissingLookup))
	assert.Equal(t, []string{"broken", "panics"}, report.Failed())

	for _, name := range []string{"timeline", "wash_ring"} {
		_, statErr := os.Stat(filepath.Join(cfg.Output.Dir, name+".json"))
		assert.NoError(t, statErr, name)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewBuildsTotal.WithLabelValues("broken", metrics.StatusError)))
}

func TestManager_OnlySelectsViews(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Only = []string{views.NameWashRing, views.NameNetwork}
	mgr, _ := newTestManager(t, cfg, &staticSource{l: sampleLedger()}, nil)

	report, err := mgr.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Views, 2)
	assert.Equal(t, views.NameNetwork, report.Views[0].View)
	assert.Equal(t, views.NameWashRing, report.Views[1].View)
}

func TestManager_UnknownViewRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Only = []string{"heatmap"}
	mgr, _ := newTestManager(t, cfg, &staticSource{l: sampleLedger()}, nil)

	_, err := mgr.Run(context.Background())
	assert.True(t, errors.Is(err, errorutil.ErrInvalidInput))
}

func TestManager_EmptyLedgerOnlyFailsStats(t *testing.T) {
	cfg := testConfig(t)
	mgr, _ := newTestManager(t, cfg, &staticSource{l: ledger.New(nil, nil)}, nil)

	report, err := mgr.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{views.NameStats}, report.Failed())
}

func TestManager_SourceError(t *testing.T) {
	cfg := testConfig(t)
	mgr, _ := newTestManager(t, cfg, &staticSource{err: errors.New("disk gone")}, nil)

	report, err := mgr.Run(context.Background())
	assert.Nil(t, report)
	assert.ErrorContains(t, err, "disk gone")
}

func TestManager_ShutdownRejectsNewRuns(t *testing.T) {
	cfg := testConfig(t)
	closed := 0
	mgr := NewManagerWithDeps(cfg, logger.NewNopLogger(), Deps{
		Source:  &staticSource{l: sampleLedger()},
		Closers: []func() error{func() error { closed++; return nil }},
	})

	mgr.Shutdown()
	mgr.Shutdown()
	assert.Equal(t, 1, closed)

	_, err := mgr.Run(context.Background())
	assert.ErrorIs(t, err, ErrClosing)
}

// blockingSource 在 ctx 取消前一直阻塞
type blockingSource struct {
	started  chan struct{}
	canceled func()
}

func (s *blockingSource) Load(ctx context.Context) (*ledger.Ledger, error) {
	close(s.started)
	<-ctx.Done()
	s.canceled()
	return nil, ctx.Err()
}

func TestManager_ShutdownWaitsForInflightRun(t *testing.T) {
	cfg := testConfig(t)

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}
	src := &blockingSource{started: make(chan struct{}), canceled: func() { record("load canceled") }}

	mgr := NewManagerWithDeps(cfg, logger.NewNopLogger(), Deps{
		Source:  src,
		Closers: []func() error{func() error { record("closed"); return nil }},
	})

	runErr := make(chan error, 1)
	go func() {
		_, err := mgr.Run(context.Background())
		runErr <- err
	}()

	<-src.started
	mgr.Shutdown()

	err := <-runErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"load canceled", "closed"}, events)
}

func TestManager_ConcurrentRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	closed := atomic.NewInt32(0)
	mgr := NewManagerWithDeps(cfg, logger.NewNopLogger(), Deps{
		Source:  &staticSource{l: ledger.New(nil, nil)},
		Views:   []views.View{},
		Closers: []func() error{func() error { closed.Inc(); return nil }},
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Run(context.Background())
			if err != nil {
				assert.ErrorIs(t, err, ErrClosing)
			}
		}()
	}
	mgr.Shutdown()
	wg.Wait()

	assert.Equal(t, int32(1), closed.Load())
	_, err := mgr.Run(context.Background())
	assert.ErrorIs(t, err, ErrClosing)
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "edges=3 nodes=12", formatCounts(map[string]int{"nodes": 12, "edges": 3}))
	assert.Equal(t, "", formatCounts(nil))
}

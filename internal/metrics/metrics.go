// Package metrics 视图流水线的 Prometheus 指标
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "veia"

// 结果标签
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics 流水线指标
type Metrics struct {
	// ViewBuildsTotal 视图构建次数，labels: view, status
	ViewBuildsTotal *prometheus.CounterVec
	// ViewDurationSeconds 视图构建耗时，labels: view
	ViewDurationSeconds *prometheus.HistogramVec
	// ArtifactItems 文档中的条目数（节点、粒子、流……），labels: artifact, item
	ArtifactItems *prometheus.GaugeVec
	// SinkWritesTotal 输出写入次数，labels: sink, status
	SinkWritesTotal *prometheus.CounterVec
	// LedgerTransactions 本次加载的交易笔数
	LedgerTransactions prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New 在指定 registry 上注册指标；reg 为 nil 时使用独立 registry
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ViewBuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_builds_total",
			Help:      "Total view builds by view and status",
		}, []string{"view", "status"}),
		ViewDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_duration_seconds",
			Help:      "Duration of a single view build",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"view"}),
		ArtifactItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_items",
			Help:      "Item counts reported by each emitted artifact",
		}, []string{"artifact", "item"}),
		SinkWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Total artifact writes by sink and status",
		}, []string{"sink", "status"}),
		LedgerTransactions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_transactions",
			Help:      "Transactions in the most recently loaded ledger",
		}),
		gatherer: reg,
	}
}

// RecordView 记录一次视图构建
func (m *Metrics) RecordView(view string, d time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.ViewBuildsTotal.WithLabelValues(view, status).Inc()
	m.ViewDurationSeconds.WithLabelValues(view).Observe(d.Seconds())
}

// RecordArtifact 记录文档计数
func (m *Metrics) RecordArtifact(artifact string, counts map[string]int) {
	for item, n := range counts {
		m.ArtifactItems.WithLabelValues(artifact, item).Set(float64(n))
	}
}

// RecordSink 记录一次输出写入
func (m *Metrics) RecordSink(sink string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.SinkWritesTotal.WithLabelValues(sink, status).Inc()
}

// Serve 在 addr 上暴露 /metrics，ctx 结束时关闭
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

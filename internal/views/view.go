package views

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"veia/viewsync/internal/ledger"
)

// 视图名称
const (
	NameNetwork      = "network"
	NameTimeline     = "timeline"
	NameParticles    = "particles"
	NameGeoFlows     = "geo_flows"
	NameWashRing     = "wash_ring"
	NameMarketplaces = "marketplaces"
	NameStats        = "stats"
)

// Artifact 视图产出的一个独立文档
type Artifact struct {
	Name    string         // 文件名（不含扩展名）
	Payload interface{}    // 序列化对象
	Counts  map[string]int // 运行日志中汇报的计数
}

// View 视图构建器：只读账本，输出一个或多个文档
type View interface {
	Name() string
	Build(ctx context.Context, l *ledger.Ledger, rng *rand.Rand) ([]Artifact, error)
}

// Params 各视图的固定参数
type Params struct {
	TopBuyers         int
	TopSellers        int
	ParticleSample    int
	MarketplaceSample int
	RingLabel         string
	RingTopN          int
	RingEdgeCap       int
	DashboardSample   int
	TopAnomalies      int
	FlareThreshold    float64
	Now               func() time.Time
}

// DefaultParams 前端约定的默认参数
func DefaultParams() Params {
	return Params{
		TopBuyers:         80,
		TopSellers:        80,
		ParticleSample:    2000,
		MarketplaceSample: 1000,
		RingLabel:         "wash_trade_ring",
		RingTopN:          20,
		RingEdgeCap:       200,
		DashboardSample:   500,
		TopAnomalies:      100,
		FlareThreshold:    2,
		Now:               time.Now,
	}
}

func (p Params) generatedAt() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().Format(time.RFC3339)
}

// All 返回全部视图（固定顺序）
func All(p Params) []View {
	return []View{
		NewGraphView(p),
		NewTimelineView(p),
		NewParticleView(p),
		NewGeoFlowView(p),
		NewRingView(p),
		NewMarketplaceView(p),
		NewStatsView(p),
	}
}

// NewRand 为每个视图派生独立的随机流
// 相同 seed 与视图名得到相同序列
func NewRand(seed int64, view string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(view))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
}

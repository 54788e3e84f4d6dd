package views

import (
	"context"
	"math/rand"

	"veia/viewsync/internal/ledger"
)

// Point3 三维坐标
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// MarketPoint 市场簇中的一个采样点
type MarketPoint struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	IsAnomaly   bool    `json:"is_anomaly"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	AnomalyType string  `json:"anomaly_type"`
}

// MarketStats 市场统计（基于完整子集，不是采样）
type MarketStats struct {
	TotalTransactions int     `json:"total_transactions"`
	TotalValue        float64 `json:"total_value"`
	AnomalyCount      int     `json:"anomaly_count"`
	AnomalyRate       float64 `json:"anomaly_rate"`
}

// MarketplaceCluster 单个市场簇
type MarketplaceCluster struct {
	Name   string        `json:"name"`
	Center Point3        `json:"center"`
	Points []MarketPoint `json:"points"`
	Stats  MarketStats   `json:"stats"`
}

// MarketplaceMeta 元信息
type MarketplaceMeta struct {
	TotalPoints int      `json:"total_points"`
	Omitted     []string `json:"omitted,omitempty"` // 没有交易的市场
	GeneratedAt string   `json:"generated_at"`
}

// MarketplacesDoc marketplaces.json
type MarketplacesDoc struct {
	Marketplaces []MarketplaceCluster `json:"marketplaces"`
	Metadata     MarketplaceMeta      `json:"metadata"`
}

// marketplaceCenters 固定的市场中心点
var marketplaceCenters = []struct {
	Name   string
	Center Point3
}{
	{"Prime", Point3{X: -40}},
	{"Shadow", Point3{}},
	{"Arcade", Point3{X: 40}},
}

const marketJitter = 8.0

// MarketplaceView 市场空间簇
type MarketplaceView struct {
	params Params
}

// NewMarketplaceView 创建市场簇视图
func NewMarketplaceView(p Params) *MarketplaceView {
	return &MarketplaceView{params: p}
}

// Name 视图名称
func (v *MarketplaceView) Name() string { return NameMarketplaces }

// Build 每个市场抽样 min(N, 交易数) 个点，统计基于完整子集
func (v *MarketplaceView) Build(ctx context.Context, l *ledger.Ledger, rng *rand.Rand) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clusters := make([]MarketplaceCluster, 0, len(marketplaceCenters))
	omitted := make([]string, 0)
	totalPoints := 0

	for _, mc := range marketplaceCenters {
		name := mc.Name
		subset := l.Filter(func(t *ledger.Transaction) bool {
			return t.Marketplace == name
		})
		// 空组直接省略，不输出 NaN 比率
		if len(subset) == 0 {
			omitted = append(omitted, name)
			continue
		}

		stats := MarketStats{TotalTransactions: len(subset)}
		for _, txn := range subset {
			stats.TotalValue += txn.Price
			if txn.IsAnomaly {
				stats.AnomalyCount++
			}
		}
		stats.AnomalyRate = float64(stats.AnomalyCount) / float64(stats.TotalTransactions)

		idxs := sampleIndices(rng, len(subset), v.params.MarketplaceSample)
		points := make([]MarketPoint, 0, len(idxs))
		for _, idx := range idxs {
			txn := subset[idx]
			points = append(points, MarketPoint{
				X:           mc.Center.X + rng.NormFloat64()*marketJitter,
				Y:           mc.Center.Y + rng.NormFloat64()*marketJitter,
				Z:           mc.Center.Z + rng.NormFloat64()*marketJitter,
				IsAnomaly:   txn.IsAnomaly,
				Price:       txn.Price,
				Category:    txn.Category,
				AnomalyType: txn.AnomalyLabel,
			})
		}
		totalPoints += len(points)

		clusters = append(clusters, MarketplaceCluster{
			Name:   name,
			Center: mc.Center,
			Points: points,
			Stats:  stats,
		})
	}

	doc := &MarketplacesDoc{
		Marketplaces: clusters,
		Metadata: MarketplaceMeta{
			TotalPoints: totalPoints,
			Omitted:     omitted,
			GeneratedAt: v.params.generatedAt(),
		},
	}

	return []Artifact{{
		Name:    NameMarketplaces,
		Payload: doc,
		Counts:  map[string]int{"clusters": len(clusters), "points": totalPoints},
	}}, nil
}

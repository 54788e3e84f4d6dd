package views

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/axiomhq/hyperloglog"

	"veia/viewsync/internal/ledger"
	"veia/viewsync/pkg/errorutil"
)

// 统计视图额外输出的看板文档
const (
	NameTransactions = "transactions"
	NameAnomalies    = "anomalies"
	NameCategories   = "categories"
)

// Overview 全局概览
type Overview struct {
	TotalTransactions     int       `json:"total_transactions"`
	TotalAnomalies        int       `json:"total_anomalies"`
	DetectionRate         float64   `json:"detection_rate"`
	TotalVolume           float64   `json:"total_volume"`
	Timeframe             Timeframe `json:"timeframe"`
	UniqueTradersEstimate uint64    `json:"unique_traders_estimate"` // HyperLogLog 近似值
}

// AnomalyBreakdown 单个异常类型汇总
type AnomalyBreakdown struct {
	Type      string  `json:"type"`
	Count     int     `json:"count"`
	AvgPrice  float64 `json:"avg_price"`
	AvgZScore float64 `json:"avg_z_score"`
}

// MarketplaceSummary 单个市场汇总
type MarketplaceSummary struct {
	Name         string  `json:"name"`
	Transactions int     `json:"transactions"`
	AnomalyRate  float64 `json:"anomaly_rate"`
	TotalValue   float64 `json:"total_value"`
}

// CategorySummary 单个类目汇总
type CategorySummary struct {
	Total       int     `json:"total"`
	Anomalies   int     `json:"anomalies"`
	AnomalyRate float64 `json:"anomaly_rate"`
}

// StatsMeta 元信息
type StatsMeta struct {
	TotalAnomalyTypes  int    `json:"total_anomaly_types"`
	TotalMarketplaces  int    `json:"total_marketplaces"`
	TotalCategories    int    `json:"total_categories"`
	DashboardSample    int    `json:"dashboard_sample"`
	TopAnomaliesListed int    `json:"top_anomalies_listed"`
	GeneratedAt        string `json:"generated_at"`
}

// StatsDoc stats.json
type StatsDoc struct {
	Overview         Overview                   `json:"overview"`
	AnomalyBreakdown []AnomalyBreakdown         `json:"anomaly_breakdown"`
	Marketplaces     []MarketplaceSummary       `json:"marketplaces"`
	Categories       map[string]CategorySummary `json:"categories"`
	Metadata         StatsMeta                  `json:"metadata"`
}

// DashboardTransaction 看板交易样本（固定字段子集）
type DashboardTransaction struct {
	TransactionID string  `json:"transaction_id"`
	Timestamp     string  `json:"timestamp"`
	BuyerID       string  `json:"buyer_id"`
	SellerID      string  `json:"seller_id"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	Marketplace   string  `json:"marketplace"`
	IsAnomaly     bool    `json:"is_anomaly"`
	AnomalyLabel  string  `json:"anomaly_label"`
}

// DashboardAnomaly 偏离最大的异常交易
type DashboardAnomaly struct {
	TransactionID string  `json:"transaction_id"`
	Timestamp     string  `json:"timestamp"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	PriceZ        float64 `json:"price_z"`
	AnomalyLabel  string  `json:"anomaly_label"`
	AnomalyNotes  *string `json:"anomaly_notes"`
}

// StatsView 全局统计与看板样本
// 看板样本仅用于展示，不具备统计代表性
type StatsView struct {
	params Params
}

// NewStatsView 创建统计视图
func NewStatsView(p Params) *StatsView {
	return &StatsView{params: p}
}

// Name 视图名称
func (v *StatsView) Name() string { return NameStats }

type groupAgg struct {
	count     int
	anomalies int
	value     float64
	absZ      float64
}

// Build 输出 stats / transactions / anomalies / categories 四个文档
func (v *StatsView) Build(ctx context.Context, l *ledger.Ledger, rng *rand.Rand) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// 检出率的分母必须非零
	if l.Len() == 0 {
		return nil, errorutil.EmptyLedger(NameStats)
	}

	// 1. 单遍扫描，各分组按首次出现顺序
	var (
		total     groupAgg
		types     = newFirstSeen()
		markets   = newFirstSeen()
		cats      = newFirstSeen()
		typeAggs  []*groupAgg
		mktAggs   []*groupAgg
		catAggs   []*groupAgg
		traderHLL = hyperloglog.New16()
	)
	for i := range l.Transactions {
		txn := &l.Transactions[i]

		total.count++
		total.value += txn.Price
		if txn.IsAnomaly {
			total.anomalies++
			typeAggs = addTo(typeAggs, types.add(txn.AnomalyLabel), txn)
		}
		mktAggs = addTo(mktAggs, markets.add(txn.Marketplace), txn)
		catAggs = addTo(catAggs, cats.add(txn.Category), txn)

		traderHLL.Insert([]byte(txn.BuyerID))
		traderHLL.Insert([]byte(txn.SellerID))
	}

	doc := &StatsDoc{
		Overview: Overview{
			TotalTransactions:     total.count,
			TotalAnomalies:        total.anomalies,
			DetectionRate:         float64(total.anomalies) / float64(total.count),
			TotalVolume:           total.value,
			Timeframe:             ledgerTimeframe(l),
			UniqueTradersEstimate: traderHLL.Estimate(),
		},
		AnomalyBreakdown: make([]AnomalyBreakdown, 0, len(typeAggs)),
		Marketplaces:     make([]MarketplaceSummary, 0, len(mktAggs)),
		Categories:       make(map[string]CategorySummary, len(catAggs)),
		Metadata:         StatsMeta{GeneratedAt: v.params.generatedAt()},
	}
	for i, agg := range typeAggs {
		doc.AnomalyBreakdown = append(doc.AnomalyBreakdown, AnomalyBreakdown{
			Type:      types.order[i],
			Count:     agg.count,
			AvgPrice:  mean(agg.value, agg.count),
			AvgZScore: mean(agg.absZ, agg.count),
		})
	}
	for i, agg := range mktAggs {
		doc.Marketplaces = append(doc.Marketplaces, MarketplaceSummary{
			Name:         markets.order[i],
			Transactions: agg.count,
			AnomalyRate:  float64(agg.anomalies) / float64(agg.count),
			TotalValue:   agg.value,
		})
	}
	for i, agg := range catAggs {
		doc.Categories[cats.order[i]] = CategorySummary{
			Total:       agg.count,
			Anomalies:   agg.anomalies,
			AnomalyRate: float64(agg.anomalies) / float64(agg.count),
		}
	}

	// 2. 看板样本
	sample := v.sampleTransactions(l, rng)
	top := v.topAnomalies(l)

	doc.Metadata.TotalAnomalyTypes = len(doc.AnomalyBreakdown)
	doc.Metadata.TotalMarketplaces = len(doc.Marketplaces)
	doc.Metadata.TotalCategories = len(doc.Categories)
	doc.Metadata.DashboardSample = len(sample)
	doc.Metadata.TopAnomaliesListed = len(top)

	return []Artifact{
		{
			Name:    NameStats,
			Payload: doc,
			Counts: map[string]int{
				"anomaly_types": doc.Metadata.TotalAnomalyTypes,
				"marketplaces":  doc.Metadata.TotalMarketplaces,
				"categories":    doc.Metadata.TotalCategories,
			},
		},
		{Name: NameTransactions, Payload: sample, Counts: map[string]int{"rows": len(sample)}},
		{Name: NameAnomalies, Payload: top, Counts: map[string]int{"rows": len(top)}},
		{Name: NameCategories, Payload: doc.Categories, Counts: map[string]int{"categories": len(doc.Categories)}},
	}, nil
}

func addTo(aggs []*groupAgg, idx int, txn *ledger.Transaction) []*groupAgg {
	if idx == len(aggs) {
		aggs = append(aggs, &groupAgg{})
	}
	agg := aggs[idx]
	agg.count++
	agg.value += txn.Price
	agg.absZ += math.Abs(txn.PriceZ)
	if txn.IsAnomaly {
		agg.anomalies++
	}
	return aggs
}

// sampleTransactions 随机抽取 min(N, 总数) 行
func (v *StatsView) sampleTransactions(l *ledger.Ledger, rng *rand.Rand) []DashboardTransaction {
	idxs := sampleIndices(rng, l.Len(), v.params.DashboardSample)
	rows := make([]DashboardTransaction, 0, len(idxs))
	for _, idx := range idxs {
		txn := &l.Transactions[idx]
		rows = append(rows, DashboardTransaction{
			TransactionID: txn.TransactionID,
			Timestamp:     ledger.FormatTimestamp(txn.Timestamp),
			BuyerID:       txn.BuyerID,
			SellerID:      txn.SellerID,
			Category:      txn.Category,
			Price:         txn.Price,
			Marketplace:   txn.Marketplace,
			IsAnomaly:     txn.IsAnomaly,
			AnomalyLabel:  txn.AnomalyLabel,
		})
	}
	return rows
}

// topAnomalies 按 |z| 降序取前 N 个异常，相同 |z| 保持账本顺序
func (v *StatsView) topAnomalies(l *ledger.Ledger) []DashboardAnomaly {
	anomalies := l.Filter(func(t *ledger.Transaction) bool { return t.IsAnomaly })
	sort.SliceStable(anomalies, func(i, j int) bool {
		return math.Abs(anomalies[i].PriceZ) > math.Abs(anomalies[j].PriceZ)
	})
	if n := v.params.TopAnomalies; n < len(anomalies) {
		anomalies = anomalies[:n]
	}

	rows := make([]DashboardAnomaly, 0, len(anomalies))
	for _, txn := range anomalies {
		var notes *string
		if txn.AnomalyNotes != "" {
			n := txn.AnomalyNotes
			notes = &n
		}
		rows = append(rows, DashboardAnomaly{
			TransactionID: txn.TransactionID,
			Timestamp:     ledger.FormatTimestamp(txn.Timestamp),
			Category:      txn.Category,
			Price:         txn.Price,
			PriceZ:        txn.PriceZ,
			AnomalyLabel:  txn.AnomalyLabel,
			AnomalyNotes:  notes,
		})
	}
	return rows
}

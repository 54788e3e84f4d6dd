package views

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"veia/viewsync/internal/ledger"
)

// DailyBucket 某类异常在某一天（按月内日期）的汇总
type DailyBucket struct {
	Day       int     `json:"day"`
	Count     int     `json:"count"`
	Value     float64 `json:"value"`
	Intensity float64 `json:"intensity"` // 当日 mean|z|
}

// AnomalyTimeline 单个异常类型的时间序列
type AnomalyTimeline struct {
	Type        string        `json:"type"`
	TotalCount  int           `json:"total_count"`
	AvgPrice    float64       `json:"avg_price"`
	AvgZScore   float64       `json:"avg_z_score"`
	DailyCounts []DailyBucket `json:"daily_counts"`
}

// Timeframe 时间范围
type Timeframe struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TimelineMeta 时间线元信息
type TimelineMeta struct {
	Timeframe      Timeframe `json:"timeframe"`
	TotalAnomalies int       `json:"total_anomalies"`
	GeneratedAt    string    `json:"generated_at"`
}

// TimelineDoc timeline.json
type TimelineDoc struct {
	AnomalyTypes []AnomalyTimeline `json:"anomaly_types"`
	Metadata     TimelineMeta      `json:"metadata"`
}

// TimelineView 异常时间线
// 按月内日期分桶：跨月的同一天会合并到同一个桶
type TimelineView struct {
	params Params
}

// NewTimelineView 创建时间线视图
func NewTimelineView(p Params) *TimelineView {
	return &TimelineView{params: p}
}

// Name 视图名称
func (v *TimelineView) Name() string { return NameTimeline }

type dayAgg struct {
	count   int
	value   float64
	absZSum float64
}

type typeAgg struct {
	count   int
	price   float64
	absZSum float64
	days    map[int]*dayAgg
}

// Build 按异常类型、日期分组
func (v *TimelineView) Build(ctx context.Context, l *ledger.Ledger, _ *rand.Rand) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	types := newFirstSeen()
	aggs := make([]*typeAgg, 0)
	total := 0

	for i := range l.Transactions {
		txn := &l.Transactions[i]
		if !txn.IsAnomaly {
			continue
		}
		total++

		idx := types.add(txn.AnomalyLabel)
		if idx == len(aggs) {
			aggs = append(aggs, &typeAgg{days: make(map[int]*dayAgg)})
		}
		agg := aggs[idx]
		absZ := math.Abs(txn.PriceZ)
		agg.count++
		agg.price += txn.Price
		agg.absZSum += absZ

		day := txn.Timestamp.Day()
		d, ok := agg.days[day]
		if !ok {
			d = &dayAgg{}
			agg.days[day] = d
		}
		d.count++
		d.value += txn.Price
		d.absZSum += absZ
	}

	series := make([]AnomalyTimeline, 0, len(aggs))
	for i, agg := range aggs {
		days := make([]int, 0, len(agg.days))
		for day := range agg.days {
			days = append(days, day)
		}
		sort.Ints(days)

		buckets := make([]DailyBucket, 0, len(days))
		for _, day := range days {
			d := agg.days[day]
			buckets = append(buckets, DailyBucket{
				Day:       day,
				Count:     d.count,
				Value:     d.value,
				Intensity: mean(d.absZSum, d.count),
			})
		}

		series = append(series, AnomalyTimeline{
			Type:        types.order[i],
			TotalCount:  agg.count,
			AvgPrice:    mean(agg.price, agg.count),
			AvgZScore:   mean(agg.absZSum, agg.count),
			DailyCounts: buckets,
		})
	}

	doc := &TimelineDoc{
		AnomalyTypes: series,
		Metadata: TimelineMeta{
			Timeframe:      ledgerTimeframe(l),
			TotalAnomalies: total,
			GeneratedAt:    v.params.generatedAt(),
		},
	}

	return []Artifact{{
		Name:    NameTimeline,
		Payload: doc,
		Counts:  map[string]int{"anomaly_types": len(series)},
	}}, nil
}

func ledgerTimeframe(l *ledger.Ledger) Timeframe {
	if l.Len() == 0 {
		return Timeframe{}
	}
	start, end := l.Timeframe()
	return Timeframe{
		Start: ledger.FormatTimestamp(start),
		End:   ledger.FormatTimestamp(end),
	}
}

package views

import (
	"context"
	"math/rand"
	"sort"

	"veia/viewsync/internal/ledger"
	"veia/viewsync/pkg/errorutil"
)

// RegionCoord 区域坐标
type RegionCoord struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

// Flow 跨区域交易流
type Flow struct {
	Source       string      `json:"source"`
	Target       string      `json:"target"`
	SourceCoords RegionCoord `json:"source_coords"`
	TargetCoords RegionCoord `json:"target_coords"`
	Marketplace  string      `json:"marketplace"`
	TxCount      int         `json:"tx_count"`
	TotalValue   float64     `json:"total_value"`
	AnomalyCount int         `json:"anomaly_count"`
	AnomalyRate  float64     `json:"anomaly_rate"`
	Intensity    float64     `json:"intensity"`
}

// RegionSummary 区域汇总
type RegionSummary struct {
	Code              string  `json:"code"`
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	Name              string  `json:"name"`
	TotalTransactions int     `json:"total_transactions"`
}

// GeoMeta 元信息
type GeoMeta struct {
	TotalFlows  int    `json:"total_flows"`
	GeneratedAt string `json:"generated_at"`
}

// GeoDoc geo_flows.json
type GeoDoc struct {
	Flows    []Flow          `json:"flows"`
	Regions  []RegionSummary `json:"regions"`
	Metadata GeoMeta         `json:"metadata"`
}

// 区域坐标表（封闭集合）
var regionCodes = []string{"EU", "SEA", "EAST_ASIA", "OCE", "LATAM"}

var regionCoords = map[string]RegionCoord{
	"EU":        {Lat: 50, Lon: 10, Name: "Europe"},
	"SEA":       {Lat: 10, Lon: 105, Name: "Southeast Asia"},
	"EAST_ASIA": {Lat: 35, Lon: 120, Name: "East Asia"},
	"OCE":       {Lat: -25, Lon: 135, Name: "Oceania"},
	"LATAM":     {Lat: -10, Lon: -60, Name: "Latin America"},
}

// LookupRegion 查询区域坐标，未知区域返回 MissingLookup 错误
func LookupRegion(code string) (RegionCoord, error) {
	coord, ok := regionCoords[code]
	if !ok {
		return RegionCoord{}, errorutil.MissingLookup("region", code)
	}
	return coord, nil
}

// GeoFlowView 跨区域交易流
type GeoFlowView struct {
	params Params
}

// NewGeoFlowView 创建区域流视图
func NewGeoFlowView(p Params) *GeoFlowView {
	return &GeoFlowView{params: p}
}

// Name 视图名称
func (v *GeoFlowView) Name() string { return NameGeoFlows }

type flowKey struct {
	source, target, marketplace string
}

type flowAgg struct {
	count     int
	value     float64
	anomalies int
}

// Build 按 (买方区域, 卖方区域, 市场) 分组，丢弃同区域自环
func (v *GeoFlowView) Build(ctx context.Context, l *ledger.Ledger, _ *rand.Rand) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := make(map[flowKey]*flowAgg)
	regionTotals := make(map[string]int, len(regionCodes))
	for i := range l.Transactions {
		txn := &l.Transactions[i]

		regionTotals[txn.BuyerRegion]++
		if txn.SellerRegion != txn.BuyerRegion {
			regionTotals[txn.SellerRegion]++
			key := flowKey{txn.BuyerRegion, txn.SellerRegion, txn.Marketplace}
			agg, ok := groups[key]
			if !ok {
				agg = &flowAgg{}
				groups[key] = agg
			}
			agg.count++
			agg.value += txn.Price
			if txn.IsAnomaly {
				agg.anomalies++
			}
		}
	}

	keys := make([]flowKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		if keys[i].target != keys[j].target {
			return keys[i].target < keys[j].target
		}
		return keys[i].marketplace < keys[j].marketplace
	})

	flows := make([]Flow, 0, len(keys))
	for _, k := range keys {
		src, err := LookupRegion(k.source)
		if err != nil {
			return nil, err
		}
		dst, err := LookupRegion(k.target)
		if err != nil {
			return nil, err
		}

		agg := groups[k]
		// 组存在即至少一笔交易，分母非零
		rate := float64(agg.anomalies) / float64(agg.count)
		flows = append(flows, Flow{
			Source:       k.source,
			Target:       k.target,
			SourceCoords: src,
			TargetCoords: dst,
			Marketplace:  k.marketplace,
			TxCount:      agg.count,
			TotalValue:   agg.value,
			AnomalyCount: agg.anomalies,
			AnomalyRate:  rate,
			Intensity:    clampUnit(rate),
		})
	}

	regions := make([]RegionSummary, 0, len(regionCodes))
	for _, code := range regionCodes {
		coord := regionCoords[code]
		regions = append(regions, RegionSummary{
			Code:              code,
			Lat:               coord.Lat,
			Lon:               coord.Lon,
			Name:              coord.Name,
			TotalTransactions: regionTotals[code],
		})
	}

	doc := &GeoDoc{
		Flows:   flows,
		Regions: regions,
		Metadata: GeoMeta{
			TotalFlows:  len(flows),
			GeneratedAt: v.params.generatedAt(),
		},
	}

	return []Artifact{{
		Name:    NameGeoFlows,
		Payload: doc,
		Counts:  map[string]int{"flows": len(flows)},
	}}, nil
}

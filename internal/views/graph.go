package views

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"veia/viewsync/internal/ledger"
)

// GraphNode 交互图节点
type GraphNode struct {
	ID           string  `json:"id"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
	TxCount      int     `json:"tx_count"`
	AnomalyCount int     `json:"anomaly_count"`
	TotalValue   float64 `json:"total_value"`
	Region       string  `json:"region"`
	KYC          bool    `json:"kyc"`
}

// GraphEdge 买方→卖方有向边（同一对交易合并）
type GraphEdge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	TxCount      int     `json:"tx_count"`
	TotalValue   float64 `json:"total_value"`
	AvgPriceZ    float64 `json:"avg_price_z"`
	AnomalyCount int     `json:"anomaly_count"`
	AnomalyType  string  `json:"anomaly_type"`
	Intensity    float64 `json:"intensity"`
}

// NetworkMeta 交互图元信息
type NetworkMeta struct {
	TotalNodes    int    `json:"total_nodes"`
	TotalEdges    int    `json:"total_edges"`
	DateGenerated string `json:"date_generated"`
}

// NetworkDoc network.json
type NetworkDoc struct {
	Nodes    []GraphNode `json:"nodes"`
	Edges    []GraphEdge `json:"edges"`
	Metadata NetworkMeta `json:"metadata"`
}

// 球面布局半径 50±10
const (
	sphereRadius = 50.0
	sphereJitter = 10.0
	// 边强度 = min(mean|z| / 2, 1)，可视化常量
	edgeIntensityScale = 2.0
)

// GraphView 用户交互图
type GraphView struct {
	params Params
}

// NewGraphView 创建交互图视图
func NewGraphView(p Params) *GraphView {
	return &GraphView{params: p}
}

// Name 视图名称
func (v *GraphView) Name() string { return NameNetwork }

// Build 构建活跃用户子图
func (v *GraphView) Build(ctx context.Context, l *ledger.Ledger, rng *rand.Rand) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	active := activeUsers(l, v.params.TopBuyers, v.params.TopSellers)
	inActive := make(map[string]int, len(active))
	for i, id := range active {
		inActive[id] = i
	}

	// 1. 节点统计：用户作为买方或卖方的全部交易
	nodes := make([]GraphNode, len(active))
	for i, id := range active {
		nodes[i] = GraphNode{
			ID:     id,
			Region: l.UserRegion(id),
			KYC:    l.UserKYC(id),
		}
	}
	for i := range l.Transactions {
		txn := &l.Transactions[i]
		if idx, ok := inActive[txn.BuyerID]; ok {
			accumulateNode(&nodes[idx], txn)
		}
		if txn.SellerID == txn.BuyerID {
			continue
		}
		if idx, ok := inActive[txn.SellerID]; ok {
			accumulateNode(&nodes[idx], txn)
		}
	}

	// 2. 坐标：球面上的随机位置，仅用于展示
	for i := range nodes {
		theta := rng.Float64() * 2 * math.Pi
		phi := rng.Float64() * math.Pi
		r := sphereRadius + (rng.Float64()*2-1)*sphereJitter
		nodes[i].X = r * math.Sin(phi) * math.Cos(theta)
		nodes[i].Y = r * math.Sin(phi) * math.Sin(theta)
		nodes[i].Z = r * math.Cos(phi)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. 边：两端都在活跃集合内的交易，按 (买方, 卖方) 分组
	edges := buildEdges(l, inActive)

	doc := &NetworkDoc{
		Nodes: nodes,
		Edges: edges,
		Metadata: NetworkMeta{
			TotalNodes:    len(nodes),
			TotalEdges:    len(edges),
			DateGenerated: v.params.generatedAt(),
		},
	}

	return []Artifact{{
		Name:    NameNetwork,
		Payload: doc,
		Counts:  map[string]int{"nodes": len(nodes), "edges": len(edges)},
	}}, nil
}

// activeUsers 高频买方与高频卖方的并集
func activeUsers(l *ledger.Ledger, topBuyers, topSellers int) []string {
	buyers := make([]string, len(l.Transactions))
	sellers := make([]string, len(l.Transactions))
	for i := range l.Transactions {
		buyers[i] = l.Transactions[i].BuyerID
		sellers[i] = l.Transactions[i].SellerID
	}

	set := newFirstSeen()
	for _, id := range rankByFrequency(buyers, topBuyers) {
		set.add(id)
	}
	for _, id := range rankByFrequency(sellers, topSellers) {
		set.add(id)
	}
	return set.order
}

func accumulateNode(n *GraphNode, txn *ledger.Transaction) {
	n.TxCount++
	n.TotalValue += txn.Price
	if txn.IsAnomaly {
		n.AnomalyCount++
	}
}

type edgeGroup struct {
	source, target string
	count          int
	value          float64
	absZSum        float64
	anomalies      int
	labels         *firstSeen
	labelCounts    []int
}

// mode 出现次数最多的标签，并列时取最先出现的
func (g *edgeGroup) mode() string {
	best := 0
	for i, c := range g.labelCounts {
		if c > g.labelCounts[best] {
			best = i
		}
	}
	return g.labels.order[best]
}

func buildEdges(l *ledger.Ledger, inActive map[string]int) []GraphEdge {
	groups := make(map[[2]string]*edgeGroup)
	for i := range l.Transactions {
		txn := &l.Transactions[i]
		if _, ok := inActive[txn.BuyerID]; !ok {
			continue
		}
		if _, ok := inActive[txn.SellerID]; !ok {
			continue
		}

		key := [2]string{txn.BuyerID, txn.SellerID}
		g, ok := groups[key]
		if !ok {
			g = &edgeGroup{source: txn.BuyerID, target: txn.SellerID, labels: newFirstSeen()}
			groups[key] = g
		}
		g.count++
		g.value += txn.Price
		g.absZSum += math.Abs(txn.PriceZ)
		if txn.IsAnomaly {
			g.anomalies++
		}
		idx := g.labels.add(txn.AnomalyLabel)
		if idx == len(g.labelCounts) {
			g.labelCounts = append(g.labelCounts, 0)
		}
		g.labelCounts[idx]++
	}

	edges := make([]GraphEdge, 0, len(groups))
	for _, g := range groups {
		avgZ := mean(g.absZSum, g.count)
		edges = append(edges, GraphEdge{
			Source:       g.source,
			Target:       g.target,
			TxCount:      g.count,
			TotalValue:   g.value,
			AvgPriceZ:    avgZ,
			AnomalyCount: g.anomalies,
			AnomalyType:  g.mode(),
			Intensity:    clampUnit(avgZ / edgeIntensityScale),
		})
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

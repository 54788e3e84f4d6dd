package views

import (
	"context"
	"math"
	"math/rand"

	"veia/viewsync/internal/ledger"
)

// RingNode 团伙成员（圆周布局）
type RingNode struct {
	ID             string  `json:"id"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	RingPosition   int     `json:"ring_position"`
	WashTradeCount int     `json:"wash_trade_count"`
}

// RingEdge 成员之间的一笔交易
type RingEdge struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	IsWashTrade bool    `json:"is_wash_trade"`
	Price       float64 `json:"price"`
	Timestamp   string  `json:"timestamp"`
}

// RingMeta 元信息
type RingMeta struct {
	TotalWashTrades int    `json:"total_wash_trades"`
	RingSize        int    `json:"ring_size"`
	TotalRingEdges  int    `json:"total_ring_edges"` // 截断前的边数
	EdgeCap         int    `json:"edge_cap"`
	Label           string `json:"label"`
	GeneratedAt     string `json:"generated_at"`
}

// RingDoc wash_ring.json
type RingDoc struct {
	Nodes    []RingNode `json:"nodes"`
	Edges    []RingEdge `json:"edges"`
	Metadata RingMeta   `json:"metadata"`
}

const ringRadius = 30.0

// RingView 对倒团伙子图
// 边按账本顺序截取前 EdgeCap 条，不做排序
type RingView struct {
	params Params
}

// NewRingView 创建团伙视图
func NewRingView(p Params) *RingView {
	return &RingView{params: p}
}

// Name 视图名称
func (v *RingView) Name() string { return NameWashRing }

// Build 取指定标签交易中出现最频繁的用户，构建其导出子图
func (v *RingView) Build(ctx context.Context, l *ledger.Ledger, _ *rand.Rand) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	label := v.params.RingLabel

	// 1. 标签交易中买方、卖方出现次数（先全部买方，再全部卖方）
	ringTxns := l.Filter(func(t *ledger.Transaction) bool {
		return t.AnomalyLabel == label
	})
	ids := make([]string, 0, 2*len(ringTxns))
	for _, txn := range ringTxns {
		ids = append(ids, txn.BuyerID)
	}
	for _, txn := range ringTxns {
		ids = append(ids, txn.SellerID)
	}
	members := rankByFrequency(ids, v.params.RingTopN)

	position := make(map[string]int, len(members))
	for i, id := range members {
		position[id] = i
	}

	// 2. 每个成员涉及的标签交易数（自成交只计一次）
	washCounts := make([]int, len(members))
	for _, txn := range ringTxns {
		if idx, ok := position[txn.BuyerID]; ok {
			washCounts[idx]++
		}
		if txn.SellerID == txn.BuyerID {
			continue
		}
		if idx, ok := position[txn.SellerID]; ok {
			washCounts[idx]++
		}
	}

	nodes := make([]RingNode, len(members))
	for i, id := range members {
		angle := 2 * math.Pi * float64(i) / float64(len(members))
		nodes[i] = RingNode{
			ID:             id,
			X:              ringRadius * math.Cos(angle),
			Y:              ringRadius * math.Sin(angle),
			Z:              0,
			RingPosition:   i,
			WashTradeCount: washCounts[i],
		}
	}

	// 3. 导出子图：两端都是成员的全部交易（含非标签交易）
	edgeCap := v.params.RingEdgeCap
	edges := make([]RingEdge, 0)
	total := 0
	for i := range l.Transactions {
		txn := &l.Transactions[i]
		if _, ok := position[txn.BuyerID]; !ok {
			continue
		}
		if _, ok := position[txn.SellerID]; !ok {
			continue
		}
		total++
		if len(edges) >= edgeCap {
			continue
		}
		edges = append(edges, RingEdge{
			Source:      txn.BuyerID,
			Target:      txn.SellerID,
			IsWashTrade: txn.AnomalyLabel == label,
			Price:       txn.Price,
			Timestamp:   ledger.FormatTimestamp(txn.Timestamp),
		})
	}

	doc := &RingDoc{
		Nodes: nodes,
		Edges: edges,
		Metadata: RingMeta{
			TotalWashTrades: len(ringTxns),
			RingSize:        len(members),
			TotalRingEdges:  total,
			EdgeCap:         edgeCap,
			Label:           label,
			GeneratedAt:     v.params.generatedAt(),
		},
	}

	return []Artifact{{
		Name:    NameWashRing,
		Payload: doc,
		Counts:  map[string]int{"members": len(nodes), "transactions": total},
	}}, nil
}

package views

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veia/viewsync/internal/ledger"
)

func TestRingView_MembersAndInducedEdges(t *testing.T) {
	l := ledger.New([]ledger.Transaction{
		tx("1", "a", "b", "wash_trade_ring"),
		tx("2", "b", "a", "wash_trade_ring"),
		tx("3", "a", "c", "wash_trade_ring"),
		tx("4", "a", "b", "normal"),
		tx("5", "a", "z", "normal"),
		tx("6", "c", "c", "wash_trade_ring"),
	}, nil)

	p := testParams()
	p.RingTopN = 3
	art := buildOne(t, NewRingView(p), l)
	doc := art.Payload.(*RingDoc)

	// 出现次数 a=3 c=3 b=2，并列按首次出现顺序
	ids := make([]string, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids)

	wash := map[string]int{}
	for _, n := range doc.Nodes {
		wash[n.ID] = n.WashTradeCount
		assert.InDelta(t, ringRadius, math.Hypot(n.X, n.Y), 1e-9)
		assert.Zero(t, n.Z)
	}
	assert.Equal(t, map[string]int{"a": 3, "b": 2, "c": 2}, wash)

	// 非标签交易 4 也在子图内，交易 5 的卖方不是成员
	require.Len(t, doc.Edges, 5)
	assert.Equal(t, []bool{true, true, true, false, true}, []bool{
		doc.Edges[0].IsWashTrade, doc.Edges[1].IsWashTrade, doc.Edges[2].IsWashTrade,
		doc.Edges[3].IsWashTrade, doc.Edges[4].IsWashTrade,
	})
	assert.Equal(t, 4, doc.Metadata.TotalWashTrades)
	assert.Equal(t, 3, doc.Metadata.RingSize)
	assert.Equal(t, 5, doc.Metadata.TotalRingEdges)
}

func TestRingView_EdgeCapKeepsEncounterOrder(t *testing.T) {
	txns := make([]ledger.Transaction, 0, 300)
	for i := 0; i < 300; i++ {
		buyer, seller := "x", "y"
		if i%2 == 1 {
			buyer, seller = "y", "x"
		}
		txns = append(txns, tx(fmt.Sprintf("%03d", i), buyer, seller, "wash_trade_ring"))
	}
	l := ledger.New(txns, nil)

	doc := buildOne(t, NewRingView(testParams()), l).Payload.(*RingDoc)
	require.Len(t, doc.Edges, 200)
	assert.Equal(t, 300, doc.Metadata.TotalRingEdges)
	for i, e := range doc.Edges {
		assert.Equal(t, txns[i].BuyerID, e.Source)
		assert.Equal(t, txns[i].SellerID, e.Target)
	}
}

func TestRingView_LargeLedger(t *testing.T) {
	l := genLedger(10000, 13)
	doc := buildOne(t, NewRingView(testParams()), l).Payload.(*RingDoc)

	require.LessOrEqual(t, len(doc.Nodes), 20)
	members := make(map[string]bool)
	for _, n := range doc.Nodes {
		members[n.ID] = true
	}

	for _, n := range doc.Nodes {
		want := 0
		for _, txn := range l.Transactions {
			if txn.AnomalyLabel == "wash_trade_ring" && (txn.BuyerID == n.ID || txn.SellerID == n.ID) {
				want++
			}
		}
		assert.Equal(t, want, n.WashTradeCount, n.ID)
	}
	for _, e := range doc.Edges {
		assert.True(t, members[e.Source] && members[e.Target])
	}
	assert.LessOrEqual(t, len(doc.Edges), 200)
}

func TestRingView_NoRingTransactions(t *testing.T) {
	l := ledger.New([]ledger.Transaction{tx("1", "a", "b", "normal")}, nil)

	doc := buildOne(t, NewRingView(testParams()), l).Payload.(*RingDoc)
	assert.Empty(t, doc.Nodes)
	assert.Empty(t, doc.Edges)
}

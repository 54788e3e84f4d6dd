package views

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veia/viewsync/internal/ledger"
	"veia/viewsync/pkg/errorutil"
)

func buildStats(t *testing.T, p Params, l *ledger.Ledger) map[string]Artifact {
	t.Helper()
	arts, err := NewStatsView(p).Build(context.Background(), l, NewRand(42, NameStats))
	require.NoError(t, err)

	byName := make(map[string]Artifact, len(arts))
	for _, a := range arts {
		byName[a.Name] = a
	}
	require.Len(t, byName, 4)
	return byName
}

func TestStatsView_Overview(t *testing.T) {
	t1 := tx("1", "a", "b", "normal")
	t2 := tx("2", "b", "c", "price_spike")
	t2.Price = 30
	t2.PriceZ = -4
	t2.Marketplace = "Shadow"
	t2.Category = "weapon"
	t3 := tx("3", "a", "c", "price_spike")
	t3.Price = 50
	t3.PriceZ = 2
	t4 := tx("4", "d", "a", "wash_trade_ring")

	arts := buildStats(t, testParams(), ledger.New([]ledger.Transaction{t1, t2, t3, t4}, nil))
	doc := arts[NameStats].Payload.(*StatsDoc)

	assert.Equal(t, 4, doc.Overview.TotalTransactions)
	assert.Equal(t, 3, doc.Overview.TotalAnomalies)
	assert.Equal(t, 0.75, doc.Overview.DetectionRate)
	assert.Equal(t, 100.0, doc.Overview.TotalVolume)
	assert.InDelta(t, 4, float64(doc.Overview.UniqueTradersEstimate), 1)

	require.Len(t, doc.AnomalyBreakdown, 2)
	assert.Equal(t, AnomalyBreakdown{Type: "price_spike", Count: 2, AvgPrice: 40, AvgZScore: 3}, doc.AnomalyBreakdown[0])
	assert.Equal(t, "wash_trade_ring", doc.AnomalyBreakdown[1].Type)

	require.Len(t, doc.Marketplaces, 2)
	assert.Equal(t, MarketplaceSummary{Name: "Prime", Transactions: 3, AnomalyRate: 2.0 / 3, TotalValue: 70}, doc.Marketplaces[0])
	assert.Equal(t, MarketplaceSummary{Name: "Shadow", Transactions: 1, AnomalyRate: 1, TotalValue: 30}, doc.Marketplaces[1])

	assert.Equal(t, map[string]CategorySummary{
		"skin":   {Total: 3, Anomalies: 2, AnomalyRate: 2.0 / 3},
		"weapon": {Total: 1, Anomalies: 1, AnomalyRate: 1},
	}, doc.Categories)
	assert.Equal(t, doc.Categories, arts[NameCategories].Payload)

	assert.Equal(t, StatsMeta{
		TotalAnomalyTypes:  2,
		TotalMarketplaces:  2,
		TotalCategories:    2,
		DashboardSample:    4,
		TopAnomaliesListed: 3,
		GeneratedAt:        fixedNow.Format(time.RFC3339),
	}, doc.Metadata)
	assert.Equal(t, 2, arts[NameStats].Counts["anomaly_types"])
}

func TestStatsView_EmptyLedgerFails(t *testing.T) {
	_, err := NewStatsView(testParams()).Build(context.Background(), ledger.New(nil, nil), NewRand(1, NameStats))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errorutil.ErrEmptyLedger))
}

func TestStatsView_TopAnomaliesSortedByAbsZ(t *testing.T) {
	l := genLedger(5000, 23)
	arts := buildStats(t, testParams(), l)

	top := arts[NameAnomalies].Payload.([]DashboardAnomaly)
	require.Len(t, top, 100)
	assert.True(t, sort.SliceIsSorted(top, func(i, j int) bool {
		return math.Abs(top[i].PriceZ) > math.Abs(top[j].PriceZ)
	}))

	// 第 100 名之后的异常 |z| 都不大于第 100 名
	cut := math.Abs(top[99].PriceZ)
	in := make(map[string]bool, len(top))
	for _, a := range top {
		in[a.TransactionID] = true
		assert.NotEqual(t, "normal", a.AnomalyLabel)
	}
	for _, txn := range l.Transactions {
		if txn.IsAnomaly && !in[txn.TransactionID] {
			assert.LessOrEqual(t, math.Abs(txn.PriceZ), cut)
		}
	}
}

func TestStatsView_FewAnomaliesReturnsAll(t *testing.T) {
	txns := make([]ledger.Transaction, 0)
	for i := 0; i < 30; i++ {
		label := "normal"
		if i < 7 {
			label = "price_spike"
		}
		txn := tx(fmt.Sprintf("t%d", i), "a", "b", label)
		txn.PriceZ = float64(i % 3)
		if i == 0 {
			txn.AnomalyNotes = "seller flagged twice"
		}
		txns = append(txns, txn)
	}

	arts := buildStats(t, testParams(), ledger.New(txns, nil))
	top := arts[NameAnomalies].Payload.([]DashboardAnomaly)
	require.Len(t, top, 7)

	// |z| 相同保持账本顺序：z=2 的 t2、t5 在前
	assert.Equal(t, "t2", top[0].TransactionID)
	assert.Equal(t, "t5", top[1].TransactionID)

	notes := 0
	for _, a := range top {
		if a.AnomalyNotes != nil {
			notes++
			assert.Equal(t, "seller flagged twice", *a.AnomalyNotes)
		}
	}
	assert.Equal(t, 1, notes)

	sample := arts[NameTransactions].Payload.([]DashboardTransaction)
	assert.Len(t, sample, 30)
}

func TestStatsView_DashboardSampleBounded(t *testing.T) {
	arts := buildStats(t, testParams(), genLedger(2000, 29))

	sample := arts[NameTransactions].Payload.([]DashboardTransaction)
	assert.Len(t, sample, 500)
	seen := make(map[string]bool)
	for _, row := range sample {
		assert.False(t, seen[row.TransactionID])
		seen[row.TransactionID] = true
	}
}

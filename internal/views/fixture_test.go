package views

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"veia/viewsync/internal/ledger"
)

var (
	fixedNow  = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	baseTime  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	labels    = []string{"normal", "normal", "normal", "normal", "price_spike", "wash_trade_ring", "fraud_drain"}
	markets   = []string{"Prime", "Shadow", "Arcade"}
	regions   = []string{"EU", "SEA", "EAST_ASIA", "OCE", "LATAM"}
	itemKinds = []string{"weapon", "skin", "currency", "mount"}
)

func testParams() Params {
	p := DefaultParams()
	p.Now = func() time.Time { return fixedNow }
	return p
}

// tx 构造一笔最简交易
func tx(id, buyer, seller, label string) ledger.Transaction {
	return ledger.Transaction{
		TransactionID: id,
		Timestamp:     baseTime,
		BuyerID:       buyer,
		SellerID:      seller,
		Category:      "skin",
		Price:         10,
		Marketplace:   "Prime",
		BuyerRegion:   "EU",
		SellerRegion:  "EU",
		AnomalyLabel:  label,
	}
}

// genLedger 生成 n 笔随机但可复现的交易
func genLedger(n int, seed int64) *ledger.Ledger {
	rng := rand.New(rand.NewSource(seed))
	txns := make([]ledger.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txns = append(txns, ledger.Transaction{
			TransactionID: fmt.Sprintf("t%05d", i),
			Timestamp:     baseTime.Add(time.Duration(rng.Intn(60*24)) * time.Hour),
			BuyerID:       fmt.Sprintf("u%03d", rng.Intn(150)),
			SellerID:      fmt.Sprintf("u%03d", rng.Intn(150)),
			Category:      itemKinds[rng.Intn(len(itemKinds))],
			Price:         float64(rng.Intn(10000)) / 10,
			PriceZ:        rng.NormFloat64() * 1.5,
			Marketplace:   markets[rng.Intn(len(markets))],
			BuyerRegion:   regions[rng.Intn(len(regions))],
			SellerRegion:  regions[rng.Intn(len(regions))],
			AnomalyLabel:  labels[rng.Intn(len(labels))],
		})
	}
	return ledger.New(txns, nil)
}

// buildOne 执行视图并返回第一个文档
func buildOne(t *testing.T, v View, l *ledger.Ledger) Artifact {
	t.Helper()
	arts, err := v.Build(context.Background(), l, NewRand(42, v.Name()))
	require.NoError(t, err)
	require.NotEmpty(t, arts)
	return arts[0]
}

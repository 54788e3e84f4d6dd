package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesIsAnomaly(t *testing.T) {
	l := New([]Transaction{
		{TransactionID: "1", AnomalyLabel: LabelNormal},
		{TransactionID: "2", AnomalyLabel: "price_spike"},
		{TransactionID: "3", AnomalyLabel: "wash_trade_ring"},
	}, nil)

	assert.False(t, l.Transactions[0].IsAnomaly)
	assert.True(t, l.Transactions[1].IsAnomaly)
	assert.Equal(t, 2, l.AnomalyCount())
}

func TestUserDefaults(t *testing.T) {
	empty := ""
	l := New(nil, []User{{UserID: "blank", Region: &empty}})

	assert.Equal(t, UnknownRegion, l.UserRegion("blank"))
	assert.Equal(t, UnknownRegion, l.UserRegion("ghost"))
	assert.False(t, l.UserKYC("blank"))
	assert.False(t, l.UserKYC("ghost"))
}

func TestTimeframe(t *testing.T) {
	t1 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t3 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	l := New([]Transaction{{Timestamp: t1}, {Timestamp: t2}, {Timestamp: t3}}, nil)

	start, end := l.Timeframe()
	assert.Equal(t, t2, start)
	assert.Equal(t, t3, end)
}

func TestFilter_KeepsOrder(t *testing.T) {
	l := New([]Transaction{
		{TransactionID: "a", Marketplace: "Prime"},
		{TransactionID: "b", Marketplace: "Shadow"},
		{TransactionID: "c", Marketplace: "Prime"},
	}, nil)

	got := l.Filter(func(t *Transaction) bool { return t.Marketplace == "Prime" })
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].TransactionID)
	assert.Equal(t, "c", got[1].TransactionID)
}

func TestCSVSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&CSVSource{TransactionsPath: "unused.csv"}).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

package ledger

import "time"

// LabelNormal 正常交易的标签，其余标签均视为异常
const LabelNormal = "normal"

// 用户缺省值
const (
	UnknownRegion = "Unknown"
)

// TimestampLayout 输出时间格式（与下游已有消费方保持一致）
const TimestampLayout = "2006-01-02 15:04:05"

// Transaction 一笔交易记录（加载后只读）
type Transaction struct {
	TransactionID string
	Timestamp     time.Time
	BuyerID       string
	SellerID      string
	Category      string
	Price         float64
	PriceZ        float64
	Marketplace   string
	BuyerRegion   string
	SellerRegion  string
	AnomalyLabel  string
	AnomalyNotes  string
	IsAnomaly     bool
}

// User 用户参照记录
// Region / KYCVerified 为 nil 表示源数据为空
type User struct {
	UserID      string
	Region      *string
	KYCVerified *bool
}

// FormatTimestamp 按统一格式输出时间
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

package ledger

import (
	"time"
)

// Ledger 归一化后的账本（所有视图共享，只读）
type Ledger struct {
	Transactions []Transaction
	users        map[string]User
}

// New 创建账本，并补齐 is_anomaly 派生字段
func New(txns []Transaction, users []User) *Ledger {
	for i := range txns {
		txns[i].IsAnomaly = txns[i].AnomalyLabel != LabelNormal
	}

	index := make(map[string]User, len(users))
	for _, u := range users {
		index[u.UserID] = u
	}

	return &Ledger{
		Transactions: txns,
		users:        index,
	}
}

// Len 交易笔数
func (l *Ledger) Len() int {
	return len(l.Transactions)
}

// AnomalyCount 异常交易笔数
func (l *Ledger) AnomalyCount() int {
	n := 0
	for i := range l.Transactions {
		if l.Transactions[i].IsAnomaly {
			n++
		}
	}
	return n
}

// UserRegion 查询用户区域，缺失或为空时返回 Unknown
func (l *Ledger) UserRegion(userID string) string {
	u, ok := l.users[userID]
	if !ok || u.Region == nil || *u.Region == "" {
		return UnknownRegion
	}
	return *u.Region
}

// UserKYC 查询用户 KYC 状态，缺失或为空时返回 false
func (l *Ledger) UserKYC(userID string) bool {
	u, ok := l.users[userID]
	if !ok || u.KYCVerified == nil {
		return false
	}
	return *u.KYCVerified
}

// Timeframe 账本时间范围；空账本返回零值
func (l *Ledger) Timeframe() (start, end time.Time) {
	for i := range l.Transactions {
		ts := l.Transactions[i].Timestamp
		if i == 0 || ts.Before(start) {
			start = ts
		}
		if i == 0 || ts.After(end) {
			end = ts
		}
	}
	return start, end
}

// Filter 按谓词筛选交易，保持原顺序
func (l *Ledger) Filter(pred func(*Transaction) bool) []*Transaction {
	out := make([]*Transaction, 0)
	for i := range l.Transactions {
		if pred(&l.Transactions[i]) {
			out = append(out, &l.Transactions[i])
		}
	}
	return out
}

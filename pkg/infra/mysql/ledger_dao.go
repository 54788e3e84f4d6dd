package mysql

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"veia/viewsync/internal/ledger"
)

const defaultBatchSize = 5000

// LedgerDAO 账本数据访问对象（实现 ledger.Source）
type LedgerDAO struct {
	db        *gorm.DB
	batchSize int
}

// NewLedgerDAO 创建 LedgerDAO 实例
func NewLedgerDAO(db *gorm.DB) *LedgerDAO {
	return &LedgerDAO{db: db, batchSize: defaultBatchSize}
}

// Load 读取全部交易与用户，交易按时间、ID 排序以保证顺序稳定
func (dao *LedgerDAO) Load(ctx context.Context) (*ledger.Ledger, error) {
	// 1. 交易（FindInBatches 按主键翻页，不能叠加其他排序）
	txns := make([]ledger.Transaction, 0)
	var rows []TransactionRow
	result := dao.db.WithContext(ctx).
		FindInBatches(&rows, dao.batchSize, func(tx *gorm.DB, batch int) error {
			for i := range rows {
				txns = append(txns, rows[i].toDomain())
			}
			return nil
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", result.Error)
	}
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Timestamp.Equal(txns[j].Timestamp) {
			return txns[i].Timestamp.Before(txns[j].Timestamp)
		}
		return txns[i].TransactionID < txns[j].TransactionID
	})

	// 2. 用户
	var users []UserRow
	if err := dao.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	domainUsers := make([]ledger.User, 0, len(users))
	for _, u := range users {
		domainUsers = append(domainUsers, ledger.User{
			UserID:      u.UserID,
			Region:      u.Region,
			KYCVerified: u.KYCVerified,
		})
	}

	return ledger.New(txns, domainUsers), nil
}

func (r *TransactionRow) toDomain() ledger.Transaction {
	txn := ledger.Transaction{
		TransactionID: r.TransactionID,
		Timestamp:     r.Timestamp,
		BuyerID:       r.BuyerID,
		SellerID:      r.SellerID,
		Category:      r.Category,
		Price:         r.Price,
		PriceZ:        r.PriceZ,
		Marketplace:   r.Marketplace,
		BuyerRegion:   r.BuyerRegion,
		SellerRegion:  r.SellerRegion,
		AnomalyLabel:  r.AnomalyLabel,
	}
	if r.AnomalyNotes != nil {
		txn.AnomalyNotes = *r.AnomalyNotes
	}
	return txn
}

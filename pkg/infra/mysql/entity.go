package mysql

import (
	"time"

	"gorm.io/datatypes"
)

// TransactionRow 交易表（上游归一化后写入）
type TransactionRow struct {
	TransactionID string    `gorm:"column:transaction_id;primaryKey;type:varchar(64)"`
	Timestamp     time.Time `gorm:"column:timestamp;not null;index:idx_timestamp"`
	BuyerID       string    `gorm:"column:buyer_id;type:varchar(64);not null;index:idx_buyer"`
	SellerID      string    `gorm:"column:seller_id;type:varchar(64);not null;index:idx_seller"`
	Category      string    `gorm:"column:category;type:varchar(64);not null"`
	Price         float64   `gorm:"column:price;not null"`
	PriceZ        float64   `gorm:"column:price_z;not null"`
	Marketplace   string    `gorm:"column:marketplace;type:varchar(32);not null"`
	BuyerRegion   string    `gorm:"column:buyer_region;type:varchar(32);not null"`
	SellerRegion  string    `gorm:"column:seller_region;type:varchar(32);not null"`
	AnomalyLabel  string    `gorm:"column:anomaly_label;type:varchar(64);not null;default:'normal'"`
	AnomalyNotes  *string   `gorm:"column:anomaly_notes;type:text"`
}

// TableName 指定表名
func (TransactionRow) TableName() string {
	return "veia_transactions"
}

// UserRow 用户表
type UserRow struct {
	UserID      string  `gorm:"column:user_id;primaryKey;type:varchar(64)"`
	Region      *string `gorm:"column:region;type:varchar(32)"`
	KYCVerified *bool   `gorm:"column:kyc_verified"`
}

// TableName 指定表名
func (UserRow) TableName() string {
	return "veia_users"
}

// DerivedView 视图文档（每次运行每个文档一行）
type DerivedView struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	RunID     string         `gorm:"column:run_id;type:varchar(64);not null;uniqueIndex:uk_run_name"`
	Name      string         `gorm:"column:name;type:varchar(32);not null;uniqueIndex:uk_run_name;index:idx_name_created"`
	Payload   datatypes.JSON `gorm:"column:payload;type:json;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;index:idx_name_created"`
}

// TableName 指定表名
func (DerivedView) TableName() string {
	return "derived_views"
}

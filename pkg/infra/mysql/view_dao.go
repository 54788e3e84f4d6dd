package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ViewDAO 视图文档数据访问对象
type ViewDAO struct {
	db *gorm.DB
}

// NewViewDAO 创建 ViewDAO 实例
func NewViewDAO(db *gorm.DB) *ViewDAO {
	return &ViewDAO{db: db}
}

// Migrate 建表
func (dao *ViewDAO) Migrate(ctx context.Context) error {
	if err := dao.db.WithContext(ctx).AutoMigrate(&DerivedView{}); err != nil {
		return fmt.Errorf("failed to migrate derived_views: %w", err)
	}
	return nil
}

// SaveView 写入一份视图文档；同一 run 重复写入时覆盖
func (dao *ViewDAO) SaveView(ctx context.Context, runID, name string, payload []byte) error {
	row := &DerivedView{
		RunID:     runID,
		Name:      name,
		Payload:   datatypes.JSON(payload),
		CreatedAt: time.Now(),
	}
	result := dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "created_at"}),
		}).
		Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to save view %s: %w", name, result.Error)
	}
	return nil
}

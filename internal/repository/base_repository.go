package repository

import (
	"context"

	"gorm.io/gorm"

	"award_chat/internal/storage"
)

// baseRepository 各 gorm repository 共用的查詢
type baseRepository struct {
	db *storage.Database
}

func (r *baseRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// pluckNames 依照 position 排序取出 name 欄位
func (r *baseRepository) pluckNames(query *gorm.DB) ([]string, error) {
	names := []string{}
	err := query.Order("position asc, id asc").Pluck("name", &names).Error
	return names, err
}

// upsert 找不到符合 where 的資料時建立，找到時只更新 assign 中的欄位
func (r *baseRepository) upsert(tx *gorm.DB, where any, assign map[string]any, out any) error {
	return tx.Where(where).Assign(assign).FirstOrCreate(out).Error
}

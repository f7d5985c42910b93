package repository

import "award_chat/internal/storage"

type Repositories struct {
	Category CategoryRepository
}

// NewRepositories 沒有資料庫連線時改用記憶體中的目錄
func NewRepositories(db *storage.Database) *Repositories {
	if db == nil {
		return &Repositories{
			Category: NewStaticCategoryRepository(nil),
		}
	}
	return &Repositories{
		Category: NewCategoryRepository(db),
	}
}

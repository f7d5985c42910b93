//go:generate go run go.uber.org/mock/mockgen -source=category_repository.go -destination=mocks/mock_category_repository.go -package=mocks
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"award_chat/internal/models"
	"award_chat/internal/storage"
)

var ErrCategoryNotFound = errors.New("category not found")

// CategoryRepository 提供分類與子聊天室名稱，聊天室核心只讀取它
type CategoryRepository interface {
	ListNames(ctx context.Context) ([]string, error)
	ListSubRooms(ctx context.Context, category string) ([]string, error)
	Seed(ctx context.Context, seeds []models.CategorySeed) error
}

type categoryRepository struct {
	baseRepository
}

func NewCategoryRepository(db *storage.Database) CategoryRepository {
	return &categoryRepository{baseRepository{db: db}}
}

// ListNames 依照 position 排序回傳所有分類名稱
func (r *categoryRepository) ListNames(ctx context.Context) ([]string, error) {
	return r.pluckNames(r.conn(ctx).Model(&models.Category{}))
}

func (r *categoryRepository) ListSubRooms(ctx context.Context, category string) ([]string, error) {
	var cat models.Category
	err := r.conn(ctx).Where("name = ?", category).First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}
	if err != nil {
		return nil, err
	}

	return r.pluckNames(r.conn(ctx).Model(&models.SubRoom{}).Where("category_id = ?", cat.ID))
}

// Seed 寫入尚未存在的分類與子聊天室，已存在的只更新排序，可重複執行
func (r *categoryRepository) Seed(ctx context.Context, seeds []models.CategorySeed) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		for i, seed := range seeds {
			name := strings.TrimSpace(seed.Name)
			if name == "" {
				continue
			}

			var cat models.Category
			if err := r.upsert(tx, models.Category{Name: name}, map[string]any{"position": i}, &cat); err != nil {
				return fmt.Errorf("seed category %q: %w", name, err)
			}

			for j, room := range seed.Rooms {
				room = strings.TrimSpace(room)
				if room == "" {
					continue
				}
				var sub models.SubRoom
				if err := r.upsert(tx, models.SubRoom{CategoryID: cat.ID, Name: room}, map[string]any{"position": j}, &sub); err != nil {
					return fmt.Errorf("seed room %q in %q: %w", room, name, err)
				}
			}
		}
		return nil
	})
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"

	"award_chat/internal/models"
)

// staticCategoryRepository 不需要資料庫的目錄，db.driver 為 memory 時使用
type staticCategoryRepository struct {
	mu         sync.RWMutex
	categories []models.CategorySeed
}

func NewStaticCategoryRepository(seeds []models.CategorySeed) CategoryRepository {
	r := &staticCategoryRepository{}
	_ = r.Seed(context.Background(), seeds)
	return r
}

func (r *staticCategoryRepository) ListNames(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.categories, func(c models.CategorySeed, _ int) string { return c.Name }), nil
}

func (r *staticCategoryRepository) ListSubRooms(_ context.Context, category string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cat, ok := lo.Find(r.categories, func(c models.CategorySeed) bool { return c.Name == category })
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
	}
	return append([]string{}, cat.Rooms...), nil
}

// Seed 與資料庫版本相同：只新增，不刪除
func (r *staticCategoryRepository) Seed(_ context.Context, seeds []models.CategorySeed) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, seed := range seeds {
		name := strings.TrimSpace(seed.Name)
		if name == "" {
			continue
		}
		rooms := lo.Filter(lo.Map(seed.Rooms, func(s string, _ int) string { return strings.TrimSpace(s) }),
			func(s string, _ int) bool { return s != "" })

		_, idx, found := lo.FindIndexOf(r.categories, func(c models.CategorySeed) bool { return c.Name == name })
		if !found {
			r.categories = append(r.categories, models.CategorySeed{Name: name, Rooms: lo.Uniq(rooms)})
			continue
		}
		r.categories[idx].Rooms = lo.Uniq(append(r.categories[idx].Rooms, rooms...))
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"award_chat/internal/repository"
)

// DefaultRoom 每個分類都有的預設聊天室，永遠排在房間列表第一位
const DefaultRoom = "General"

// RoomRegistry 回答「分類 C 有哪些房間」
type RoomRegistry struct {
	catalog repository.CategoryRepository
}

func NewRoomRegistry(catalog repository.CategoryRepository) *RoomRegistry {
	return &RoomRegistry{catalog: catalog}
}

func (r *RoomRegistry) ListCategories(ctx context.Context) ([]string, error) {
	names, err := r.catalog.ListNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return names, nil
}

// ListRooms 回傳 "General" 加上分類的子聊天室
func (r *RoomRegistry) ListRooms(ctx context.Context, category string) ([]string, error) {
	subRooms, err := r.catalog.ListSubRooms(ctx, category)
	if errors.Is(err, repository.ErrCategoryNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if err != nil {
		return nil, fmt.Errorf("list rooms for %s: %w", category, err)
	}

	rooms := lo.Filter(subRooms, func(room string, _ int) bool { return room != DefaultRoom })
	return append([]string{DefaultRoom}, rooms...), nil
}

func (r *RoomRegistry) HasRoom(ctx context.Context, category, room string) (bool, error) {
	rooms, err := r.ListRooms(ctx, category)
	if err != nil {
		return false, err
	}
	return lo.Contains(rooms, room), nil
}

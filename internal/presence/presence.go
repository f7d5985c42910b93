// Package presence 記錄每個聊天室目前在線的成員。
//
// 單機部署使用 MemoryStore；多台伺服器共用同一份在線名單時使用 RedisStore。
package presence

import (
	"context"
	"sync"
)

// Store 在線名單，成員以連線 ID 區分
type Store interface {
	Join(ctx context.Context, category, room, memberID string) error
	Leave(ctx context.Context, category, room, memberID string) error
	Count(ctx context.Context, category, room string) (int64, error)
	Close() error
}

type roomKey struct {
	category string
	room     string
}

type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[roomKey]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[roomKey]map[string]struct{})}
}

func (s *MemoryStore) Join(_ context.Context, category, room, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := roomKey{category, room}
	if s.rooms[key] == nil {
		s.rooms[key] = make(map[string]struct{})
	}
	s.rooms[key][memberID] = struct{}{}
	return nil
}

func (s *MemoryStore) Leave(_ context.Context, category, room, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := roomKey{category, room}
	if members, ok := s.rooms[key]; ok {
		delete(members, memberID)
		if len(members) == 0 {
			delete(s.rooms, key)
		}
	}
	return nil
}

func (s *MemoryStore) Count(_ context.Context, category, room string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.rooms[roomKey{category, room}])), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

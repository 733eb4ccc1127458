package history

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore 进程内的对话历史，进程退出即丢失。
type MemoryStore struct {
	limit int

	mu    sync.RWMutex
	users map[string][]Entry
}

// NewMemoryStore 创建内存历史存储，limit 会被调整为偶数。
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{
		limit: NormalizeLimit(limit),
		users: make(map[string][]Entry),
	}
}

// Append 追加一轮问答并截断到上限。
func (s *MemoryStore) Append(_ context.Context, userID, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.users[userID], pair(question, answer)...)
	if len(entries) > s.limit {
		entries = append([]Entry(nil), entries[len(entries)-s.limit:]...)
	}
	s.users[userID] = entries
	return nil
}

// Get 返回历史副本。
func (s *MemoryStore) Get(_ context.Context, userID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.users[userID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Clear 清除用户历史。
func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// Users 返回当前有历史记录的用户数。
func (s *MemoryStore) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

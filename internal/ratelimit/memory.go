package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry はキーごとのカウンター。
type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore はプロセス内マップによるStore実装。
// 複数レプリカで動かす場合、実効上限は limit × レプリカ数 になる。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// WithClock はテスト用に時計を差し替える。
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Check はkeyのカウンターを評価する。
// 読み取りと更新は同一のロック区間で行う。
func (s *MemoryStore) Check(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if err := (Policy{Limit: limit, Window: window}).validate(); err != nil {
		return Decision{}, err
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		// 新規キー、またはウィンドウ経過後の最初の呼び出し
		e = &entry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = e
		return Decision{Allowed: true, Count: e.count, ResetAt: e.resetAt}, nil
	}

	if e.count >= limit {
		return Decision{Allowed: false, Count: e.count, ResetAt: e.resetAt}, nil
	}

	e.count++
	return Decision{Allowed: true, Count: e.count, ResetAt: e.resetAt}, nil
}

// Clear はkeyのエントリを削除する。
func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Sweep はウィンドウが経過したエントリを削除し、削除件数を返す。
// 経過済みエントリは次のCheckで必ずリセットされるため、削除しても判定は変わらない。
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.After(e.resetAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len は保持しているエントリ数を返す。テストおよびメトリクス用。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)

package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/planner/internal/model"
	"github.com/hitoshi/planner/internal/repository"
)

// memoryRepo はPostgresIntegrationRepoと同じアップサート規則を持つテスト用リポジトリ。
type memoryRepo struct {
	mu      sync.Mutex
	rows    map[string]*model.Integration
	nextID  int
	findErr error
	saveErr error
	delErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[string]*model.Integration)}
}

func rowKey(userID string, provider model.Provider) string {
	return userID + "|" + string(provider)
}

func (r *memoryRepo) Find(_ context.Context, userID string, provider model.Provider) (*model.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	row, ok := r.rows[rowKey(userID, provider)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *memoryRepo) Upsert(_ context.Context, in *model.Integration) (*model.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return nil, r.saveErr
	}

	key := rowKey(in.UserID, in.Provider)
	existing, ok := r.rows[key]
	if !ok {
		r.nextID++
		row := *in
		row.ID = fmt.Sprintf("row-%d", r.nextID)
		r.rows[key] = &row
		cp := row
		return &cp, nil
	}

	existing.AccessToken = in.AccessToken
	if in.RefreshToken != "" {
		existing.RefreshToken = in.RefreshToken
	}
	existing.ExpiresAt = in.ExpiresAt
	existing.UpdatedAt = in.UpdatedAt
	cp := *existing
	return &cp, nil
}

func (r *memoryRepo) UpdateAccessToken(_ context.Context, userID string, provider model.Provider, accessToken string, expiresAt, updatedAt time.Time) (*model.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	row, ok := r.rows[rowKey(userID, provider)]
	if !ok {
		return nil, nil
	}
	row.AccessToken = accessToken
	row.ExpiresAt = expiresAt
	row.UpdatedAt = updatedAt
	cp := *row
	return &cp, nil
}

func (r *memoryRepo) Delete(_ context.Context, userID string, provider model.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.delErr != nil {
		return r.delErr
	}
	delete(r.rows, rowKey(userID, provider))
	return nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

var errDB = errors.New("connection reset by peer")

var _ repository.IntegrationRepository = (*memoryRepo)(nil)

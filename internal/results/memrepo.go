package results

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"techcharades/internal/domain"

	"github.com/google/uuid"
)

// memrepo is an in-memory repository used when no DB is configured and in tests.
type memrepo struct {
	mu      sync.RWMutex
	records map[string]*domain.ResultRecord
}

func NewMemoryRepository() Repository {
	return &memrepo{records: make(map[string]*domain.ResultRecord)}
}

func (m *memrepo) Create(_ context.Context, rec *domain.ResultRecord) (string, error) {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	cp := cloneRecord(rec)
	cp.ID = id

	m.mu.Lock()
	m.records[id] = cp
	m.mu.Unlock()

	rec.ID = id
	return id, nil
}

func (m *memrepo) ListAll(_ context.Context) ([]*domain.ResultRecord, error) {
	m.mu.RLock()
	out := make([]*domain.ResultRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, cloneRecord(rec))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memrepo) Get(_ context.Context, id string) (*domain.ResultRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *memrepo) UpdateVerification(_ context.Context, id string, rounds []domain.RoundRecord, verifiedScore float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Rounds = append([]domain.RoundRecord(nil), rounds...)
	v := verifiedScore
	rec.VerifiedScore = &v
	return nil
}

func cloneRecord(rec *domain.ResultRecord) *domain.ResultRecord {
	cp := *rec
	cp.Rounds = append([]domain.RoundRecord(nil), rec.Rounds...)
	if rec.VerifiedScore != nil {
		v := *rec.VerifiedScore
		cp.VerifiedScore = &v
	}
	return &cp
}

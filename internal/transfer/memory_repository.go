package transfer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	byKey   map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests and
// database-less development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		records: make(map[string]Record),
		byKey:   make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.ID]; exists {
		return errors.New("transfer exists")
	}
	if rec.IdempotencyKey != "" {
		if _, exists := r.byKey[rec.IdempotencyKey]; exists {
			return errors.New("idempotency key in use")
		}
		r.byKey[rec.IdempotencyKey] = rec.ID
	}
	r.records[rec.ID] = rec
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (r *memoryRepository) FindByIdempotencyKey(_ context.Context, key string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return r.records[id], nil
}

func (r *memoryRepository) Transition(_ context.Context, id string, from, to Status, completedAt *time.Time, failureReason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false, ErrRecordNotFound
	}
	if rec.Status != from {
		return false, nil
	}
	rec.Status = to
	rec.CompletedAt = completedAt
	rec.FailureReason = failureReason
	r.records[id] = rec
	return true, nil
}

func (r *memoryRepository) History(_ context.Context, walletID string, limit int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var records []Record
	for _, rec := range r.records {
		if rec.SourceWalletID == walletID || rec.DestWalletID == walletID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *memoryRepository) SpentSince(_ context.Context, walletID string, p2pOnly bool, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, rec := range r.records {
		if rec.SourceWalletID != walletID || rec.Status != StatusCompleted {
			continue
		}
		if p2pOnly && rec.Kind != KindP2P {
			continue
		}
		if rec.CompletedAt == nil || rec.CompletedAt.Before(since) {
			continue
		}
		total += rec.Amount
	}
	return total, nil
}

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/AdirGamil/animeedit/internal/model"
	"go.uber.org/zap"
)

// MemoryRecordStore implements RecordStore with in-process maps. It is the
// default backend and the one used by tests; the partition-exclusivity
// invariant is enforced on insert.
type MemoryRecordStore struct {
	mu         sync.RWMutex
	partitions map[model.Partition]map[model.RecordID]*model.Record
	logger     *zap.Logger
}

// NewMemoryRecordStore creates an empty in-memory record store.
func NewMemoryRecordStore(logger *zap.Logger) *MemoryRecordStore {
	partitions := make(map[model.Partition]map[model.RecordID]*model.Record, len(model.Partitions))
	for _, p := range model.Partitions {
		partitions[p] = make(map[model.RecordID]*model.Record)
	}
	return &MemoryRecordStore{
		partitions: partitions,
		logger:     logger,
	}
}

// Find returns the record with the given id from the partition.
func (s *MemoryRecordStore) Find(ctx context.Context, partition model.Partition, id model.RecordID) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.partitions[partition][id]
	if !exists {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Insert adds a record to the partition.
func (s *MemoryRecordStore) Insert(ctx context.Context, partition model.Partition, record *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range model.Partitions {
		if _, exists := s.partitions[p][record.ID]; exists {
			return ErrDuplicate
		}
	}

	s.partitions[partition][record.ID] = record.Clone()
	return nil
}

// Delete removes the record from the partition.
func (s *MemoryRecordStore) Delete(ctx context.Context, partition model.Partition, id model.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.partitions[partition][id]; !exists {
		return ErrNotFound
	}
	delete(s.partitions[partition], id)
	return nil
}

// List returns all records in the partition ordered by record id.
func (s *MemoryRecordStore) List(ctx context.Context, partition model.Partition) ([]*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*model.Record, 0, len(s.partitions[partition]))
	for _, record := range s.partitions[partition] {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Count returns the number of records in the partition.
func (s *MemoryRecordStore) Count(ctx context.Context, partition model.Partition) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.partitions[partition]), nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryRecordStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryRecordStore) Close() {}

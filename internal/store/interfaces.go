// Package store provides the record store abstraction and its in-memory and
// PostgreSQL implementations. Records are partitioned by lifecycle stage; a
// record id exists in at most one partition at a time.
package store

import (
	"context"
	"errors"

	"github.com/AdirGamil/animeedit/internal/model"
)

// ErrNotFound is returned when a record is absent from the queried partition.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert would place a record id into a
// second partition.
var ErrDuplicate = errors.New("record already exists")

// RecordStore holds the authoritative record payloads, partitioned by
// lifecycle stage. Only the review coordinator moves records between
// partitions.
type RecordStore interface {
	// Find returns the record with the given id from the partition.
	Find(ctx context.Context, partition model.Partition, id model.RecordID) (*model.Record, error)

	// Insert adds a record to the partition. Fails with ErrDuplicate if the
	// id already exists in any partition.
	Insert(ctx context.Context, partition model.Partition, record *model.Record) error

	// Delete removes the record from the partition. Fails with ErrNotFound
	// if absent.
	Delete(ctx context.Context, partition model.Partition, id model.RecordID) error

	// List returns all records in the partition ordered by record id.
	List(ctx context.Context, partition model.Partition) ([]*model.Record, error)

	// Count returns the number of records in the partition.
	Count(ctx context.Context, partition model.Partition) (int, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close()
}

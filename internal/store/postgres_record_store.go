package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AdirGamil/animeedit/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// schema creates the records table. record_id is unique across all
// partitions, so partition exclusivity holds at the storage layer as well.
const schema = `
CREATE TABLE IF NOT EXISTS records (
    record_id  BIGINT PRIMARY KEY,
    partition  TEXT   NOT NULL,
    payload    JSONB  NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS records_partition_idx ON records (partition, record_id);
`

// PostgresRecordStore implements RecordStore for PostgreSQL.
type PostgresRecordStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRecordStore creates a new PostgreSQL record store and ensures
// the schema exists.
func NewPostgresRecordStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresRecordStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresRecordStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// Find returns the record with the given id from the partition.
func (s *PostgresRecordStore) Find(ctx context.Context, partition model.Partition, id model.RecordID) (*model.Record, error) {
	query := `
		SELECT payload
		FROM records
		WHERE record_id = $1 AND partition = $2
	`

	var payload []byte
	err := s.pool.QueryRow(ctx, query, int64(id), string(partition)).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find record: %w", err)
	}

	var fields model.Fields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode record payload: %w", err)
	}

	return &model.Record{ID: id, Fields: fields}, nil
}

// Insert adds a record to the partition.
func (s *PostgresRecordStore) Insert(ctx context.Context, partition model.Partition, record *model.Record) error {
	payload, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode record payload: %w", err)
	}

	query := `
		INSERT INTO records (record_id, partition, payload, updated_at)
		VALUES ($1, $2, $3, now())
	`

	_, err = s.pool.Exec(ctx, query, int64(record.ID), string(partition), payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// Delete removes the record from the partition.
func (s *PostgresRecordStore) Delete(ctx context.Context, partition model.Partition, id model.RecordID) error {
	query := `
		DELETE FROM records
		WHERE record_id = $1 AND partition = $2
	`

	result, err := s.pool.Exec(ctx, query, int64(id), string(partition))
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns all records in the partition ordered by record id.
func (s *PostgresRecordStore) List(ctx context.Context, partition model.Partition) ([]*model.Record, error) {
	query := `
		SELECT record_id, payload
		FROM records
		WHERE partition = $1
		ORDER BY record_id
	`

	rows, err := s.pool.Query(ctx, query, string(partition))
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		var id int64
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		var fields model.Fields
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode record payload: %w", err)
		}
		records = append(records, &model.Record{ID: model.RecordID(id), Fields: fields})
	}

	return records, rows.Err()
}

// Count returns the number of records in the partition.
func (s *PostgresRecordStore) Count(ctx context.Context, partition model.Partition) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM records
		WHERE partition = $1
	`

	var count int
	if err := s.pool.QueryRow(ctx, query, string(partition)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Ping verifies database connectivity.
func (s *PostgresRecordStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresRecordStore) Close() {
	s.pool.Close()
}

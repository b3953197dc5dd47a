// Package store implements the local embedded store the ingestion tasks
// persist into.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sebas-inf/venice/internal/errors"
)

// MetricsCollector defines metrics operations for the store.
type MetricsCollector interface {
	IncStoreWrites(topic string, partition int32, status string)
	ObserveStoreWriteDuration(topic string, seconds float64)
	IncStoreErrors(operation string)
}

// Writer is the storage contract the ingestion task depends on.
type Writer interface {
	Put(ctx context.Context, topic string, partition int32, key, value []byte, offset int64) error
	Delete(ctx context.Context, topic string, partition int32, key []byte) error
	Close() error
}

// Ensure implementation satisfies interface at compile time.
var _ Writer = (*SQLiteStore)(nil)

// SQLiteStore is a single-file embedded key-value store. Rows are keyed by
// (topic, partition, key) so per-partition writes from different drainers
// never contend on the same row.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics MetricsCollector

	mu     sync.RWMutex
	closed bool
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	topic      TEXT    NOT NULL,
	partition  INTEGER NOT NULL,
	key        BLOB    NOT NULL,
	value      BLOB,
	offset     INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (topic, partition, key)
);`

// Open opens (creating if needed) the store at path.
func Open(path string, logger *slog.Logger, metrics MetricsCollector) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &errors.StorageError{Operation: "open", Err: err}
	}
	// SQLite allows one writer at a time; the drainer pool serializes
	// through the database/sql pool instead of failing on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &errors.StorageError{Operation: "create", Err: err}
	}

	logger.Info("embedded store opened", "path", path)
	return &SQLiteStore{db: db, logger: logger, metrics: metrics}, nil
}

// Put upserts one record value.
func (s *SQLiteStore) Put(ctx context.Context, topic string, partition int32, key, value []byte, offset int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrStoreClosed
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (topic, partition, key, value, offset, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (topic, partition, key)
		DO UPDATE SET value = excluded.value, offset = excluded.offset, updated_at = excluded.updated_at`,
		topic, partition, key, value, offset, time.Now().UnixMilli())
	if err != nil {
		s.metrics.IncStoreWrites(topic, partition, "error")
		s.metrics.IncStoreErrors("write")
		return &errors.StorageError{Operation: "write", Err: err}
	}

	s.metrics.IncStoreWrites(topic, partition, "success")
	s.metrics.ObserveStoreWriteDuration(topic, time.Since(start).Seconds())
	return nil
}

// Delete removes one record.
func (s *SQLiteStore) Delete(ctx context.Context, topic string, partition int32, key []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrStoreClosed
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE topic = ? AND partition = ? AND key = ?`,
		topic, partition, key)
	if err != nil {
		s.metrics.IncStoreWrites(topic, partition, "error")
		s.metrics.IncStoreErrors("delete")
		return &errors.StorageError{Operation: "delete", Err: err}
	}

	s.metrics.IncStoreWrites(topic, partition, "success")
	s.metrics.ObserveStoreWriteDuration(topic, time.Since(start).Seconds())
	return nil
}

// Get reads one record value. It returns sql.ErrNoRows when the key is
// absent.
func (s *SQLiteStore) Get(ctx context.Context, topic string, partition int32, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE topic = ? AND partition = ? AND key = ?`,
		topic, partition, key).Scan(&value)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, &errors.StorageError{Operation: "read", Err: err}
	}
	return value, nil
}

// Count returns the number of records held for one partition.
func (s *SQLiteStore) Count(ctx context.Context, topic string, partition int32) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errors.ErrStoreClosed
	}

	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE topic = ? AND partition = ?`,
		topic, partition).Scan(&n)
	if err != nil {
		return 0, &errors.StorageError{Operation: "read", Err: err}
	}
	return n, nil
}

// Close closes the store. Further operations fail with ErrStoreClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	s.logger.Info("embedded store closed")
	return nil
}

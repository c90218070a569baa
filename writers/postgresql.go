//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of JSONTable.
//
// JSONTable is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// JSONTable is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with JSONTable. If not, see https://www.gnu.org/licenses/.

package writers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/jsontable/core"
)

// Package writers provides core.DataSink implementations used to export JSONTable rows.
//
// This file implements a batching PostgreSQL writer. Columns default to the field order of
// the first exported row; nested objects and arrays are written as JSONB.

// PostgresWriterError wraps PostgreSQL-specific write errors with context about the operation.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "write", "connect")
	Err error  // The underlying error
}

// Error returns the error string for PostgresWriterError.
func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for PostgresWriterError.
func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats holds PostgreSQL write performance statistics.
type PostgresWriterStats struct {
	RecordsWritten   int64            // Total records written
	BatchesWritten   int64            // Number of batches written
	TransactionCount int64            // Number of transactions committed
	LastWriteTime    time.Time        // Time of last write
	WriteDuration    time.Duration    // Total time spent writing
	ConnectionTime   time.Duration    // Time spent establishing connection
	NullValueCounts  map[string]int64 // Count of null values per column
	ConflictCount    int64            // Number of conflicts encountered
}

// ConflictResolution defines how to handle INSERT conflicts in PostgreSQL.
type ConflictResolution int

const (
	// ConflictError returns an error on conflict (default PostgreSQL behavior).
	ConflictError ConflictResolution = iota
	// ConflictIgnore ignores conflicting rows (ON CONFLICT DO NOTHING).
	ConflictIgnore
	// ConflictUpdate updates conflicting rows (ON CONFLICT DO UPDATE).
	ConflictUpdate
)

// PostgresWriterOptions configures the PostgreSQL writer.
type PostgresWriterOptions struct {
	DSN                string             // PostgreSQL connection string
	TableName          string             // Target table name
	Columns            []string           // Columns to write (order matters)
	BatchSize          int                // Number of records per batch
	CreateTable        bool               // Create table if not exists
	TruncateTable      bool               // Truncate table before writing
	ConflictResolution ConflictResolution // Conflict handling strategy
	ConflictColumns    []string           // Columns that define uniqueness for conflict resolution
	UpdateColumns      []string           // Columns to update on conflict (for ConflictUpdate)
	TransactionMode    bool               // Wrap batches in transactions
	ConnMaxLifetime    time.Duration      // Max connection lifetime
	ConnMaxIdleTime    time.Duration      // Max idle connection time
	MaxOpenConns       int                // Max open connections
	MaxIdleConns       int                // Max idle connections
	QueryTimeout       time.Duration      // Timeout for queries
}

// PostgresWriterOption represents a configuration function for PostgresWriterOptions.
type PostgresWriterOption func(*PostgresWriterOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DSN = dsn
	}
}

// WithTableName sets the target table name.
func WithTableName(tableName string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TableName = tableName
	}
}

// WithColumns sets the columns to write.
func WithColumns(columns []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

// WithPostgresBatchSize sets the batch size for writes.
func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCreateTable enables or disables table creation.
func WithCreateTable(create bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.CreateTable = create
	}
}

// WithTruncateTable enables or disables table truncation before writing.
func WithTruncateTable(truncate bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TruncateTable = truncate
	}
}

// WithConflictResolution sets the conflict resolution strategy and columns.
func WithConflictResolution(resolution ConflictResolution, conflictCols, updateCols []string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.ConflictResolution = resolution
		opts.ConflictColumns = append([]string(nil), conflictCols...)
		opts.UpdateColumns = append([]string(nil), updateCols...)
	}
}

// WithTransactionMode enables or disables transaction wrapping for batches.
func WithTransactionMode(enabled bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.TransactionMode = enabled
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = maxLifetime
		opts.ConnMaxIdleTime = maxIdleTime
	}
}

// WithPostgresQueryTimeout sets the query timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// PostgresWriter implements core.DataSink for PostgreSQL output.
type PostgresWriter struct {
	db          *sql.DB
	options     PostgresWriterOptions
	columns     []string
	recordBuf   []core.Record
	stats       PostgresWriterStats
	prepared    *sql.Stmt
	initialized bool
	errorState  bool
	mu          sync.Mutex
}

// NewPostgresWriter validates the options, opens a pooled connection and pings the server.
func NewPostgresWriter(opts ...PostgresWriterOption) (*PostgresWriter, error) {
	options := (&PostgresWriterOptions{}).withDefaults()
	for _, opt := range opts {
		opt(options)
	}

	if err := validateOptions(options); err != nil {
		return nil, &PostgresWriterError{Op: "validate", Err: err}
	}

	writer := &PostgresWriter{
		options:   *options,
		columns:   append([]string(nil), options.Columns...),
		recordBuf: make([]core.Record, 0, options.BatchSize),
		stats:     PostgresWriterStats{NullValueCounts: make(map[string]int64)},
	}

	if err := writer.connect(); err != nil {
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}
	return writer, nil
}

// Stats returns a copy of the current write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	statsCopy := w.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(w.stats.NullValueCounts))
	for k, v := range w.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Write buffers a record and inserts a batch when the buffer is full. Thread-safe.
func (w *PostgresWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &PostgresWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	if !w.initialized {
		if err := w.initializeUnsafe(ctx, record); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "initialize", Err: err}
		}
	}

	for _, col := range w.columns {
		if record.Value(col) == nil {
			w.stats.NullValueCounts[col]++
		}
	}

	w.recordBuf = append(w.recordBuf, record)
	w.stats.RecordsWritten++

	if len(w.recordBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "flush_batch", Err: err}
		}
	}
	return nil
}

// Flush forces any buffered records to be written to PostgreSQL.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := w.flushBufferUnsafe(ctx); err != nil {
		return &PostgresWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close flushes and closes all resources.
func (w *PostgresWriter) Close() error {
	flushErr := w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.prepared != nil {
		w.prepared.Close()
		w.prepared = nil
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			return &PostgresWriterError{Op: "close", Err: err}
		}
		w.db = nil
	}
	return flushErr
}

// withDefaults applies default values to PostgresWriterOptions.
func (opts *PostgresWriterOptions) withDefaults() *PostgresWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = 1 * time.Minute
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	return opts
}

// validateOptions validates the PostgreSQL writer options.
func validateOptions(opts *PostgresWriterOptions) error {
	if opts.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	if opts.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if opts.ConflictResolution == ConflictUpdate && len(opts.UpdateColumns) == 0 {
		return fmt.Errorf("update columns required for conflict update resolution")
	}
	if opts.ConflictResolution != ConflictError && len(opts.ConflictColumns) == 0 {
		return fmt.Errorf("conflict columns required for conflict resolution")
	}
	return nil
}

// connect establishes the database connection and configures the connection pool.
func (w *PostgresWriter) connect() error {
	start := time.Now()

	db, err := sql.Open("postgres", w.options.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(w.options.MaxOpenConns)
	db.SetMaxIdleConns(w.options.MaxIdleConns)
	db.SetConnMaxLifetime(w.options.ConnMaxLifetime)
	db.SetConnMaxIdleTime(w.options.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	w.db = db
	w.stats.ConnectionTime = time.Since(start)
	return nil
}

// initializeUnsafe performs one-time initialization (must hold mutex).
func (w *PostgresWriter) initializeUnsafe(ctx context.Context, firstRecord core.Record) error {
	if len(w.columns) == 0 {
		w.columns = firstRecord.Keys()
	}

	if w.options.CreateTable {
		if _, err := w.db.ExecContext(ctx, createTableQuery(w.options.TableName, w.columns, firstRecord)); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if w.options.TruncateTable {
		if _, err := w.db.ExecContext(ctx, "TRUNCATE TABLE "+pq.QuoteIdentifier(w.options.TableName)); err != nil {
			return fmt.Errorf("failed to truncate table: %w", err)
		}
	}

	stmt, err := w.db.PrepareContext(ctx, insertQuery(&w.options, w.columns))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	w.prepared = stmt
	w.initialized = true
	return nil
}

// createTableQuery builds a CREATE TABLE statement whose column types are inferred from record.
func createTableQuery(table string, columns []string, record core.Record) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = fmt.Sprintf("%s %s", pq.QuoteIdentifier(col), inferSQLType(record.Value(col)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pq.QuoteIdentifier(table), strings.Join(defs, ", "))
}

// insertQuery builds the INSERT statement, including the ON CONFLICT clause when configured.
func insertQuery(opts *PostgresWriterOptions, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(opts.TableName),
		quoteIdentifiers(columns),
		strings.Join(placeholders, ", "))

	switch opts.ConflictResolution {
	case ConflictIgnore:
		query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteIdentifiers(opts.ConflictColumns))
	case ConflictUpdate:
		updateClauses := make([]string, len(opts.UpdateColumns))
		for i, col := range opts.UpdateColumns {
			quoted := pq.QuoteIdentifier(col)
			updateClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted)
		}
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
			quoteIdentifiers(opts.ConflictColumns),
			strings.Join(updateClauses, ", "))
	}
	return query
}

func quoteIdentifiers(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = pq.QuoteIdentifier(name)
	}
	return strings.Join(quoted, ", ")
}

// flushBufferUnsafe writes buffered records to PostgreSQL (must hold mutex).
func (w *PostgresWriter) flushBufferUnsafe(ctx context.Context) (err error) {
	if len(w.recordBuf) == 0 {
		return nil
	}
	start := time.Now()

	var tx *sql.Tx
	if w.options.TransactionMode {
		tx, err = w.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				tx.Rollback()
			}
		}()
	}

	for _, record := range w.recordBuf {
		values := make([]interface{}, len(w.columns))
		for i, col := range w.columns {
			values[i], err = sqlValue(record.Value(col))
			if err != nil {
				return fmt.Errorf("failed to encode column %s: %w", col, err)
			}
		}

		var result sql.Result
		if tx != nil {
			stmt := tx.StmtContext(ctx, w.prepared)
			result, err = stmt.ExecContext(ctx, values...)
			stmt.Close()
		} else {
			result, err = w.prepared.ExecContext(ctx, values...)
		}
		if err != nil {
			return fmt.Errorf("failed to execute insert: %w", err)
		}

		if rowsAffected, raErr := result.RowsAffected(); raErr == nil && rowsAffected == 0 {
			w.stats.ConflictCount++
		}
	}

	if tx != nil {
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		w.stats.TransactionCount++
	}

	w.stats.BatchesWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.recordBuf = w.recordBuf[:0]
	return nil
}

// inferSQLType infers a PostgreSQL column type from a JSON cell.
func inferSQLType(value interface{}) string {
	switch v := value.(type) {
	case bool:
		return "BOOLEAN"
	case int, int8, int16, int32, int64:
		return "BIGINT"
	case float32, float64:
		return "DOUBLE PRECISION"
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return "BIGINT"
		}
		return "DOUBLE PRECISION"
	case core.Record, []interface{}, map[string]interface{}:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// sqlValue converts a JSON cell to a driver value. Nested values are encoded as JSON text.
func sqlValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return v.Float64()
	case int:
		return int64(v), nil
	case core.Record, []interface{}, map[string]interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	default:
		return v, nil
	}
}

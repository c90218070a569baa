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

package readers

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/aaronlmathis/jsontable/core"
)

// Package readers provides core.DataSource implementations used to import rows into a JSONTable collection.
//
// This file implements a PostgreSQL reader that streams query results as records whose field
// order follows the result columns.

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReader implements core.DataSource for PostgreSQL query results.
type PostgresReader struct {
	mu          sync.Mutex
	db          *sql.DB
	rows        *sql.Rows
	columnNames []string
	columnTypes []string
	scanBuffer  []interface{}
	values      []interface{}
	stats       PostgresReaderStats
	opts        *PostgresReaderOptions
	isFinished  bool
}

// PostgresReaderStats holds statistics about the Postgres reader's performance
type PostgresReaderStats struct {
	RecordsRead     int64
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
	ConnectionTime  time.Duration
}

// PostgresReaderOptions configures the Postgres reader
type PostgresReaderOptions struct {
	DSN             string        // Database connection string
	Query           string        // SQL query to execute
	Params          []interface{} // Optional query parameters
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	MaxOpenConns    int           // Maximum open connections
	QueryTimeout    time.Duration // Connect and query timeout
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresQuery sets the query and its parameters.
func WithPostgresQuery(query string, params ...interface{}) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Query = query
		opts.Params = params
	}
}

// WithPostgresConnectionPool sets the pool size and connection lifetime.
func WithPostgresConnectionPool(maxOpen int, lifetime time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.MaxOpenConns = maxOpen
		opts.ConnMaxLifetime = lifetime
	}
}

// WithPostgresQueryTimeout sets the connect and query timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// NewPostgresReader connects, runs the query and returns a reader over its rows.
func NewPostgresReader(ctx context.Context, options ...PostgresReaderOption) (*PostgresReader, error) {
	opts := (&PostgresReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	if opts.DSN == "" {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	if opts.Query == "" {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("query is required")}
	}

	startTime := time.Now()
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, &PostgresReaderError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &PostgresReaderError{Op: "ping", Err: err}
	}

	reader := &PostgresReader{
		db:   db,
		opts: opts,
		stats: PostgresReaderStats{
			NullValueCounts: make(map[string]int64),
			ConnectionTime:  time.Since(startTime),
		},
	}

	if err := reader.executeQuery(ctx); err != nil {
		reader.Close()
		return nil, err
	}
	return reader, nil
}

// Stats returns statistics about the PostgreSQL reader's performance
func (p *PostgresReader) Stats() PostgresReaderStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	statsCopy := p.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Read returns the next result row as a record, or io.EOF. Thread-safe.
func (p *PostgresReader) Read(ctx context.Context) (core.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	if err := ctx.Err(); err != nil {
		return core.Record{}, &PostgresReaderError{Op: "read", Err: err}
	}
	if p.db == nil {
		return core.Record{}, &PostgresReaderError{Op: "read", Err: fmt.Errorf("reader is closed")}
	}
	if p.isFinished || p.rows == nil {
		return core.Record{}, io.EOF
	}

	if !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return core.Record{}, &PostgresReaderError{Op: "read", Err: err}
		}
		p.isFinished = true
		return core.Record{}, io.EOF
	}

	if err := p.rows.Scan(p.scanBuffer...); err != nil {
		return core.Record{}, &PostgresReaderError{Op: "scan", Err: err}
	}

	record, err := p.convertRowToRecord()
	if err != nil {
		return core.Record{}, &PostgresReaderError{Op: "convert", Err: err}
	}
	p.stats.RecordsRead++
	return record, nil
}

// Close releases all resources held by the PostgreSQL reader
func (p *PostgresReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.rows != nil {
		if err := p.rows.Close(); err != nil {
			firstErr = fmt.Errorf("closing rows: %w", err)
		}
		p.rows = nil
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
		p.db = nil
	}

	if firstErr != nil {
		return &PostgresReaderError{Op: "close", Err: firstErr}
	}
	return nil
}

// Schema returns the database type name of each result column.
func (p *PostgresReader) Schema() map[string]string {
	schema := make(map[string]string, len(p.columnNames))
	for i, name := range p.columnNames {
		schema[name] = p.columnTypes[i]
	}
	return schema
}

// withDefaults applies default values to PostgresReaderOptions
func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	result := &PostgresReaderOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 30 * time.Second
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 4
	}
	return result
}

// executeQuery runs the query and prepares scan buffers for its columns
func (p *PostgresReader) executeQuery(ctx context.Context) error {
	startTime := time.Now()

	rows, err := p.db.QueryContext(ctx, p.opts.Query, p.opts.Params...)
	if err != nil {
		return &PostgresReaderError{Op: "query", Err: err}
	}
	p.rows = rows
	p.stats.QueryDuration = time.Since(startTime)

	columnNames, err := rows.Columns()
	if err != nil {
		return &PostgresReaderError{Op: "columns", Err: err}
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return &PostgresReaderError{Op: "column_types", Err: err}
	}

	p.columnNames = columnNames
	p.columnTypes = make([]string, len(columnTypes))
	for i, ct := range columnTypes {
		p.columnTypes[i] = ct.DatabaseTypeName()
	}

	p.values = make([]interface{}, len(columnNames))
	p.scanBuffer = make([]interface{}, len(columnNames))
	for i := range p.scanBuffer {
		p.scanBuffer[i] = &p.values[i]
	}
	return nil
}

// convertRowToRecord converts the scanned values to a record in column order
func (p *PostgresReader) convertRowToRecord() (core.Record, error) {
	record := core.NewRecord()
	for i, columnName := range p.columnNames {
		value, err := convertSQLValue(p.values[i], p.columnTypes[i])
		if err != nil {
			return core.Record{}, fmt.Errorf("column %s: %w", columnName, err)
		}
		if value == nil {
			p.stats.NullValueCounts[columnName]++
		}
		record.Set(columnName, value)
	}
	return record, nil
}

// convertSQLValue maps a lib/pq driver value onto a JSON cell. JSON columns are decoded,
// NUMERIC and integer columns become json.Number, BYTEA becomes base64 text.
func convertSQLValue(value interface{}, dbType string) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		switch dbType {
		case "JSON", "JSONB":
			return core.DecodeJSON(v)
		case "NUMERIC", "DECIMAL":
			return json.Number(string(v)), nil
		case "BYTEA":
			return base64.StdEncoding.EncodeToString(v), nil
		default:
			return string(v), nil
		}
	case int64:
		return json.Number(strconv.FormatInt(v, 10)), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case bool, float64, string:
		return v, nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

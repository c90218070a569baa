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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/jsontable/core"
)

// Package writers provides core.DataSink implementations used to export JSONTable rows.
//
// This file implements a batching Parquet writer. The Arrow schema is inferred from the first
// row in its field order; nested objects and arrays are stored as JSON text columns.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "open_file", "schema", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriter implements core.DataSink for Parquet files.
type ParquetWriter struct {
	mu           sync.Mutex
	file         *os.File
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	closed       bool
	batchSize    int64
	recordBuffer []core.Record
	fieldOrder   []string
	stats        WriterStats
	errorState   bool
	builders     []array.Builder
	allocator    memory.Allocator
	opts         *ParquetWriterOptions
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize      int64                // Number of records to buffer before writing
	Schema         *arrow.Schema        // Pre-defined schema (optional)
	Compression    compress.Compression // Compression algorithm
	FieldOrder     []string             // Explicit field ordering
	RowGroupSize   int64                // Maximum rows per row group
	Metadata       map[string]string    // Arrow schema metadata
	ValidateSchema bool                 // Reject rows whose cells do not match the schema
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithFieldOrder sets the explicit column order for the Parquet schema.
func WithFieldOrder(fields []string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = append([]string(nil), fields...)
	}
}

// WithSchemaValidation enables or disables strict schema validation.
func WithSchemaValidation(validate bool) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.ValidateSchema = validate
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata sets key/value metadata stored with the schema.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// NewParquetWriter creates a new Parquet writer for a file, creating parent directories as needed.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	dir := filepath.Dir(filename)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{
				Op:  "create_directory",
				Err: fmt.Errorf("failed to create directory %s: %w", dir, err),
			}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{
			Op:  "open_file",
			Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err),
		}
	}

	return &ParquetWriter{
		file:         file,
		batchSize:    opts.BatchSize,
		fieldOrder:   opts.FieldOrder,
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
		allocator:    memory.NewGoAllocator(),
		opts:         opts,
	}, nil
}

// Stats returns a copy of the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.stats
	stats.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

// Write buffers a record and writes a row group batch when the buffer is full.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.schema == nil {
		if err := p.initializeSchema(record); err != nil {
			p.errorState = true
			return &ParquetWriterError{
				Op:  "schema",
				Err: fmt.Errorf("failed to initialize schema: %w", err),
			}
		}
	}

	if p.opts.ValidateSchema {
		if err := p.validateRecord(record); err != nil {
			return &ParquetWriterError{
				Op:  "validate",
				Err: fmt.Errorf("record validation failed: %w", err),
			}
		}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.batchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return &ParquetWriterError{
				Op:  "flush_batch",
				Err: fmt.Errorf("failed to flush batch: %w", err),
			}
		}
	}
	return nil
}

// Flush forces any buffered records to be written to the Parquet file.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushBatch()
}

// Close flushes remaining records and closes the file.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	flushErr := p.flushBatch()

	for _, builder := range p.builders {
		builder.Release()
	}
	p.builders = nil

	if p.writer != nil {
		// The file writer owns and closes the underlying file.
		err := p.writer.Close()
		p.writer = nil
		p.file = nil
		if err != nil {
			return &ParquetWriterError{
				Op:  "close_writer",
				Err: fmt.Errorf("failed to close parquet writer: %w", err),
			}
		}
	} else if p.file != nil {
		err := p.file.Close()
		p.file = nil
		if err != nil {
			return &ParquetWriterError{Op: "close_file", Err: err}
		}
	}

	if flushErr != nil {
		return &ParquetWriterError{
			Op:  "flush_remaining",
			Err: fmt.Errorf("failed to flush remaining records: %w", flushErr),
		}
	}
	return nil
}

// withDefaults applies default values to ParquetWriterOptions.
func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]string)
	}
	return result
}

// initializeSchema builds the Arrow schema and file writer. A preset schema wins;
// otherwise columns come from the first record in its field order.
func (p *ParquetWriter) initializeSchema(record core.Record) error {
	schema := p.opts.Schema
	if schema == nil {
		if p.fieldOrder == nil {
			p.fieldOrder = record.Keys()
		}

		fields := make([]arrow.Field, 0, len(p.fieldOrder))
		for _, name := range p.fieldOrder {
			fields = append(fields, arrow.Field{
				Name:     name,
				Type:     inferArrowType(record.Value(name)),
				Nullable: true,
			})
		}

		var metadata *arrow.Metadata
		if len(p.opts.Metadata) > 0 {
			md := arrow.MetadataFrom(p.opts.Metadata)
			metadata = &md
		}
		schema = arrow.NewSchema(fields, metadata)
	} else {
		p.fieldOrder = make([]string, 0, len(schema.Fields()))
		for _, f := range schema.Fields() {
			p.fieldOrder = append(p.fieldOrder, f.Name)
		}
	}
	p.schema = schema

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(schema, p.file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{
			Op:  "create_writer",
			Err: fmt.Errorf("failed to create parquet file writer: %w", err),
		}
	}
	p.writer = writer

	p.builders = make([]array.Builder, len(schema.Fields()))
	for i, field := range schema.Fields() {
		p.builders[i] = array.NewBuilder(p.allocator, field.Type)
	}
	return nil
}

// inferArrowType maps a JSON cell to an Arrow type. Whole json.Numbers become int64,
// other numbers float64, and nested values or nulls are stored as strings.
func inferArrowType(value interface{}) arrow.DataType {
	switch v := value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int, int32, int64:
		return arrow.PrimitiveTypes.Int64
	case float32, float64:
		return arrow.PrimitiveTypes.Float64
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return arrow.PrimitiveTypes.Int64
		}
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// flushBatch writes the current buffer as one Arrow record.
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 || p.writer == nil {
		return nil
	}
	startTime := time.Now()

	record, err := p.createArrowRecord(p.recordBuffer)
	if err != nil {
		return err
	}
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		return &ParquetWriterError{
			Op:  "write_batch",
			Err: fmt.Errorf("failed to write record batch: %w", err),
		}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(startTime)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

// createArrowRecord converts buffered rows to an Arrow record, one builder per column.
func (p *ParquetWriter) createArrowRecord(records []core.Record) (arrow.Record, error) {
	for _, record := range records {
		for i, fieldName := range p.fieldOrder {
			value, exists := record.Get(fieldName)
			if !exists || value == nil {
				p.appendNull(p.builders[i], fieldName)
				continue
			}
			if err := p.appendValue(p.builders[i], value, fieldName); err != nil {
				return nil, &ParquetWriterError{
					Op:  "append_value",
					Err: fmt.Errorf("failed to append value for field %s: %w", fieldName, err),
				}
			}
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, builder := range p.builders {
		arrays[i] = builder.NewArray()
		defer arrays[i].Release()
	}
	return array.NewRecord(p.schema, arrays, int64(len(records))), nil
}

func (p *ParquetWriter) appendNull(builder array.Builder, fieldName string) {
	builder.AppendNull()
	p.stats.NullValueCounts[fieldName]++
}

// appendValue appends a cell to its column builder. Cells that do not fit the
// column type are stored as nulls unless schema validation rejected them earlier.
func (p *ParquetWriter) appendValue(builder array.Builder, value interface{}, fieldName string) error {
	switch b := builder.(type) {
	case *array.BooleanBuilder:
		if v, ok := value.(bool); ok {
			b.Append(v)
			return nil
		}
	case *array.Int64Builder:
		if v, ok := asInt64(value); ok {
			b.Append(v)
			return nil
		}
	case *array.Float64Builder:
		if v, ok := asFloat64(value); ok {
			b.Append(v)
			return nil
		}
	case *array.StringBuilder:
		s, err := cellString(value)
		if err != nil {
			return err
		}
		b.Append(s)
		return nil
	default:
		return fmt.Errorf("unsupported builder type %T", builder)
	}

	p.appendNull(builder, fieldName)
	return nil
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func asFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		n, ok := asInt64(value)
		return float64(n), ok
	}
}

// validateRecord checks that every present cell matches its column type.
func (p *ParquetWriter) validateRecord(record core.Record) error {
	for _, field := range p.schema.Fields() {
		value, exists := record.Get(field.Name)
		if !exists || value == nil {
			continue
		}

		var ok bool
		switch field.Type.ID() {
		case arrow.BOOL:
			_, ok = value.(bool)
		case arrow.INT64:
			_, ok = asInt64(value)
		case arrow.FLOAT64:
			_, ok = asFloat64(value)
		case arrow.STRING:
			ok = true
		default:
			return fmt.Errorf("unsupported arrow type %s for validation", field.Type)
		}
		if !ok {
			return fmt.Errorf("field %s: expected %s, got %T", field.Name, field.Type, value)
		}
	}
	return nil
}

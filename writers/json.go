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
	"io"
	"sync"
	"time"

	"github.com/aaronlmathis/jsontable/core"
)

// JSONWriterError wraps JSON-specific write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriterStats holds JSON write performance statistics.
type JSONWriterStats struct {
	RecordsWritten  int64
	FlushCount      int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// JSONWriterOptions configures JSON lines output.
type JSONWriterOptions struct {
	BatchSize    int  // Flush after this many records; 0 disables batching
	FlushOnWrite bool // Without batching, flush after every record
}

// WriterOptionJSON is a functional option.
type WriterOptionJSON func(*JSONWriterOptions)

func WithJSONBatchSize(size int) WriterOptionJSON {
	return func(opts *JSONWriterOptions) {
		opts.BatchSize = size
	}
}

func WithFlushOnWrite(flush bool) WriterOptionJSON {
	return func(opts *JSONWriterOptions) {
		opts.FlushOnWrite = flush
	}
}

// JSONWriter implements DataSink for JSON lines files.
// Records keep their field order, one object per line.
type JSONWriter struct {
	writer     io.Writer
	closer     io.Closer
	options    JSONWriterOptions
	lineBuf    [][]byte
	stats      JSONWriterStats
	errorState bool
	mu         sync.Mutex
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output
func NewJSONWriter(w io.WriteCloser, opts ...WriterOptionJSON) *JSONWriter {
	options := JSONWriterOptions{
		BatchSize:    0,
		FlushOnWrite: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &JSONWriter{
		writer:  w,
		closer:  w,
		options: options,
		lineBuf: make([][]byte, 0, max(options.BatchSize, 1)),
		stats:   JSONWriterStats{NullValueCounts: make(map[string]int64)},
	}
}

// Write implements the DataSink interface
func (j *JSONWriter) Write(ctx context.Context, record core.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.errorState {
		return &JSONWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return &JSONWriterError{Op: "write", Err: fmt.Errorf("failed to marshal record to JSON: %w", err)}
	}

	record.Each(func(k string, v interface{}) bool {
		if v == nil {
			j.stats.NullValueCounts[k]++
		}
		return true
	})

	j.lineBuf = append(j.lineBuf, append(data, '\n'))
	j.stats.RecordsWritten++

	if j.shouldFlush() {
		if err := j.flushBufferUnsafe(); err != nil {
			j.errorState = true
			return err
		}
	}
	return nil
}

func (j *JSONWriter) shouldFlush() bool {
	if j.options.BatchSize > 0 {
		return len(j.lineBuf) >= j.options.BatchSize
	}
	return j.options.FlushOnWrite
}

// Flush implements the DataSink interface
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flushBufferUnsafe(); err != nil {
		return err
	}
	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return &JSONWriterError{Op: "flush_writer", Err: err}
		}
	}
	return nil
}

// Close implements the DataSink interface
func (j *JSONWriter) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}
	if j.closer != nil {
		if err := j.closer.Close(); err != nil {
			return &JSONWriterError{Op: "close", Err: err}
		}
	}
	return nil
}

// flushBufferUnsafe writes buffered lines (must hold mutex).
func (j *JSONWriter) flushBufferUnsafe() error {
	if len(j.lineBuf) == 0 {
		return nil
	}

	start := time.Now()
	for _, line := range j.lineBuf {
		if _, err := j.writer.Write(line); err != nil {
			return &JSONWriterError{Op: "write_line", Err: fmt.Errorf("failed to write JSON data: %w", err)}
		}
	}

	j.stats.FlushCount++
	j.stats.LastFlushTime = time.Now()
	j.stats.FlushDuration += time.Since(start)
	j.lineBuf = j.lineBuf[:0]
	return nil
}

// Stats returns write statistics.
func (j *JSONWriter) Stats() JSONWriterStats {
	j.mu.Lock()
	defer j.mu.Unlock()

	statsCopy := j.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(j.stats.NullValueCounts))
	for k, v := range j.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/jsontable/core"
)

// Mock writer for testing
type mockWriteCloser struct {
	*strings.Builder
	closed    bool
	failWrite bool
	failClose bool
	mu        sync.Mutex
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, io.ErrUnexpectedEOF
	}
	return m.Builder.Write(p)
}

func (m *mockWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.failClose {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (m *mockWriteCloser) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Builder.String()
}

func (m *mockWriteCloser) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newMockWriteCloser() *mockWriteCloser {
	return &mockWriteCloser{
		Builder: &strings.Builder{},
	}
}

// rec is shorthand for building ordered records in tests
func rec(kv ...interface{}) core.Record {
	r := core.NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// TestJSONWriter_BasicFunctionality tests core write operations
func TestJSONWriter_BasicFunctionality(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	ctx := context.Background()

	err := writer.Write(ctx, rec("id", 1, "name", "John Doe", "age", 30))
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	// Field order is kept
	assert.Equal(t, "{\"id\":1,\"name\":\"John Doe\",\"age\":30}\n", mock.String())
	assert.True(t, mock.IsClosed())
}

// TestJSONWriter_MultipleRecords tests writing multiple records
func TestJSONWriter_MultipleRecords(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	ctx := context.Background()
	records := []core.Record{
		rec("id", 1, "name", "Alice"),
		rec("id", 2, "name", "Bob"),
		rec("id", 3, "name", "Charlie"),
	}

	for _, record := range records {
		err := writer.Write(ctx, record)
		require.NoError(t, err)
	}

	err := writer.Close()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(mock.String()), "\n")
	assert.Len(t, lines, 3)

	for i, line := range lines {
		var parsed core.Record
		err := json.Unmarshal([]byte(line), &parsed)
		require.NoError(t, err)
		assert.True(t, records[i].Equal(parsed))
	}
}

// TestJSONWriter_BatchedWrites tests batching behavior
func TestJSONWriter_BatchedWrites(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock, WithJSONBatchSize(3))

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := writer.Write(ctx, rec("id", i, "value", i*10))
		require.NoError(t, err)
	}

	// First 3 records are written when the batch fills
	lines := strings.Split(strings.TrimSpace(mock.String()), "\n")
	assert.Len(t, lines, 3)

	err := writer.Flush()
	require.NoError(t, err)

	lines = strings.Split(strings.TrimSpace(mock.String()), "\n")
	assert.Len(t, lines, 5)

	stats := writer.Stats()
	assert.Equal(t, int64(5), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.FlushCount)
}

// TestJSONWriter_FlushOnWrite tests immediate flush behavior
func TestJSONWriter_FlushOnWrite(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock, WithFlushOnWrite(true))

	err := writer.Write(context.Background(), rec("test", "value"))
	require.NoError(t, err)

	assert.Contains(t, mock.String(), `"test":"value"`)

	stats := writer.Stats()
	assert.Equal(t, int64(1), stats.RecordsWritten)
	assert.Greater(t, stats.FlushCount, int64(0))
}

// TestJSONWriter_NoFlushOnWrite tests deferred flush behavior
func TestJSONWriter_NoFlushOnWrite(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock, WithFlushOnWrite(false))

	err := writer.Write(context.Background(), rec("test", "value"))
	require.NoError(t, err)

	assert.Empty(t, mock.String())

	err = writer.Flush()
	require.NoError(t, err)
	assert.Contains(t, mock.String(), `"test":"value"`)
}

// TestJSONWriter_NullValueTracking tests null value statistics
func TestJSONWriter_NullValueTracking(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	ctx := context.Background()
	records := []core.Record{
		rec("name", "Alice", "age", 30, "email", nil),
		rec("name", "Bob", "age", nil, "email", "bob@test.com"),
		rec("name", nil, "age", 25, "email", nil),
	}

	for _, record := range records {
		require.NoError(t, writer.Write(ctx, record))
	}
	require.NoError(t, writer.Close())

	stats := writer.Stats()
	assert.Equal(t, int64(2), stats.NullValueCounts["email"])
	assert.Equal(t, int64(1), stats.NullValueCounts["age"])
	assert.Equal(t, int64(1), stats.NullValueCounts["name"])
}

// TestJSONWriter_ComplexDataTypes tests nested values
func TestJSONWriter_ComplexDataTypes(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	record := rec(
		"string", "hello",
		"int", 42,
		"decoded", json.Number("3.14"),
		"bool", true,
		"null", nil,
		"array", []interface{}{1, 2, 3},
		"object", rec("nested", "value", "a", 1),
	)

	require.NoError(t, writer.Write(context.Background(), record))
	require.NoError(t, writer.Close())

	assert.Equal(t,
		`{"string":"hello","int":42,"decoded":3.14,"bool":true,"null":null,"array":[1,2,3],"object":{"nested":"value","a":1}}`,
		strings.TrimSpace(mock.String()))
}

// TestJSONWriter_ErrorHandling tests error conditions
func TestJSONWriter_ErrorHandling(t *testing.T) {
	t.Run("write_error", func(t *testing.T) {
		mock := newMockWriteCloser()
		mock.failWrite = true
		writer := NewJSONWriter(mock)

		err := writer.Write(context.Background(), rec("test", "value"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "json writer")

		// The writer refuses further records
		err = writer.Write(context.Background(), rec("test", "value"))
		assert.Contains(t, err.Error(), "error state")
	})

	t.Run("close_error", func(t *testing.T) {
		mock := newMockWriteCloser()
		mock.failClose = true
		writer := NewJSONWriter(mock)

		require.NoError(t, writer.Write(context.Background(), rec("test", "value")))
		assert.Error(t, writer.Close())
	})

	t.Run("write_after_error", func(t *testing.T) {
		mock := newMockWriteCloser()
		writer := NewJSONWriter(mock)

		// Force error state
		writer.errorState = true

		err := writer.Write(context.Background(), rec("test", "value"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "error state")
	})

	t.Run("invalid_json", func(t *testing.T) {
		mock := newMockWriteCloser()
		writer := NewJSONWriter(mock)

		// A channel is not JSON serializable
		err := writer.Write(context.Background(), rec("invalid", make(chan int)))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "marshal")
	})
}

// TestJSONWriter_StatisticsAccuracy tests statistics tracking
func TestJSONWriter_StatisticsAccuracy(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock, WithJSONBatchSize(2))

	ctx := context.Background()
	start := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, writer.Write(ctx, rec("id", i, "value", i*10, "null", nil)))
	}
	require.NoError(t, writer.Close())

	stats := writer.Stats()
	assert.Equal(t, int64(5), stats.RecordsWritten)

	// Two full batches plus the final flush
	assert.Equal(t, int64(3), stats.FlushCount)
	assert.GreaterOrEqual(t, stats.FlushDuration, time.Duration(0))
	assert.True(t, stats.LastFlushTime.After(start.Add(-time.Second)))
	assert.Equal(t, int64(5), stats.NullValueCounts["null"])
}

// TestJSONWriter_ConcurrentSafety tests thread safety
func TestJSONWriter_ConcurrentSafety(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock, WithJSONBatchSize(10), WithFlushOnWrite(false))

	ctx := context.Background()
	const numGoroutines = 5
	const recordsPerGoroutine = 3

	var wg sync.WaitGroup
	errChan := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				if err := writer.Write(ctx, rec("worker", workerID, "record", j, "data", "test data")); err != nil {
					errChan <- err
					return
				}
			}
		}(i)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		t.Errorf("Concurrent write error: %v", err)
	}

	require.NoError(t, writer.Close())

	stats := writer.Stats()
	assert.Equal(t, int64(numGoroutines*recordsPerGoroutine), stats.RecordsWritten)

	lines := strings.Split(strings.TrimSpace(mock.String()), "\n")
	assert.Len(t, lines, numGoroutines*recordsPerGoroutine)
	for _, line := range lines {
		var record map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(line), &record))
	}
}

// TestJSONWriter_ContextCancellation tests context handling
func TestJSONWriter_ContextCancellation(t *testing.T) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Cancellation is handled by the caller, not the writer
	require.NoError(t, writer.Write(ctx, rec("test", "value")))
	require.NoError(t, writer.Close())

	assert.Contains(t, mock.String(), `"test":"value"`)
}

// TestJSONWriter_EdgeCases tests edge cases
func TestJSONWriter_EdgeCases(t *testing.T) {
	t.Run("empty_record", func(t *testing.T) {
		mock := newMockWriteCloser()
		writer := NewJSONWriter(mock)

		require.NoError(t, writer.Write(context.Background(), core.Record{}))
		require.NoError(t, writer.Close())

		assert.Equal(t, "{}", strings.TrimSpace(mock.String()))
	})

	t.Run("zero_batch_size", func(t *testing.T) {
		mock := newMockWriteCloser()
		writer := NewJSONWriter(mock, WithJSONBatchSize(0))

		require.NoError(t, writer.Write(context.Background(), rec("test", "value")))

		// Flushes immediately with zero batch size
		assert.Contains(t, mock.String(), `"test":"value"`)
	})

	t.Run("multiple_flushes", func(t *testing.T) {
		mock := newMockWriteCloser()
		writer := NewJSONWriter(mock, WithFlushOnWrite(false))

		require.NoError(t, writer.Write(context.Background(), rec("test", "value")))

		// Multiple flushes should be safe
		require.NoError(t, writer.Flush())
		require.NoError(t, writer.Flush())

		lines := strings.Split(strings.TrimSpace(mock.String()), "\n")
		assert.Len(t, lines, 1)
	})
}

// BenchmarkJSONWriter_Write benchmarks write performance
func BenchmarkJSONWriter_Write(b *testing.B) {
	mock := newMockWriteCloser()
	writer := NewJSONWriter(mock, WithJSONBatchSize(1000))

	ctx := context.Background()
	record := rec(
		"id", 1,
		"name", "John Doe",
		"email", "john@example.com",
		"age", 30,
		"score", 85.5,
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		record.Set("id", i)
		if err := writer.Write(ctx, record); err != nil {
			b.Fatal(err)
		}
	}

	if err := writer.Close(); err != nil {
		b.Fatal(err)
	}
}

// BenchmarkJSONWriter_BatchSizes benchmarks different batch sizes
func BenchmarkJSONWriter_BatchSizes(b *testing.B) {
	batchSizes := []int{1, 10, 100, 1000}

	for _, batchSize := range batchSizes {
		b.Run(fmt.Sprintf("batch_%d", batchSize), func(b *testing.B) {
			mock := newMockWriteCloser()
			writer := NewJSONWriter(mock, WithJSONBatchSize(batchSize))

			ctx := context.Background()
			record := rec("id", 1, "data", "benchmark data")

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				record.Set("id", i)
				if err := writer.Write(ctx, record); err != nil {
					b.Fatal(err)
				}
			}

			if err := writer.Close(); err != nil {
				b.Fatal(err)
			}
		})
	}
}

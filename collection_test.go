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

package jsontable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/jsontable/core"
	"github.com/aaronlmathis/jsontable/logging"
	"github.com/aaronlmathis/jsontable/store"
)

const peopleJSON = `[{"name":"Peter","sex":"F","age":18},{"name":"Sue","sex":"F","age":16}]`

// sequentialPaths is a deterministic path generator for tests
type sequentialPaths struct {
	dir string
	mu  sync.Mutex
	n   int
}

func (s *sequentialPaths) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return filepath.Join(s.dir, fmt.Sprintf("out-%d.json", s.n))
}

// memStore is an in-memory store.Store
type memStore struct {
	data     []byte
	writes   [][]byte
	writeErr error
}

func (m *memStore) Read(context.Context) ([]byte, error) {
	return m.data, nil
}

func (m *memStore) Write(_ context.Context, content []byte) (store.Location, error) {
	if m.writeErr != nil {
		return store.Location{}, m.writeErr
	}
	m.writes = append(m.writes, content)
	return store.Location{OutputPath: fmt.Sprintf("mem://%d", len(m.writes))}, nil
}

// mockSink collects exported records
type mockSink struct {
	records []core.Record
	flushed bool
	closed  bool
	failAt  int
}

func (m *mockSink) Write(_ context.Context, record core.Record) error {
	if m.failAt > 0 && len(m.records)+1 == m.failAt {
		return errors.New("sink full")
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockSink) Flush() error {
	m.flushed = true
	return nil
}

func (m *mockSink) Close() error {
	m.closed = true
	return nil
}

// mockSource yields a fixed list of records
type mockSource struct {
	records []core.Record
	err     error
	closed  bool
}

func (m *mockSource) Read(context.Context) (core.Record, error) {
	if len(m.records) == 0 {
		if m.err != nil {
			return core.Record{}, m.err
		}
		return core.Record{}, io.EOF
	}
	next := m.records[0]
	m.records = m.records[1:]
	return next, nil
}

func (m *mockSource) Close() error {
	m.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return logging.Discard()
}

// newPeople writes content to a temporary source file and opens it
func newPeople(t *testing.T, content string, options ...Option) (*Collection, string, *sequentialPaths) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "people.json")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	paths := &sequentialPaths{dir: dir}
	options = append([]Option{WithPathGenerator(paths), WithLogger(discardLogger())}, options...)
	return New(src, options...), src, paths
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func flipSex(_ context.Context, args core.RowArgs) (core.Record, error) {
	if args.Row.Value("sex") == "F" {
		return args.Row.With("sex", "M"), nil
	}
	return args.Row.With("sex", "F"), nil
}

// TestCollection_Rows tests loading the current rows
func TestCollection_Rows(t *testing.T) {
	c, _, _ := newPeople(t, peopleJSON)

	rows, err := c.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Peter", rows[0].Value("name"))
}

// TestCollection_RowsErrors tests missing and malformed sources
func TestCollection_RowsErrors(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "missing.json"), WithLogger(discardLogger()))
	_, err := c.Rows(context.Background())
	assert.True(t, errors.Is(err, core.ErrIO))

	c, _, _ = newPeople(t, `{"name":"not a table"}`)
	_, err = c.Rows(context.Background())
	assert.True(t, errors.Is(err, core.ErrFormat))
}

// TestCollection_Filter tests partial-match and predicate queries
func TestCollection_Filter(t *testing.T) {
	c, _, _ := newPeople(t, peopleJSON)
	ctx := context.Background()

	rows, err := c.Filter(ctx, core.Partial(core.F("sex", "F")), false)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = c.Filter(ctx, core.Partial(core.F("sex", "F")), true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Peter", rows[0].Value("name"))

	rows, err = c.Filter(ctx, core.Partial(core.F("age", 16)), false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Sue", rows[0].Value("name"))

	rows, err = c.Filter(ctx, core.Partial(core.F("name", "Nobody")), false)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = c.Filter(ctx, core.QueryFunc(func(_ context.Context, args core.RowArgs) (bool, error) {
		age, err := core.ToNum(args.Row.Value("age"))
		return age > 17, err
	}), false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Peter", rows[0].Value("name"))
}

// TestCollection_FilterPartialMatch tests missing keys and nested query values
func TestCollection_FilterPartialMatch(t *testing.T) {
	c, _, _ := newPeople(t, `[
		{"name":"Peter","meta":{"tags":["a","b"],"rank":1}},
		{"name":"Sue","meta":{"tags":["b","a"],"rank":1}},
		{"name":"Bob"}
	]`)
	ctx := context.Background()

	rows, err := c.Filter(ctx, core.Partial(core.F("nickname", nil)), false)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = c.Filter(ctx, core.Partial(core.F("name", "Bob"), core.F("meta", nil)), false)
	require.NoError(t, err)
	assert.Empty(t, rows)

	meta := core.NewRecord(core.F("rank", 1), core.F("tags", []interface{}{"a", "b"}))
	rows, err = c.Filter(ctx, core.Partial(core.F("meta", meta)), false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Peter", rows[0].Value("name"))

	rows, err = c.Filter(ctx, core.Partial(core.F("meta", map[string]interface{}{
		"tags": []interface{}{"b", "a"},
		"rank": 1,
	})), false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Sue", rows[0].Value("name"))

	rows, err = c.Filter(ctx, core.Partial(core.F("meta", core.NewRecord(core.F("rank", 1)))), false)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// TestCollection_FilterErrors tests invalid and failing queries
func TestCollection_FilterErrors(t *testing.T) {
	c, _, _ := newPeople(t, peopleJSON)
	ctx := context.Background()

	_, err := c.Filter(ctx, nil, false)
	assert.True(t, errors.Is(err, core.ErrInvalidQuery))

	var nilFunc core.QueryFunc
	_, err = c.Filter(ctx, nilFunc, false)
	assert.True(t, errors.Is(err, core.ErrInvalidQuery))

	boom := errors.New("boom")
	_, err = c.Filter(ctx, core.QueryFunc(func(context.Context, core.RowArgs) (bool, error) {
		return false, boom
	}), false)
	assert.Same(t, boom, err)
}

// TestCollection_LoopSaveOnDone tests transforming every row and saving
func TestCollection_LoopSaveOnDone(t *testing.T) {
	c, src, _ := newPeople(t, peopleJSON)

	res, err := c.Loop(context.Background(), LoopOptions{
		Transformer: core.TransformFunc(flipSex),
		SaveOnDone:  true,
	})
	require.NoError(t, err)

	want := `[{"name":"Peter","sex":"M","age":18},{"name":"Sue","sex":"M","age":16}]`
	assert.NotEmpty(t, res.OutputPath)
	assert.Empty(t, res.BackupPath)
	assert.Equal(t, want, readFile(t, res.OutputPath))
	assert.Equal(t, peopleJSON, readFile(t, src), "source must be untouched")
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "M", res.Rows[1].Value("sex"))
}

// TestCollection_LoopWithoutSave tests that nothing is written unless asked
func TestCollection_LoopWithoutSave(t *testing.T) {
	c, _, paths := newPeople(t, peopleJSON)

	res, err := c.Loop(context.Background(), LoopOptions{
		Query:       core.Partial(core.F("name", "Sue")),
		Transformer: core.Merge(core.F("age", 17), core.F("grade", "B")),
	})
	require.NoError(t, err)

	assert.Empty(t, res.OutputPath)
	assert.Equal(t, 0, paths.n)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, `{"name":"Peter","sex":"F","age":18}`, res.Rows[0].String())
	assert.Equal(t, `{"name":"Sue","sex":"F","age":17,"grade":"B"}`, res.Rows[1].String())
}

// TestCollection_LoopSaveOnError tests the failure scenario on the second row
func TestCollection_LoopSaveOnError(t *testing.T) {
	c, _, _ := newPeople(t, peopleJSON)
	errSue := errors.New("sue cannot change")

	res, err := c.Loop(context.Background(), LoopOptions{
		Transformer: core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
			if args.Row.Value("name") == "Sue" {
				return core.Record{}, errSue
			}
			return flipSex(ctx, args)
		}),
		SaveOnDone:  true,
		SaveOnError: true,
	})
	require.Error(t, err)
	assert.Same(t, errSue, err)

	require.NotEmpty(t, res.OutputPath)
	assert.Equal(t, `[{"name":"Peter","sex":"M","age":18},{"name":"Sue","sex":"F","age":16}]`, readFile(t, res.OutputPath))
}

// TestCollection_LoopErrorWithoutSave tests that a failed loop writes nothing by default
func TestCollection_LoopErrorWithoutSave(t *testing.T) {
	c, _, paths := newPeople(t, peopleJSON)
	boom := errors.New("boom")

	res, err := c.Loop(context.Background(), LoopOptions{
		Transformer: core.TransformFunc(func(context.Context, core.RowArgs) (core.Record, error) {
			return core.Record{}, boom
		}),
		SaveOnDone: true,
	})
	assert.Same(t, boom, err)
	assert.Empty(t, res.OutputPath)
	assert.Equal(t, 0, paths.n)
}

// TestCollection_LoopFailurePartition tests what is persisted when row k fails
func TestCollection_LoopFailurePartition(t *testing.T) {
	const n = 6
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"id":%d}`, i)
	}
	sb.WriteString("]")

	for k := 0; k < n; k++ {
		t.Run(fmt.Sprintf("fail at %d", k), func(t *testing.T) {
			mem := &memStore{data: []byte(sb.String())}
			c := New("", WithStore(mem), WithLogger(discardLogger()))
			boom := errors.New("boom")

			_, err := c.Loop(context.Background(), LoopOptions{
				Transformer: core.TransformFunc(func(_ context.Context, args core.RowArgs) (core.Record, error) {
					if core.Equal(args.Row.Value("id"), k) {
						return core.Record{}, boom
					}
					return args.Row.With("done", true), nil
				}),
				SaveOnError: true,
			})
			require.ErrorIs(t, err, boom)
			require.Len(t, mem.writes, 1)

			var want strings.Builder
			want.WriteString("[")
			for i := 0; i < n; i++ {
				if i > 0 {
					want.WriteString(",")
				}
				if i < k {
					fmt.Fprintf(&want, `{"id":%d,"done":true}`, i)
				} else {
					fmt.Fprintf(&want, `{"id":%d}`, i)
				}
			}
			want.WriteString("]")
			assert.Equal(t, want.String(), string(mem.writes[0]))
		})
	}
}

// TestCollection_LoopOrdering tests that rows are visited in order against a stable snapshot
func TestCollection_LoopOrdering(t *testing.T) {
	mem := &memStore{data: []byte(`[{"id":1},{"id":2},{"id":3}]`)}
	c := New("", WithStore(mem), WithLogger(discardLogger()))

	var visited []interface{}
	res, err := c.Loop(context.Background(), LoopOptions{
		Query: core.QueryFunc(func(_ context.Context, args core.RowArgs) (bool, error) {
			require.Len(t, args.Rows, 3)
			return true, nil
		}),
		Transformer: core.TransformFunc(func(_ context.Context, args core.RowArgs) (core.Record, error) {
			visited = append(visited, args.Row.Value("id"))
			// The snapshot still holds untransformed siblings.
			for _, row := range args.Rows {
				assert.False(t, row.Has("seen"))
			}
			args.Row.Set("seen", len(visited))
			return args.Row, nil
		}),
	})
	require.NoError(t, err)

	require.Len(t, visited, 3)
	for i, id := range visited {
		assert.True(t, core.Equal(i+1, id))
	}
	for i, row := range res.Rows {
		assert.Equal(t, i+1, row.Value("seen"))
	}
}

// TestCollection_LoopPartialSaveError tests a failed save after a failed row
func TestCollection_LoopPartialSaveError(t *testing.T) {
	saveErr := errors.New("disk full")
	mem := &memStore{data: []byte(peopleJSON), writeErr: saveErr}
	c := New("", WithStore(mem), WithLogger(discardLogger()))
	boom := errors.New("boom")

	res, err := c.Loop(context.Background(), LoopOptions{
		Transformer: core.TransformFunc(func(context.Context, core.RowArgs) (core.Record, error) {
			return core.Record{}, boom
		}),
		SaveOnError: true,
	})
	require.Error(t, err)

	var partial *core.PartialSaveError
	require.True(t, errors.As(err, &partial))
	assert.True(t, errors.Is(err, boom))
	assert.True(t, errors.Is(err, saveErr))
	assert.Len(t, res.Rows, 2)
}

// TestCollection_LoopCancelled tests that cancellation between rows counts as a failure
func TestCollection_LoopCancelled(t *testing.T) {
	mem := &memStore{data: []byte(peopleJSON)}
	c := New("", WithStore(mem), WithLogger(discardLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.Loop(ctx, LoopOptions{
		Transformer: core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
			cancel()
			return flipSex(ctx, args)
		}),
		SaveOnError: true,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, mem.writes, 1)
	assert.Equal(t, `[{"name":"Peter","sex":"M","age":18},{"name":"Sue","sex":"F","age":16}]`, string(mem.writes[0]))
}

// TestCollection_LoopInvalidTransformer tests a missing transformer
func TestCollection_LoopInvalidTransformer(t *testing.T) {
	c, _, _ := newPeople(t, peopleJSON)

	_, err := c.Loop(context.Background(), LoopOptions{SaveOnError: true})
	assert.True(t, errors.Is(err, core.ErrInvalidTransformer))

	_, err = c.Loop(context.Background(), LoopOptions{
		Query:       core.QueryFunc(nil),
		Transformer: core.Merge(),
	})
	assert.True(t, errors.Is(err, core.ErrInvalidQuery))
}

// TestCollection_WriteInPlace tests the backup taken when overwriting the source
func TestCollection_WriteInPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "people.json")
	require.NoError(t, os.WriteFile(src, []byte(peopleJSON), 0o644))

	c := New(src, WithOutputPath(src), WithPathGenerator(&sequentialPaths{dir: dir}), WithLogger(discardLogger()))
	res, err := c.Loop(context.Background(), LoopOptions{
		Transformer: core.TransformFunc(flipSex),
		SaveOnDone:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, src, res.OutputPath)
	require.NotEmpty(t, res.BackupPath)
	assert.Equal(t, peopleJSON, readFile(t, res.BackupPath))
	assert.Equal(t, `[{"name":"Peter","sex":"M","age":18},{"name":"Sue","sex":"M","age":16}]`, readFile(t, src))
}

// TestCollection_Rewrite tests whole-sequence rewrites
func TestCollection_Rewrite(t *testing.T) {
	c, src, _ := newPeople(t, peopleJSON)

	res, err := c.Rewrite(context.Background(), func(_ context.Context, rows []core.Record) ([]core.Record, error) {
		rows[0].Set("age", 99)
		return rows[:1], nil
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"Peter","sex":"F","age":99}]`, readFile(t, res.OutputPath))
	assert.Equal(t, peopleJSON, readFile(t, src))

	boom := errors.New("boom")
	_, err = c.Rewrite(context.Background(), func(context.Context, []core.Record) ([]core.Record, error) {
		return nil, boom
	})
	assert.Same(t, boom, err)

	_, err = c.Rewrite(context.Background(), nil)
	assert.True(t, errors.Is(err, core.ErrInvalidTransformer))
}

// TestCollection_Sort tests ordering, shape and repeatability
func TestCollection_Sort(t *testing.T) {
	mem := &memStore{data: []byte(`[{"n":"a","age":30},{"n":"b","age":20},{"n":"c","age":30},{"n":"d","age":10}]`)}
	c := New("", WithStore(mem), WithLogger(discardLogger()))

	byAge := func(a, b core.Record) int {
		x, _ := core.ToNum(a.Value("age"))
		y, _ := core.ToNum(b.Value("age"))
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}

	res, err := c.Sort(context.Background(), byAge)
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)

	var names []interface{}
	for _, row := range res.Rows {
		names = append(names, row.Value("n"))
		assert.Equal(t, []string{"n", "age"}, row.Keys())
	}
	assert.Equal(t, []interface{}{"d", "b", "a", "c"}, names)

	mem.data = mem.writes[0]
	_, err = c.Sort(context.Background(), byAge)
	require.NoError(t, err)
	assert.Equal(t, string(mem.writes[0]), string(mem.writes[1]))

	_, err = c.Sort(context.Background(), nil)
	assert.True(t, errors.Is(err, core.ErrInvalidTransformer))
}

// TestCollection_Export tests streaming rows into a sink
func TestCollection_Export(t *testing.T) {
	c, _, _ := newPeople(t, peopleJSON)

	sink := &mockSink{}
	n, err := c.Export(context.Background(), sink, core.Partial(core.F("name", "Sue")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, sink.flushed)
	assert.True(t, sink.closed)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "Sue", sink.records[0].Value("name"))

	sink = &mockSink{failAt: 2}
	n, err = c.Export(context.Background(), sink, nil)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, sink.closed)
}

// TestCollection_Import tests appending records from a source
func TestCollection_Import(t *testing.T) {
	c, _, _ := newPeople(t, peopleJSON)

	src := &mockSource{records: []core.Record{core.NewRecord(core.F("name", "Ann"), core.F("sex", "F"), core.F("age", 40))}}
	res, err := c.Import(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, src.closed)
	assert.Equal(t,
		`[{"name":"Peter","sex":"F","age":18},{"name":"Sue","sex":"F","age":16},{"name":"Ann","sex":"F","age":40}]`,
		readFile(t, res.OutputPath))

	readErr := errors.New("bad input")
	_, err = c.Import(context.Background(), &mockSource{err: readErr})
	assert.ErrorIs(t, err, readErr)
}

// TestCollection_Logging tests save and failure notices
func TestCollection_Logging(t *testing.T) {
	var buf strings.Builder
	mem := &memStore{data: []byte(peopleJSON)}
	c := New("", WithStore(mem), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	boom := errors.New("boom")
	failing := core.TransformFunc(func(context.Context, core.RowArgs) (core.Record, error) {
		return core.Record{}, boom
	})

	_, err := c.Loop(context.Background(), LoopOptions{Transformer: core.Merge(), SaveOnDone: true})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "rows saved")

	_, _ = c.Loop(context.Background(), LoopOptions{Transformer: failing})
	assert.Contains(t, buf.String(), "loop failed, nothing saved")

	_, _ = c.Loop(context.Background(), LoopOptions{Transformer: failing, SaveOnError: true})
	assert.Contains(t, buf.String(), "loop failed, progress saved")
}

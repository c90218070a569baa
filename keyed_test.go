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
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/jsontable/core"
)

const complexJSON = `{"name":"test","list":[{"name":"Peter","age":18,"sex":"M"},{"name":"Sue","age":16,"sex":"F"}]}`

func newKeyed(t *testing.T, content string, options ...Option) (*Keyed, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "people.json")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	options = append([]Option{WithPathGenerator(&sequentialPaths{dir: dir}), WithLogger(discardLogger())}, options...)
	return NewKeyed(src, "name", options...), dir
}

// TestKeyed_GetRowByID tests identity lookups
func TestKeyed_GetRowByID(t *testing.T) {
	k, _ := newKeyed(t, peopleJSON)
	ctx := context.Background()

	row, ok, err := k.GetRowByID(ctx, "Sue")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, core.Equal(16, row.Value("age")))

	_, ok, err = k.GetRowByID(ctx, "Nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "name", k.IDField())
}

// TestKeyed_GetRowByIDFirstMatch tests that duplicated ids yield the first row
func TestKeyed_GetRowByIDFirstMatch(t *testing.T) {
	k, _ := newKeyed(t, `[{"name":"A","n":1},{"name":"A","n":2}]`)

	row, ok, err := k.GetRowByID(context.Background(), "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, core.Equal(1, row.Value("n")))
}

// TestKeyed_LargeNumericIDs tests that ids beyond float precision stay distinct
func TestKeyed_LargeNumericIDs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ids.json")
	require.NoError(t, os.WriteFile(src,
		[]byte(`[{"id":9007199254740992,"n":"a"},{"id":9007199254740993,"n":"b"}]`), 0o644))
	k := NewKeyed(src, "id", WithPathGenerator(&sequentialPaths{dir: dir}), WithLogger(discardLogger()))
	ctx := context.Background()

	row, ok, err := k.GetRowByID(ctx, int64(9007199254740993))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", row.Value("n"))

	row, ok, err = k.GetRowByID(ctx, json.Number("9007199254740992"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", row.Value("n"))
}

// TestKeyed_GetCellByID tests single-cell lookups
func TestKeyed_GetCellByID(t *testing.T) {
	k, _ := newKeyed(t, peopleJSON)
	ctx := context.Background()

	value, ok, err := k.GetCellByID(ctx, "Peter", "sex")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "F", value)

	value, ok, err = k.GetCellByID(ctx, "Peter", "height")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)

	value, ok, err = k.GetCellByID(ctx, "Nobody", "sex")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}

// TestKeyed_EditFieldByIDWithoutSave tests an in-memory edit
func TestKeyed_EditFieldByIDWithoutSave(t *testing.T) {
	k, dir := newKeyed(t, peopleJSON)

	res, err := k.EditFieldByID(context.Background(), "Peter", "age", core.Literal(25), false)
	require.NoError(t, err)

	assert.Empty(t, res.OutputPath)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, `{"name":"Peter","sex":"F","age":25}`, res.Rows[0].String())
	assert.Equal(t, `{"name":"Sue","sex":"F","age":16}`, res.Rows[1].String())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no file may be written")
}

// TestKeyed_EditFieldByIDCellFunc tests computed cell values
func TestKeyed_EditFieldByIDCellFunc(t *testing.T) {
	k, _ := newKeyed(t, peopleJSON)

	res, err := k.EditFieldByID(context.Background(), "Peter", "sex",
		core.CellFunc(func(_ context.Context, args core.RowArgs) (interface{}, error) {
			if args.Row.Value("sex") == "F" {
				return "M", nil
			}
			return "F", nil
		}), false)
	require.NoError(t, err)
	assert.Equal(t, "M", res.Rows[0].Value("sex"))
	assert.Equal(t, "F", res.Rows[1].Value("sex"))
}

// TestKeyed_EditFieldByIDNewField tests adding a field that did not exist
func TestKeyed_EditFieldByIDNewField(t *testing.T) {
	k, _ := newKeyed(t, peopleJSON)

	res, err := k.EditFieldByID(context.Background(), "Sue", "tags",
		core.Literal([]interface{}{"a", core.NewRecord(core.F("b", true))}), true)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"name":"Peter","sex":"F","age":18},{"name":"Sue","sex":"F","age":16,"tags":["a",{"b":true}]}]`,
		readFile(t, res.OutputPath))
}

// TestKeyed_EditFieldByIDErrors tests that failed edits never write
func TestKeyed_EditFieldByIDErrors(t *testing.T) {
	k, dir := newKeyed(t, peopleJSON)
	ctx := context.Background()

	_, err := k.EditFieldByID(ctx, "Peter", "age", nil, true)
	assert.True(t, errors.Is(err, core.ErrInvalidTransformer))

	_, err = k.EditFieldByID(ctx, "Peter", "age", core.Literal(struct{}{}), true)
	assert.True(t, errors.Is(err, core.ErrInvalidTransformer))

	boom := errors.New("boom")
	_, err = k.EditFieldByID(ctx, "Sue", "age", core.CellFunc(func(context.Context, core.RowArgs) (interface{}, error) {
		return nil, boom
	}), true)
	assert.Same(t, boom, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// TestKeyed_NestedRows tests a document keeping its rows under a key
func TestKeyed_NestedRows(t *testing.T) {
	k, _ := newKeyed(t, complexJSON, WithRowsKey("list"))
	ctx := context.Background()

	res, err := k.EditFieldByID(ctx, "Peter", "age", core.Literal(25), false)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Peter","age":25,"sex":"M"}`, res.Rows[0].String())
	assert.Equal(t, `{"name":"Sue","age":16,"sex":"F"}`, res.Rows[1].String())

	res, err = k.EditFieldByID(ctx, "Peter", "age", core.Literal(25), true)
	require.NoError(t, err)
	assert.Equal(t,
		`{"name":"test","list":[{"name":"Peter","age":25,"sex":"M"},{"name":"Sue","age":16,"sex":"F"}]}`,
		readFile(t, res.OutputPath))
}

// TestKeyed_NestedRowsIndented tests pretty-printed nested output
func TestKeyed_NestedRowsIndented(t *testing.T) {
	k, _ := newKeyed(t, `{"list":[{"name":"Peter"}]}`, WithIndent("  "), WithRowsKey("list"))

	res, err := k.EditFieldByID(context.Background(), "Peter", "age", core.Literal(1), true)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"list\": [\n    {\n      \"name\": \"Peter\",\n      \"age\": 1\n    }\n  ]\n}", readFile(t, res.OutputPath))
}

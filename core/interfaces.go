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

package core

import (
	"context"
)

// Package core defines the core interfaces for the JSONTable library.
//
// This file contains the query and transformer abstractions used to select and rewrite
// rows, their function adapters, and the data source/sink interfaces used for import
// and export.

// RowArgs is passed to every query and transformer callback.
// Rows is the snapshot taken when the operation started; it must not be modified.
type RowArgs struct {
	Row  Record
	Rows []Record
}

// Query selects rows.
type Query interface {
	// Match reports whether the row should be selected.
	Match(ctx context.Context, args RowArgs) (bool, error)
}

// QueryFunc is a function adapter for the Query interface.
// A callback that does asynchronous work simply blocks until its answer is ready.
type QueryFunc func(ctx context.Context, args RowArgs) (bool, error)

// Match implements the Query interface for QueryFunc.
func (f QueryFunc) Match(ctx context.Context, args RowArgs) (bool, error) {
	if f == nil {
		return false, &InvalidQueryError{Reason: "nil query function"}
	}
	return f(ctx, args)
}

// PartialMatch selects rows that contain every field of the record with an equal value.
// Extra fields on the row are ignored.
type PartialMatch struct {
	Fields Record
}

// Partial creates a partial-match query from the given fields.
func Partial(fields ...Field) PartialMatch {
	return PartialMatch{Fields: NewRecord(fields...)}
}

// Match implements the Query interface for PartialMatch.
func (p PartialMatch) Match(_ context.Context, args RowArgs) (bool, error) {
	matched := true
	p.Fields.Each(func(key string, want interface{}) bool {
		got, ok := args.Row.Get(key)
		matched = ok && Equal(got, want)
		return matched
	})
	return matched, nil
}

// Transformer computes the replacement for a row.
type Transformer interface {
	// Transform returns the full new row.
	Transform(ctx context.Context, args RowArgs) (Record, error)
}

// TransformFunc is a function adapter for the Transformer interface.
type TransformFunc func(ctx context.Context, args RowArgs) (Record, error)

// Transform implements the Transformer interface for TransformFunc.
func (f TransformFunc) Transform(ctx context.Context, args RowArgs) (Record, error) {
	if f == nil {
		return Record{}, &InvalidTransformerError{Kind: "row", Value: f}
	}
	return f(ctx, args)
}

// MergeTransformer shallow-merges its patch onto the row; the patch's fields win.
type MergeTransformer struct {
	Patch Record
}

// Merge creates a transformer merging the given fields onto each row.
func Merge(fields ...Field) MergeTransformer {
	return MergeTransformer{Patch: NewRecord(fields...)}
}

// Transform implements the Transformer interface for MergeTransformer.
func (m MergeTransformer) Transform(_ context.Context, args RowArgs) (Record, error) {
	return args.Row.Merge(m.Patch), nil
}

// CellTransformer computes the new value of a single cell.
type CellTransformer interface {
	// Cell returns the new cell value for the row.
	Cell(ctx context.Context, args RowArgs) (interface{}, error)
}

// CellFunc is a function adapter for the CellTransformer interface.
type CellFunc func(ctx context.Context, args RowArgs) (interface{}, error)

// Cell implements the CellTransformer interface for CellFunc.
func (f CellFunc) Cell(ctx context.Context, args RowArgs) (interface{}, error) {
	if f == nil {
		return nil, &InvalidTransformerError{Kind: "cell", Value: f}
	}
	return f(ctx, args)
}

// LiteralValue is a cell transformer that always yields the same JSON value.
type LiteralValue struct {
	V interface{}
}

// Literal creates a cell transformer replacing the cell with value.
func Literal(value interface{}) LiteralValue {
	return LiteralValue{V: value}
}

// Cell implements the CellTransformer interface for LiteralValue.
func (l LiteralValue) Cell(context.Context, RowArgs) (interface{}, error) {
	if !IsJSONValue(l.V) {
		return nil, &InvalidTransformerError{Kind: "cell", Value: l.V}
	}
	return cloneValue(l.V), nil
}

// DataSource defines the interface for importing records.
type DataSource interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// DataSink defines the interface for exporting records.
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

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
	"io"
	"log/slog"
	"slices"

	"github.com/aaronlmathis/jsontable/core"
	"github.com/aaronlmathis/jsontable/parser"
	"github.com/aaronlmathis/jsontable/store"
)

// Collection is a table of rows stored in a JSON document.
//
// Rows are processed one at a time, in document order, on the caller's goroutine.
// The document is assumed to have a single writer for the duration of an operation.
type Collection struct {
	store  store.Store
	parser *parser.Parser
	logger *slog.Logger
}

// New creates a collection for the JSON document at filePath.
func New(filePath string, options ...Option) *Collection {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := opts.Store
	if s == nil {
		storeOpts := []store.FileStoreOption{store.WithLogger(logger)}
		if opts.Paths != nil {
			storeOpts = append(storeOpts, store.WithPathGenerator(opts.Paths))
		}
		s = store.NewFileStore(store.FileOptions{
			FilePath:   filePath,
			OutputPath: opts.OutputPath,
		}, storeOpts...)
	}

	return &Collection{
		store:  s,
		parser: parser.New(opts.Parser),
		logger: logger,
	}
}

// Rows returns the current rows of the document.
func (c *Collection) Rows(ctx context.Context) ([]core.Record, error) {
	raw, err := c.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	return c.parser.ParseRows(raw)
}

// Filter returns the rows selected by q, in document order.
// With once set it stops at the first match.
func (c *Collection) Filter(ctx context.Context, q core.Query, once bool) ([]core.Record, error) {
	if q == nil {
		return nil, &core.InvalidQueryError{Reason: "nil query"}
	}

	rows, err := c.Rows(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]core.Record, 0)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := core.EvaluateQuery(ctx, q, core.RowArgs{Row: row, Rows: rows})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		matches = append(matches, row)
		if once {
			break
		}
	}
	return matches, nil
}

// Loop transforms the rows selected by opts.Query and keeps the others unchanged.
//
// Queries are evaluated against the rows as they were when the loop started, and every
// callback receives that snapshot as RowArgs.Rows. When a row fails, the error is
// returned as is. With SaveOnError set, the rows already processed followed by the
// failing row and the rest, all untouched, are written first and the returned result
// says where. If that write fails too, a *core.PartialSaveError carrying both errors is
// returned.
func (c *Collection) Loop(ctx context.Context, opts LoopOptions) (WriteResult, error) {
	if opts.Transformer == nil {
		return WriteResult{}, &core.InvalidTransformerError{Kind: "row", Value: opts.Transformer}
	}

	snapshot, err := c.Rows(ctx)
	if err != nil {
		return WriteResult{}, err
	}

	processed := make([]core.Record, 0, len(snapshot))
	for i, row := range snapshot {
		next, err := c.step(ctx, opts, row, snapshot)
		if err != nil {
			return c.handleLoopError(ctx, opts, err, i, processed, snapshot)
		}
		processed = append(processed, next)
	}

	result := WriteResult{Rows: processed}
	if !opts.SaveOnDone {
		return result, nil
	}
	return c.save(ctx, processed)
}

// step computes the replacement for a single row.
func (c *Collection) step(ctx context.Context, opts LoopOptions, row core.Record, snapshot []core.Record) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return core.Record{}, err
	}

	args := core.RowArgs{Row: row.Clone(), Rows: snapshot}
	if opts.Query != nil {
		matched, err := core.EvaluateQuery(ctx, opts.Query, args)
		if err != nil {
			return core.Record{}, err
		}
		if !matched {
			return row, nil
		}
	}
	return core.ResolveRowTransform(ctx, opts.Transformer, args)
}

// handleLoopError applies the save-on-error policy for a failure at row index failed.
func (c *Collection) handleLoopError(ctx context.Context, opts LoopOptions, cause error, failed int, processed, snapshot []core.Record) (WriteResult, error) {
	if !opts.SaveOnError {
		c.logger.Warn("loop failed, nothing saved", "row", failed, "error", cause)
		return WriteResult{}, cause
	}

	rows := make([]core.Record, 0, len(snapshot))
	rows = append(rows, processed...)
	rows = append(rows, snapshot[failed:]...)

	// The caller's context may be the reason the loop stopped.
	saveCtx := context.WithoutCancel(ctx)
	result, err := c.save(saveCtx, rows)
	if err != nil {
		c.logger.Error("loop failed and saving progress failed", "row", failed, "error", cause, "save_error", err)
		return WriteResult{Rows: rows}, &core.PartialSaveError{Cause: cause, SaveErr: err}
	}

	c.logger.Warn("loop failed, progress saved", "row", failed, "error", cause, "output", result.OutputPath)
	return result, cause
}

// Rewrite passes a copy of the rows to fn and writes whatever it returns.
func (c *Collection) Rewrite(ctx context.Context, fn RewriteFunc) (WriteResult, error) {
	if fn == nil {
		return WriteResult{}, &core.InvalidTransformerError{Kind: "rows", Value: fn}
	}

	rows, err := c.Rows(ctx)
	if err != nil {
		return WriteResult{}, err
	}

	rewritten, err := fn(ctx, core.CloneRows(rows))
	if err != nil {
		return WriteResult{}, err
	}
	return c.save(ctx, rewritten)
}

// Sort orders the rows with cmp and writes them. Rows that compare equal keep their order.
func (c *Collection) Sort(ctx context.Context, cmp CompareFunc) (WriteResult, error) {
	if cmp == nil {
		return WriteResult{}, &core.InvalidTransformerError{Kind: "compare", Value: cmp}
	}
	return c.Rewrite(ctx, func(_ context.Context, rows []core.Record) ([]core.Record, error) {
		slices.SortStableFunc(rows, cmp)
		return rows, nil
	})
}

// Export writes the rows selected by q to sink, then flushes and closes it.
// A nil query exports every row. It returns the number of rows written.
func (c *Collection) Export(ctx context.Context, sink core.DataSink, q core.Query) (n int, err error) {
	defer func() {
		if flushErr := sink.Flush(); flushErr != nil && err == nil {
			err = flushErr
		}
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var rows []core.Record
	if q == nil {
		rows, err = c.Rows(ctx)
	} else {
		rows, err = c.Filter(ctx, q, false)
	}
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := sink.Write(ctx, row); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Import appends every record read from src to the table and writes the result.
// src is closed once drained. Nothing is written when reading fails.
func (c *Collection) Import(ctx context.Context, src core.DataSource) (WriteResult, error) {
	imported, err := drain(ctx, src)
	if err != nil {
		return WriteResult{}, err
	}
	return c.Rewrite(ctx, func(_ context.Context, rows []core.Record) ([]core.Record, error) {
		return append(rows, imported...), nil
	})
}

func drain(ctx context.Context, src core.DataSource) (records []core.Record, err error) {
	defer func() {
		if closeErr := src.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

// save serializes rows and writes them through the store.
func (c *Collection) save(ctx context.Context, rows []core.Record) (WriteResult, error) {
	content, err := c.parser.SerializeRows(rows)
	if err != nil {
		return WriteResult{Rows: rows}, err
	}

	loc, err := c.store.Write(ctx, content)
	if err != nil {
		return WriteResult{Rows: rows}, err
	}

	c.logger.Info("rows saved", "output", loc.OutputPath, "rows", len(rows))
	return WriteResult{
		OutputPath: loc.OutputPath,
		BackupPath: loc.BackupPath,
		Rows:       rows,
	}, nil
}

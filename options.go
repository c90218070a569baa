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
	"log/slog"

	"github.com/aaronlmathis/jsontable/core"
	"github.com/aaronlmathis/jsontable/parser"
	"github.com/aaronlmathis/jsontable/store"
)

// Package jsontable treats a JSON file as an editable table.
//
// A Collection loads the rows of a document, selects them with a core.Query, rewrites them
// with a core.Transformer and writes the result back, optionally backing up the source.
// A Keyed collection adds lookups and edits by a unique identity field.
//
// Example usage:
//
//	people := jsontable.NewKeyed("people.json", "name", jsontable.WithOutputPath("people.json"))
//	res, err := people.EditFieldByID(ctx, "Peter", "age", core.Literal(25), true)
//	if err != nil { log.Fatal(err) }
//	fmt.Println(res.OutputPath, res.BackupPath)
//
// Every operation re-reads the source, so a collection never serves stale rows.

// WriteResult describes the outcome of an operation that may persist rows.
// Rows always holds the rows produced, whether or not they were written.
// OutputPath and BackupPath are empty when nothing was written.
type WriteResult struct {
	OutputPath string
	BackupPath string
	Rows       []core.Record
}

// LoopOptions configures Collection.Loop.
type LoopOptions struct {
	Query       core.Query       // Rows to transform; nil transforms every row
	Transformer core.Transformer // Required
	SaveOnDone  bool             // Persist the result when every row succeeded
	SaveOnError bool             // Persist progress plus untouched rows when a row fails
}

// RewriteFunc transforms a whole row sequence.
// It receives a private copy of the rows and may modify it in place.
type RewriteFunc func(ctx context.Context, rows []core.Record) ([]core.Record, error)

// CompareFunc orders two rows; a negative result sorts a before b.
type CompareFunc func(a, b core.Record) int

// Options holds the collection configuration.
type Options struct {
	OutputPath string
	Parser     parser.Options
	Store      store.Store
	Paths      store.PathGenerator
	Logger     *slog.Logger
}

// Option is a functional option for collections.
type Option func(*Options)

// WithOutputPath sets where results are written. Without it every save goes to a freshly
// generated temporary file; setting it to the source path overwrites the source after a backup.
func WithOutputPath(path string) Option {
	return func(opts *Options) {
		opts.OutputPath = path
	}
}

// WithParserOptions sets custom row extraction and rebuild functions.
func WithParserOptions(p parser.Options) Option {
	return func(opts *Options) {
		indent := opts.Parser.Indent
		opts.Parser = p
		if p.Indent == "" {
			opts.Parser.Indent = indent
		}
	}
}

// WithRowsKey reads and writes rows stored under key in a top-level object.
func WithRowsKey(key string) Option {
	return WithParserOptions(parser.NestedRows(key))
}

// WithIndent pretty-prints written documents.
func WithIndent(indent string) Option {
	return func(opts *Options) {
		opts.Parser.Indent = indent
	}
}

// WithStore replaces the local file store, for example with a store.S3Store.
// The file path and output path options are ignored when a store is set.
func WithStore(s store.Store) Option {
	return func(opts *Options) {
		opts.Store = s
	}
}

// WithPathGenerator sets the generator for default output and backup paths.
func WithPathGenerator(g store.PathGenerator) Option {
	return func(opts *Options) {
		opts.Paths = g
	}
}

// WithLogger sets the logger for save, backup and failure notices.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

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

package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aaronlmathis/jsontable/core"
)

// Package parser converts between raw table documents and row sequences.
//
// By default a document must be a JSON array of objects. Documents that keep their rows
// elsewhere (for example under a top-level key) are handled with an ExtractFunc and a
// RebuildFunc; NestedRows builds that pair for the common {"key": [...]} shape.

// ExtractFunc returns the row array held by a decoded document.
type ExtractFunc func(document interface{}) (interface{}, error)

// RebuildFunc builds the document to write from the originally parsed document and the
// new rows. It should keep every unrelated field of the original.
type RebuildFunc func(original interface{}, rows []core.Record) (interface{}, error)

// Options configures how rows are extracted from and written back to a document.
type Options struct {
	ExtractRows ExtractFunc // Nil means the document itself is the row array
	Rebuild     RebuildFunc // Nil means the rows are written as a bare array
	Indent      string      // Pretty-print output with this indent when set
}

// NestedRows returns options for documents holding their rows under key.
// Sibling fields and their order are preserved on rebuild.
func NestedRows(key string) Options {
	return Options{
		ExtractRows: func(document interface{}) (interface{}, error) {
			rec, ok := document.(core.Record)
			if !ok {
				return nil, &core.FormatError{Op: "extract", Reason: "document is not an object"}
			}
			rows, _ := rec.Get(key)
			return rows, nil
		},
		Rebuild: func(original interface{}, rows []core.Record) (interface{}, error) {
			rec, ok := original.(core.Record)
			if !ok {
				return nil, &core.FormatError{Op: "rebuild", Reason: "document is not an object"}
			}
			return rec.With(key, core.RowsToValues(rows)), nil
		},
	}
}

// Parser turns raw documents into rows and rows back into documents.
// The last parsed document is retained so that it can be rebuilt; access to it is
// guarded, but a Parser is meant to serve one table.
type Parser struct {
	opts Options

	mu       sync.Mutex
	original interface{}
	parsed   bool
}

// New creates a parser with the given options.
func New(opts Options) *Parser {
	return &Parser{opts: opts}
}

// Options returns the parser configuration.
func (p *Parser) Options() Options {
	return p.opts
}

// ParseRows decodes raw and returns its rows, retaining the decoded document.
func (p *Parser) ParseRows(raw []byte) ([]core.Record, error) {
	document, err := core.DecodeJSON(raw)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.original = document
	p.parsed = true
	p.mu.Unlock()

	if p.opts.ExtractRows == nil {
		items, ok := document.([]interface{})
		if !ok {
			return nil, &core.FormatError{Op: "parse", Reason: "parsed data is not an array"}
		}
		return toRows(items)
	}

	extracted, err := p.opts.ExtractRows(core.CloneValue(document))
	if err != nil {
		return nil, err
	}
	switch v := extracted.(type) {
	case []interface{}:
		return toRows(v)
	case []core.Record:
		return v, nil
	default:
		return nil, &core.FormatError{Op: "extract", Reason: "extracted data is not an array"}
	}
}

// SerializeRows encodes rows as the document to write.
// With a RebuildFunc configured, a document must have been parsed first.
func (p *Parser) SerializeRows(rows []core.Record) ([]byte, error) {
	if rows == nil {
		rows = []core.Record{}
	}

	var output interface{} = rows
	if p.opts.Rebuild != nil {
		p.mu.Lock()
		original, parsed := p.original, p.parsed
		p.mu.Unlock()

		if !parsed {
			return nil, &core.FormatError{Op: "rebuild", Reason: "no parsed document to rebuild"}
		}

		rebuilt, err := p.opts.Rebuild(core.CloneValue(original), rows)
		if err != nil {
			return nil, err
		}
		output = rebuilt
	}

	return p.encode(output)
}

func (p *Parser) encode(value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, &core.FormatError{Op: "serialize", Reason: "cannot encode rows", Err: err}
	}
	if p.opts.Indent == "" {
		return data, nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", p.opts.Indent); err != nil {
		return nil, &core.FormatError{Op: "serialize", Reason: "cannot indent output", Err: err}
	}
	return buf.Bytes(), nil
}

func toRows(items []interface{}) ([]core.Record, error) {
	rows := make([]core.Record, len(items))
	for i, item := range items {
		rec, ok := item.(core.Record)
		if !ok {
			return nil, &core.FormatError{Op: "parse", Reason: fmt.Sprintf("row %d is not an object", i)}
		}
		rows[i] = rec
	}
	return rows, nil
}

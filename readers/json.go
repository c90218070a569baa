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
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aaronlmathis/jsontable/core"
)

// JSONReaderError wraps structured error information for the JSON lines reader.
type JSONReaderError struct {
	Op   string
	Line int
	Err  error
}

func (e *JSONReaderError) Error() string {
	return fmt.Sprintf("json reader %s (line %d): %v", e.Op, e.Line, e.Err)
}

func (e *JSONReaderError) Unwrap() error {
	return e.Err
}

// JSONReader implements DataSource for JSON lines files.
// Every non-blank line must hold one JSON object; field order is preserved.
type JSONReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewJSONReader creates a new JSON reader for line-delimited JSON
func NewJSONReader(r io.ReadCloser) *JSONReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &JSONReader{
		scanner: scanner,
		closer:  r,
	}
}

// Read implements the DataSource interface
func (j *JSONReader) Read(ctx context.Context) (core.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.Record{}, &JSONReaderError{Op: "read", Line: j.line, Err: err}
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return core.Record{}, &JSONReaderError{Op: "scan", Line: j.line, Err: err}
			}
			return core.Record{}, io.EOF
		}
		j.line++

		line := j.scanner.Bytes()
		if strings.TrimSpace(string(line)) == "" {
			continue
		}

		var record core.Record
		if err := record.UnmarshalJSON(line); err != nil {
			return core.Record{}, &JSONReaderError{Op: "decode", Line: j.line, Err: err}
		}
		return record, nil
	}
}

// Close implements the DataSource interface
func (j *JSONReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

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
	"fmt"
	"os"

	"github.com/aaronlmathis/jsontable/config"
	"github.com/aaronlmathis/jsontable/core"
	"github.com/aaronlmathis/jsontable/logging"
	"github.com/aaronlmathis/jsontable/types"
)

// OpenTable builds a keyed collection from a table definition.
// Logs go to stderr at the configured level unless options supply a logger.
func OpenTable(cfg *config.Table, options ...Option) (*Keyed, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}

	opts := []Option{WithLogger(logger)}
	if cfg.Output != "" {
		opts = append(opts, WithOutputPath(cfg.Output))
	}
	if cfg.RowsKey != "" {
		opts = append(opts, WithRowsKey(cfg.RowsKey))
	}
	if cfg.Indent != "" {
		opts = append(opts, WithIndent(cfg.Indent))
	}
	opts = append(opts, options...)

	return NewKeyed(cfg.File, cfg.IDField, opts...), nil
}

// ExportSink opens the default export destination of a table definition.
func ExportSink(ctx context.Context, cfg *config.Table) (core.DataSink, error) {
	if cfg.Export.Format == "" {
		return nil, fmt.Errorf("table %s has no export destination", cfg.File)
	}
	format, err := types.ParseFormat(cfg.Export.Format)
	if err != nil {
		return nil, err
	}
	return types.FileLocation{Path: cfg.Export.Path}.NewSink(ctx, format)
}

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

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Package config loads YAML table definitions.
//
// A definition names the JSON file, where rows live inside it, the identity field and
// how results are written:
//
//	file: data/people.json
//	output: data/people.json
//	rows_key: people
//	id_field: name
//	indent: "  "
//	log_level: debug
//	export:
//	  format: csv
//	  path: out/people.csv

// Table defines a keyed JSON table.
type Table struct {
	File     string `yaml:"file"`
	Output   string `yaml:"output,omitempty"`    // Empty writes to generated temporary files
	RowsKey  string `yaml:"rows_key,omitempty"`  // Empty means the document is the row array
	IDField  string `yaml:"id_field"`
	Indent   string `yaml:"indent,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"` // debug, info, warn or error
	Export   Export `yaml:"export,omitempty"`
}

// Export is an optional default export destination.
type Export struct {
	Format string `yaml:"format,omitempty"` // csv, jsonl or parquet
	Path   string `yaml:"path,omitempty"`
}

// Load reads and validates a table definition from a file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table config: %w", err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Parse decodes and validates a table definition.
func Parse(data []byte) (*Table, error) {
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse table config: %w", err)
	}
	if table.LogLevel == "" {
		table.LogLevel = "info"
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table config: %w", err)
	}
	return &table, nil
}

// Validate checks required fields and enumerated values.
func (t *Table) Validate() error {
	var errs []error
	if strings.TrimSpace(t.File) == "" {
		errs = append(errs, errors.New("file is required"))
	}
	if strings.TrimSpace(t.IDField) == "" {
		errs = append(errs, errors.New("id_field is required"))
	}
	switch strings.ToLower(t.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", t.LogLevel))
	}
	if (t.Export.Format == "") != (t.Export.Path == "") {
		errs = append(errs, errors.New("export needs both format and path"))
	}
	return errors.Join(errs...)
}

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

package store

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// Package store provides the storage backends a table is read from and written to.
//
// A Store reads the raw source document and writes serialized output, backing up the
// source first whenever the output would overwrite it.

// Location describes where a write landed.
// BackupPath is empty unless the source was copied before being overwritten.
type Location struct {
	OutputPath string
	BackupPath string
}

// Store reads and writes raw table documents.
type Store interface {
	// Read returns the raw content of the source document.
	Read(ctx context.Context) ([]byte, error)
	// Write stores content at the output location, backing up the source if it would be overwritten.
	Write(ctx context.Context, content []byte) (Location, error)
}

// PathGenerator produces fresh, collision-free paths.
type PathGenerator interface {
	Generate() string
}

// PathGeneratorFunc is a function adapter for the PathGenerator interface.
type PathGeneratorFunc func() string

// Generate implements the PathGenerator interface for PathGeneratorFunc.
func (f PathGeneratorFunc) Generate() string {
	return f()
}

// UUIDPaths generates file paths named after random UUIDs.
// It is safe for concurrent use.
type UUIDPaths struct {
	Dir string // Defaults to os.TempDir()
	Ext string // Defaults to ".json"
}

// Generate implements the PathGenerator interface.
func (u UUIDPaths) Generate() string {
	dir := u.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, uuid.NewString()+extOrDefault(u.Ext))
}

// UUIDKeys generates slash-separated object keys named after random UUIDs.
type UUIDKeys struct {
	Prefix string
	Ext    string // Defaults to ".json"
}

// Generate implements the PathGenerator interface.
func (u UUIDKeys) Generate() string {
	return path.Join(u.Prefix, uuid.NewString()+extOrDefault(u.Ext))
}

func extOrDefault(ext string) string {
	if ext == "" {
		return ".json"
	}
	return ext
}

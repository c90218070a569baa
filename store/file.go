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
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aaronlmathis/jsontable/core"
)

// FileOptions configures a FileStore.
type FileOptions struct {
	FilePath   string // Source document
	OutputPath string // Destination; a generated temporary path when empty
}

// FileStoreOption is a functional option for FileStore.
type FileStoreOption func(*FileStore)

// WithPathGenerator sets the generator used for default output and backup paths.
func WithPathGenerator(g PathGenerator) FileStoreOption {
	return func(s *FileStore) {
		if g != nil {
			s.paths = g
		}
	}
}

// WithLogger sets the logger used for save and backup notices.
func WithLogger(logger *slog.Logger) FileStoreOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// FileStore reads and writes a table document on the local filesystem.
type FileStore struct {
	opts   FileOptions
	paths  PathGenerator
	logger *slog.Logger
}

// NewFileStore creates a FileStore for the given source and output paths.
func NewFileStore(opts FileOptions, options ...FileStoreOption) *FileStore {
	s := &FileStore{
		opts:   opts,
		paths:  UUIDPaths{},
		logger: slog.Default(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Options returns the configured paths.
func (s *FileStore) Options() FileOptions {
	return s.opts
}

// Read implements the Store interface.
func (s *FileStore) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.opts.FilePath)
	if err != nil {
		return nil, &core.IOError{Op: "read", Path: s.opts.FilePath, Err: err}
	}
	return data, nil
}

// Write implements the Store interface.
// When the output path is the source path, the source is first copied to a generated
// backup path. Copy and write are separate steps and are not atomic.
func (s *FileStore) Write(ctx context.Context, content []byte) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}

	loc := Location{OutputPath: s.outputPath()}

	if samePath(loc.OutputPath, s.opts.FilePath) {
		s.logger.Info("output path is the source path, backing up the source first",
			"path", s.opts.FilePath)
		backup, err := s.backup()
		if err != nil {
			return Location{}, err
		}
		loc.BackupPath = backup
	}

	if err := os.WriteFile(loc.OutputPath, content, 0o644); err != nil {
		return Location{}, &core.IOError{Op: "write", Path: loc.OutputPath, Err: err}
	}
	return loc, nil
}

func (s *FileStore) outputPath() string {
	if s.opts.OutputPath != "" {
		return s.opts.OutputPath
	}
	return s.paths.Generate()
}

// backup copies the source file to a fresh path and returns that path.
func (s *FileStore) backup() (string, error) {
	backupPath := s.paths.Generate()
	if err := copyFile(s.opts.FilePath, backupPath); err != nil {
		return "", &core.IOError{Op: "backup", Path: backupPath, Err: err}
	}
	s.logger.Info("backup saved", "source", s.opts.FilePath, "backup", backupPath)
	return backupPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

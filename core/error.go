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
	"errors"
	"fmt"
)

// Package core defines the error handling types for the JSONTable library.
//
// Every error kind has a sentinel so callers can match with errors.Is, and a struct type
// carrying the operation and context for errors.As.

var (
	// ErrFormat reports a document that is not in the expected row-array shape.
	ErrFormat = errors.New("format error")
	// ErrInvalidQuery reports a query that is neither a partial match nor a predicate.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidTransformer reports a transformer that cannot produce a row or cell.
	ErrInvalidTransformer = errors.New("invalid transformer")
	// ErrIO reports a failed read, write or copy.
	ErrIO = errors.New("io error")
)

// FormatError wraps JSON shape errors with context.
type FormatError struct {
	Op     string // Operation that failed (e.g., "decode", "parse", "extract", "rebuild")
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("format %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("format %s: %s", e.Op, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// InvalidQueryError is returned when a query cannot be evaluated.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

func (e *InvalidQueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// InvalidTransformerError is returned when a row or cell transformer cannot be resolved.
type InvalidTransformerError struct {
	Kind  string // "row" or "cell"
	Value interface{}
}

func (e *InvalidTransformerError) Error() string {
	return fmt.Sprintf("invalid %s transformer: %T", e.Kind, e.Value)
}

func (e *InvalidTransformerError) Is(target error) bool {
	return target == ErrInvalidTransformer
}

// IOError wraps storage failures with the operation and path involved.
type IOError struct {
	Op   string // "read", "write" or "backup"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// PartialSaveError is returned when a loop failed and saving its progress failed too.
// Both errors stay reachable through errors.Is and errors.As.
type PartialSaveError struct {
	Cause   error // The error that stopped the loop
	SaveErr error // The error raised while saving progress
}

func (e *PartialSaveError) Error() string {
	return fmt.Sprintf("%v (saving progress failed: %v)", e.Cause, e.SaveErr)
}

func (e *PartialSaveError) Unwrap() []error {
	return []error{e.Cause, e.SaveErr}
}

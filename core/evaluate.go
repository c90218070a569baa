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

import "context"

// EvaluateQuery reports whether args.Row is selected by q.
func EvaluateQuery(ctx context.Context, q Query, args RowArgs) (bool, error) {
	if q == nil {
		return false, &InvalidQueryError{Reason: "nil query"}
	}
	return q.Match(ctx, args)
}

// ResolveRowTransform computes the replacement for args.Row.
func ResolveRowTransform(ctx context.Context, t Transformer, args RowArgs) (Record, error) {
	if t == nil {
		return Record{}, &InvalidTransformerError{Kind: "row", Value: t}
	}
	return t.Transform(ctx, args)
}

// ResolveCellTransform computes a new cell value for args.Row.
func ResolveCellTransform(ctx context.Context, t CellTransformer, args RowArgs) (interface{}, error) {
	if t == nil {
		return nil, &InvalidTransformerError{Kind: "cell", Value: t}
	}
	return t.Cell(ctx, args)
}

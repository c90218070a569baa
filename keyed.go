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

	"github.com/aaronlmathis/jsontable/core"
)

// Keyed is a collection whose rows are identified by the value of one field.
type Keyed struct {
	*Collection
	idField string
}

// NewKeyed creates a keyed collection for the document at filePath, using idField as
// the identity of each row.
func NewKeyed(filePath, idField string, options ...Option) *Keyed {
	return &Keyed{
		Collection: New(filePath, options...),
		idField:    idField,
	}
}

// IDField returns the name of the identity field.
func (k *Keyed) IDField() string {
	return k.idField
}

func (k *Keyed) byID(id interface{}) core.Query {
	return core.Partial(core.F(k.idField, id))
}

// GetRowByID returns the first row whose identity field equals id.
func (k *Keyed) GetRowByID(ctx context.Context, id interface{}) (core.Record, bool, error) {
	rows, err := k.Filter(ctx, k.byID(id), true)
	if err != nil || len(rows) == 0 {
		return core.Record{}, false, err
	}
	return rows[0], true, nil
}

// GetCellByID returns the value of field in the row identified by id.
// ok is false when there is no such row or the row has no such field.
func (k *Keyed) GetCellByID(ctx context.Context, id interface{}, field string) (value interface{}, ok bool, err error) {
	row, found, err := k.GetRowByID(ctx, id)
	if err != nil || !found {
		return nil, false, err
	}
	value, ok = row.Get(field)
	return value, ok, nil
}

// EditFieldByID sets field on the row identified by id to the value produced by value.
// Other rows are left untouched. Nothing is written when the edit fails.
func (k *Keyed) EditFieldByID(ctx context.Context, id interface{}, field string, value core.CellTransformer, saveOnDone bool) (WriteResult, error) {
	if value == nil {
		return WriteResult{}, &core.InvalidTransformerError{Kind: "cell", Value: value}
	}

	return k.Loop(ctx, LoopOptions{
		Query: k.byID(id),
		Transformer: core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
			cell, err := core.ResolveCellTransform(ctx, value, args)
			if err != nil {
				return core.Record{}, err
			}
			return args.Row.With(field, cell), nil
		}),
		SaveOnDone:  saveOnDone,
		SaveOnError: false,
	})
}

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

package transform

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/jsontable/core"
)

// Package transform provides reusable, composable row transformers for JSONTable collections.
//
// This package includes field selection, renaming, type conversion, string normalization, and custom field logic.
// All functions return core.Transformer implementations for use with Loop. Transformers never modify
// the row they receive; each returns a new row.

// Chain creates a transformer that applies the given transformers in sequence.
// Every step receives the output of the previous one as its row.
func Chain(transformers ...core.Transformer) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
		current := args
		for _, t := range transformers {
			next, err := core.ResolveRowTransform(ctx, t, current)
			if err != nil {
				return core.Record{}, err
			}
			current.Row = next
		}
		return current.Row, nil
	})
}

// Select creates a transformer that selects only the specified fields from each row.
// Fields not listed are omitted from the output row, which follows the order of fields.
func Select(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
		result := core.NewRecord()
		for _, field := range fields {
			if value, exists := args.Row.Get(field); exists {
				result.Set(field, core.CloneValue(value))
			}
		}
		return result, nil
	})
}

// Rename creates a transformer that renames fields according to the provided mapping.
// Keys are original field names, values are new field names. Renamed fields keep their position.
func Rename(mapping map[string]string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
		result := core.NewRecord()
		args.Row.Each(func(key string, value interface{}) bool {
			if newKey, exists := mapping[key]; exists {
				key = newKey
			}
			result.Set(key, core.CloneValue(value))
			return true
		})
		return result, nil
	})
}

// SetField creates a transformer that sets a field to the value produced by a cell transformer.
// Use core.Literal for a constant and core.CellFunc for a computed value.
func SetField(field string, value core.CellTransformer) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
		cell, err := core.ResolveCellTransform(ctx, value, args)
		if err != nil {
			return core.Record{}, err
		}
		return args.Row.With(field, cell), nil
	})
}

// AddField creates a transformer that adds a new field with a computed value to each row.
// The value is computed by the provided function, which receives the current row.
func AddField(field string, fn func(core.Record) interface{}) core.Transformer {
	return SetField(field, core.CellFunc(func(ctx context.Context, args core.RowArgs) (interface{}, error) {
		return fn(args.Row), nil
	}))
}

// ConvertType creates a transformer that converts the type of a field to the specified reflect.Type.
// If conversion fails, an error is returned and the row is not modified.
func ConvertType(field string, targetType reflect.Type) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
		value, exists := args.Row.Get(field)
		if !exists {
			return args.Row.Clone(), nil
		}

		converted, err := convertValue(value, targetType)
		if err != nil {
			return core.Record{}, fmt.Errorf("failed to convert field %s: %w", field, err)
		}
		return args.Row.With(field, converted), nil
	})
}

// ToString creates a transformer that converts a field to a string.
func ToString(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(""))
}

// ToInt creates a transformer that converts a field to an int.
func ToInt(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(0))
}

// ToFloat creates a transformer that converts a field to a float64.
func ToFloat(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(0.0))
}

// ToBool creates a transformer that converts a field to a bool.
func ToBool(field string) core.Transformer {
	return ConvertType(field, reflect.TypeOf(false))
}

// TrimSpace creates a transformer that trims whitespace from the specified string fields.
func TrimSpace(fields ...string) core.Transformer {
	return mapStrings(strings.TrimSpace, fields)
}

// ToUpper creates a transformer that converts the specified string fields to uppercase.
func ToUpper(fields ...string) core.Transformer {
	return mapStrings(strings.ToUpper, fields)
}

// ToLower creates a transformer that converts the specified string fields to lowercase.
func ToLower(fields ...string) core.Transformer {
	return mapStrings(strings.ToLower, fields)
}

// mapStrings applies fn to the string values of fields; other values are left alone.
func mapStrings(fn func(string) string, fields []string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
		result := args.Row.Clone()
		for _, field := range fields {
			if value, exists := result.Get(field); exists {
				if str, ok := value.(string); ok {
					result.Set(field, fn(str))
				}
			}
		}
		return result, nil
	})
}

// FormatTime creates a transformer that parses a string field with layout and rewrites it
// using outLayout (time.RFC3339 when empty). Cells must stay JSON values, so the result is a string.
func FormatTime(field, layout, outLayout string) core.Transformer {
	if outLayout == "" {
		outLayout = time.RFC3339
	}
	return core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
		value, exists := args.Row.Get(field)
		str, ok := value.(string)
		if !exists || !ok {
			return args.Row.Clone(), nil
		}

		parsed, err := time.Parse(layout, str)
		if err != nil {
			return core.Record{}, fmt.Errorf("failed to parse time field %s: %w", field, err)
		}
		return args.Row.With(field, parsed.Format(outLayout)), nil
	})
}

// RemoveField creates a transformer that removes the specified field from each row.
// If the field doesn't exist, the row is returned unchanged.
func RemoveField(field string) core.Transformer {
	return RemoveFields(field)
}

// RemoveFields creates a transformer that removes multiple specified fields from each row.
// Fields that don't exist are ignored.
func RemoveFields(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, args core.RowArgs) (core.Record, error) {
		result := args.Row.Clone()
		for _, field := range fields {
			result.Delete(field)
		}
		return result, nil
	})
}

// convertValue converts a value to the specified reflect.Type for use in type conversion transformers.
func convertValue(value interface{}, targetType reflect.Type) (interface{}, error) {
	if value == nil {
		return reflect.Zero(targetType).Interface(), nil
	}

	sourceValue := reflect.ValueOf(value)
	if sourceValue.Type() == targetType {
		return value, nil
	}

	switch targetType.Kind() {
	case reflect.String:
		return fmt.Sprintf("%v", value), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return convertToInt(value)
	case reflect.Float32, reflect.Float64:
		return core.ToNum(value)
	case reflect.Bool:
		return convertToBool(value)
	default:
		return nil, fmt.Errorf("unsupported target type: %s", targetType)
	}
}

// convertToInt attempts to convert a value to int.
func convertToInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	case int:
		return v, nil
	default:
		f, err := core.ToNum(value)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %T to int", value)
		}
		return int(f), nil
	}
}

// convertToBool attempts to convert a value to bool.
func convertToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case bool:
		return v, nil
	default:
		f, err := core.ToNum(value)
		if err != nil {
			return false, fmt.Errorf("cannot convert %T to bool", value)
		}
		return f != 0, nil
	}
}

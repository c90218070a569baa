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

package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/aaronlmathis/jsontable/core"
)

// Package filter provides reusable, composable row queries for JSONTable collections.
//
// This package includes field-based, value-based and custom logic queries for selecting rows.
// All functions return core.Query implementations for use with Filter, Loop and Export.

// NotNull creates a query that excludes rows where the specified field is missing, null or empty
func NotNull(field string) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		value, exists := args.Row.Get(field)
		if !exists {
			return false, nil
		}
		if value == nil {
			return false, nil
		}
		if str, ok := value.(string); ok && str == "" {
			return false, nil
		}
		return true, nil
	})
}

// Equals creates a query that selects rows where the field equals the specified value.
// Numbers compare numerically; objects and arrays compare deeply.
func Equals(field string, expectedValue interface{}) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		value, exists := args.Row.Get(field)
		if !exists {
			return false, nil
		}
		return core.Equal(value, expectedValue), nil
	})
}

// Contains creates a query that selects rows where the string field contains the substring
func Contains(field, substring string) core.Query {
	return stringQuery(field, func(s string) bool {
		return strings.Contains(s, substring)
	})
}

// StartsWith creates a query that selects rows where the string field starts with the prefix
func StartsWith(field, prefix string) core.Query {
	return stringQuery(field, func(s string) bool {
		return strings.HasPrefix(s, prefix)
	})
}

// EndsWith creates a query that selects rows where the string field ends with the suffix
func EndsWith(field, suffix string) core.Query {
	return stringQuery(field, func(s string) bool {
		return strings.HasSuffix(s, suffix)
	})
}

// MatchesRegex creates a query that selects rows where the string field matches the regex pattern
func MatchesRegex(field, pattern string) core.Query {
	regex := regexp.MustCompile(pattern)
	return stringQuery(field, regex.MatchString)
}

func stringQuery(field string, match func(string) bool) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		value, exists := args.Row.Get(field)
		if !exists {
			return false, nil
		}
		if str, ok := value.(string); ok {
			return match(str), nil
		}
		return false, nil
	})
}

// GreaterThan creates a query that selects rows where the numeric field is greater than the value
func GreaterThan(field string, threshold float64) core.Query {
	return numericQuery(field, func(n float64) bool {
		return n > threshold
	})
}

// LessThan creates a query that selects rows where the numeric field is less than the value
func LessThan(field string, threshold float64) core.Query {
	return numericQuery(field, func(n float64) bool {
		return n < threshold
	})
}

// Between creates a query that selects rows where the numeric field is between min and max (inclusive)
func Between(field string, min, max float64) core.Query {
	return numericQuery(field, func(n float64) bool {
		return n >= min && n <= max
	})
}

// numericQuery skips rows whose field is missing or not number-like.
func numericQuery(field string, match func(float64) bool) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		value, exists := args.Row.Get(field)
		if !exists {
			return false, nil
		}

		num, err := core.ToNum(value)
		if err != nil {
			return false, nil
		}

		return match(num), nil
	})
}

// In creates a query that selects rows where the field value is in the provided set
func In(field string, values ...interface{}) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		value, exists := args.Row.Get(field)
		if !exists {
			return false, nil
		}

		for _, v := range values {
			if core.Equal(value, v) {
				return true, nil
			}
		}
		return false, nil
	})
}

// Duplicated creates a query that selects rows sharing the field's value with another row
// of the collection.
func Duplicated(field string) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		value, exists := args.Row.Get(field)
		if !exists {
			return false, nil
		}

		seen := 0
		for _, other := range args.Rows {
			if v, ok := other.Get(field); ok && core.Equal(v, value) {
				seen++
			}
		}
		return seen > 1, nil
	})
}

// And creates a query that requires all provided queries to match
func And(queries ...core.Query) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		for _, q := range queries {
			include, err := core.EvaluateQuery(ctx, q, args)
			if err != nil {
				return false, err
			}
			if !include {
				return false, nil
			}
		}
		return true, nil
	})
}

// Or creates a query that requires at least one of the provided queries to match
func Or(queries ...core.Query) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		for _, q := range queries {
			include, err := core.EvaluateQuery(ctx, q, args)
			if err != nil {
				return false, err
			}
			if include {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not creates a query that negates the provided query
func Not(q core.Query) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		include, err := core.EvaluateQuery(ctx, q, args)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

// Custom creates a query using a user-provided predicate function
// The predicate function receives a row and returns true if the row should be selected
func Custom(predicate func(core.Record) bool) core.Query {
	return core.QueryFunc(func(ctx context.Context, args core.RowArgs) (bool, error) {
		return predicate(args.Row), nil
	})
}

// CustomWithContext creates a query using a user-provided predicate function that has access to context
// The predicate function receives context and the row arguments, returns (include bool, error)
func CustomWithContext(predicate func(context.Context, core.RowArgs) (bool, error)) core.Query {
	return core.QueryFunc(predicate)
}

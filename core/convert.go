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
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ToNum converts a cell value to a float64.
// Numbers of any Go type, json.Number and numeric strings are accepted.
// NaN and infinite results are rejected.
func ToNum(value interface{}) (float64, error) {
	var parsed float64
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("value is not a number like: %q", v)
		}
		parsed = f
	default:
		f, ok := toFloat64(value)
		if !ok {
			return 0, fmt.Errorf("value is not a number like: %v", value)
		}
		parsed = f
	}

	if math.IsNaN(parsed) {
		return 0, fmt.Errorf("value is not a number like: %v", value)
	}
	if math.IsInf(parsed, 0) {
		return 0, fmt.Errorf("value is Infinity or negative Infinity: %v", value)
	}
	return parsed, nil
}

// toFloat64 converts numeric values to float64. Strings are not numbers here.
func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toRat converts numeric values to an exact rational. Floats use their shortest
// decimal form so 0.1 and json.Number("0.1") agree. NaN and infinities fail.
func toRat(value interface{}) (*big.Rat, bool) {
	r := new(big.Rat)
	switch v := value.(type) {
	case int:
		return r.SetInt64(int64(v)), true
	case int8:
		return r.SetInt64(int64(v)), true
	case int16:
		return r.SetInt64(int64(v)), true
	case int32:
		return r.SetInt64(int64(v)), true
	case int64:
		return r.SetInt64(v), true
	case uint:
		return r.SetUint64(uint64(v)), true
	case uint8:
		return r.SetUint64(uint64(v)), true
	case uint16:
		return r.SetUint64(uint64(v)), true
	case uint32:
		return r.SetUint64(uint64(v)), true
	case uint64:
		return r.SetUint64(v), true
	case float32:
		return r.SetString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64:
		return r.SetString(strconv.FormatFloat(v, 'g', -1, 64))
	case json.Number:
		return r.SetString(v.String())
	default:
		return nil, false
	}
}

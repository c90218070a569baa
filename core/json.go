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
	"reflect"

	"github.com/buger/jsonparser"
)

// DecodeJSON decodes a JSON document into JSON values.
// Objects become Records with their field order intact, arrays become []interface{},
// numbers become json.Number so that their textual form survives a round trip.
func DecodeJSON(data []byte) (interface{}, error) {
	if !json.Valid(data) {
		return nil, &FormatError{Op: "decode", Reason: "invalid JSON"}
	}
	value, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, &FormatError{Op: "decode", Reason: "invalid JSON", Err: err}
	}
	return decodeValue(value, dataType)
}

func decodeValue(value []byte, dataType jsonparser.ValueType) (interface{}, error) {
	switch dataType {
	case jsonparser.Object:
		rec := NewRecord()
		err := jsonparser.ObjectEach(value, func(key []byte, raw []byte, dt jsonparser.ValueType, _ int) error {
			decoded, err := decodeValue(raw, dt)
			if err != nil {
				return err
			}
			rec.Set(string(key), decoded)
			return nil
		})
		if err != nil {
			return nil, wrapDecodeError(err)
		}
		return rec, nil
	case jsonparser.Array:
		items := make([]interface{}, 0)
		var inner error
		_, err := jsonparser.ArrayEach(value, func(raw []byte, dt jsonparser.ValueType, _ int, err error) {
			if inner != nil {
				return
			}
			if err != nil {
				inner = err
				return
			}
			decoded, err := decodeValue(raw, dt)
			if err != nil {
				inner = err
				return
			}
			items = append(items, decoded)
		})
		if inner != nil {
			return nil, wrapDecodeError(inner)
		}
		if err != nil {
			return nil, wrapDecodeError(err)
		}
		return items, nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return nil, wrapDecodeError(err)
		}
		return s, nil
	case jsonparser.Number:
		return json.Number(string(value)), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(value)
		if err != nil {
			return nil, wrapDecodeError(err)
		}
		return b, nil
	case jsonparser.Null:
		return nil, nil
	default:
		return nil, &FormatError{Op: "decode", Reason: fmt.Sprintf("unexpected value %q", value)}
	}
}

func wrapDecodeError(err error) error {
	if _, ok := err.(*FormatError); ok {
		return err
	}
	return &FormatError{Op: "decode", Reason: "malformed JSON", Err: err}
}

// Equal compares two JSON values.
// Numbers are compared by exact decimal value whatever their Go type, records and
// arrays are compared element by element.
func Equal(a, b interface{}) bool {
	if na, ok := toFloat64(a); ok {
		nb, ok := toFloat64(b)
		if !ok {
			return false
		}
		if ra, ok := toRat(a); ok {
			if rb, ok := toRat(b); ok {
				return ra.Cmp(rb) == 0
			}
		}
		return na == nb
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case Record:
		switch bv := b.(type) {
		case Record:
			return av.Equal(bv)
		case map[string]interface{}:
			return equalRecordMap(av, bv)
		}
		return false
	case map[string]interface{}:
		switch bv := b.(type) {
		case Record:
			return equalRecordMap(bv, av)
		case map[string]interface{}:
			if len(av) != len(bv) {
				return false
			}
			for k, v := range av {
				other, ok := bv[k]
				if !ok || !Equal(v, other) {
					return false
				}
			}
			return true
		}
		return false
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

func equalRecordMap(r Record, m map[string]interface{}) bool {
	if r.Len() != len(m) {
		return false
	}
	equal := true
	r.Each(func(key string, value interface{}) bool {
		other, ok := m[key]
		equal = ok && Equal(value, other)
		return equal
	})
	return equal
}

// IsJSONValue reports whether value can be stored in a record and encoded as JSON.
func IsJSONValue(value interface{}) bool {
	switch v := value.(type) {
	case nil, string, bool, json.Number, Record:
		return true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	case []interface{}:
		for _, item := range v {
			if !IsJSONValue(item) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		for _, item := range v {
			if !IsJSONValue(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

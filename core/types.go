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

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Package core defines the core types for the JSONTable library.
//
// JSONTable treats a JSON file as an editable table: rows are loaded into memory as an
// ordered sequence of records, queried, transformed and written back.
//
// This file contains the Record type, an ordered field map holding JSON values.

// Field is a single key/value pair used to build records in order.
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for constructing a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Record represents a single row of a table.
// Fields keep the order in which they were decoded or first set. Values are JSON values:
// string, bool, nil, numbers (json.Number when decoded), Record and []interface{}.
//
// A Record has reference semantics like a Go map: copies share the same fields.
// Use Clone to obtain an independent record.
type Record struct {
	fields *orderedmap.OrderedMap[string, interface{}]
}

// NewRecord creates a record from the given fields, in order.
// A repeated key keeps its first position and its last value.
func NewRecord(fields ...Field) Record {
	r := Record{fields: orderedmap.New[string, interface{}](len(fields))}
	for _, f := range fields {
		r.fields.Set(f.Key, f.Value)
	}
	return r
}

func (r *Record) init() {
	if r.fields == nil {
		r.fields = orderedmap.New[string, interface{}]()
	}
}

// Len returns the number of fields.
func (r Record) Len() int {
	if r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// Get returns the value stored under key and whether it exists.
func (r Record) Get(key string) (interface{}, bool) {
	if r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// Value returns the value stored under key, or nil.
func (r Record) Value(key string) interface{} {
	v, _ := r.Get(key)
	return v
}

// Has reports whether key is present.
func (r Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Set stores value under key. New keys are appended after the existing ones.
func (r *Record) Set(key string, value interface{}) {
	r.init()
	r.fields.Set(key, value)
}

// Delete removes key from the record.
func (r Record) Delete(key string) {
	if r.fields != nil {
		r.fields.Delete(key)
	}
}

// Keys returns the field names in order.
func (r Record) Keys() []string {
	keys := make([]string, 0, r.Len())
	r.Each(func(key string, _ interface{}) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Each calls fn for every field in order until fn returns false.
func (r Record) Each(fn func(key string, value interface{}) bool) {
	if r.fields == nil {
		return
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Clone returns a deep copy of the record. Nested records and arrays are copied too.
func (r Record) Clone() Record {
	out := Record{fields: orderedmap.New[string, interface{}](r.Len())}
	r.Each(func(key string, value interface{}) bool {
		out.fields.Set(key, cloneValue(value))
		return true
	})
	return out
}

// Merge returns a new record holding r's fields overlaid with patch's fields.
// Keys already present keep their position; new keys are appended in patch order.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	patch.Each(func(key string, value interface{}) bool {
		out.fields.Set(key, cloneValue(value))
		return true
	})
	return out
}

// With returns a copy of r with key set to value.
func (r Record) With(key string, value interface{}) Record {
	out := r.Clone()
	out.fields.Set(key, value)
	return out
}

// Equal reports whether both records hold the same keys with equal values.
// Key order is not significant.
func (r Record) Equal(other Record) bool {
	if r.Len() != other.Len() {
		return false
	}
	equal := true
	r.Each(func(key string, value interface{}) bool {
		v, ok := other.Get(key)
		if !ok || !Equal(value, v) {
			equal = false
		}
		return equal
	})
	return equal
}

// Map returns the record as a plain map. Nested records are converted as well.
func (r Record) Map() map[string]interface{} {
	out := make(map[string]interface{}, r.Len())
	r.Each(func(key string, value interface{}) bool {
		out[key] = plainValue(value)
		return true
	})
	return out
}

// String returns the compact JSON encoding of the record.
func (r Record) String() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

// MarshalJSON encodes the record as a JSON object, keeping field order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	return r.fields.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object into the record, keeping field order.
func (r *Record) UnmarshalJSON(data []byte) error {
	value, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	rec, ok := value.(Record)
	if !ok {
		return &FormatError{Op: "decode", Reason: "value is not an object"}
	}
	*r = rec
	return nil
}

// CloneValue returns a deep copy of a JSON value.
func CloneValue(value interface{}) interface{} {
	return cloneValue(value)
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case Record:
		return v.Clone()
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return value
	}
}

func plainValue(value interface{}) interface{} {
	switch v := value.(type) {
	case Record:
		return v.Map()
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	default:
		return value
	}
}

// CloneRows returns a deep copy of rows.
func CloneRows(rows []Record) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}

// RowsToValues converts rows into a JSON array value.
func RowsToValues(rows []Record) []interface{} {
	out := make([]interface{}, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out
}

var _ json.Marshaler = Record{}

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecord_FieldOrder tests that fields keep insertion order
func TestRecord_FieldOrder(t *testing.T) {
	r := NewRecord(F("name", "Peter"), F("sex", "F"), F("age", 18))
	r.Set("city", "Taipei")
	r.Set("sex", "M")

	assert.Equal(t, []string{"name", "sex", "age", "city"}, r.Keys())
	assert.Equal(t, "M", r.Value("sex"))
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, `{"name":"Peter","sex":"M","age":18,"city":"Taipei"}`, r.String())
}

// TestRecord_ZeroValue tests that the zero record behaves as an empty object
func TestRecord_ZeroValue(t *testing.T) {
	var r Record

	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Has("x"))
	assert.Nil(t, r.Value("x"))
	assert.Empty(t, r.Keys())

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	r.Set("x", 1)
	assert.True(t, r.Has("x"))
}

// TestRecord_CloneIsIndependent tests deep copies
func TestRecord_CloneIsIndependent(t *testing.T) {
	inner := NewRecord(F("street", "Main"))
	r := NewRecord(F("name", "Peter"), F("address", inner), F("tags", []interface{}{"a"}))

	clone := r.Clone()
	clone.Set("name", "Sue")
	nested := clone.Value("address").(Record)
	nested.Set("street", "Second")
	clone.Value("tags").([]interface{})[0] = "b"

	assert.Equal(t, "Peter", r.Value("name"))
	assert.Equal(t, "Main", inner.Value("street"))
	assert.Equal(t, []interface{}{"a"}, r.Value("tags"))
}

// TestRecord_Merge tests shallow merge semantics
func TestRecord_Merge(t *testing.T) {
	row := NewRecord(F("name", "Peter"), F("sex", "F"), F("age", 18))
	patch := NewRecord(F("sex", "M"), F("city", "Taipei"))

	merged := row.Merge(patch)

	assert.Equal(t, []string{"name", "sex", "age", "city"}, merged.Keys())
	assert.Equal(t, "M", merged.Value("sex"))
	assert.Equal(t, "F", row.Value("sex"), "merge must not modify the original row")
}

// TestRecord_Equal tests order-insensitive equality
func TestRecord_Equal(t *testing.T) {
	a := NewRecord(F("a", 1), F("b", "x"))
	b := NewRecord(F("b", "x"), F("a", json.Number("1")))
	c := NewRecord(F("a", 1))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, c.Equal(a))
}

// TestRecord_JSONRoundTrip tests decode and encode keep field order and number text
func TestRecord_JSONRoundTrip(t *testing.T) {
	input := `{"z":1.50,"a":{"y":true,"b":null},"m":[1,"two",{"k":"v"}]}`

	var r Record
	require.NoError(t, json.Unmarshal([]byte(input), &r))
	assert.Equal(t, []string{"z", "a", "m"}, r.Keys())
	assert.Equal(t, json.Number("1.50"), r.Value("z"))

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

// TestRecord_UnmarshalNonObject tests that arrays cannot be decoded into a record
func TestRecord_UnmarshalNonObject(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`[1,2]`), &r)
	require.Error(t, err)
}

// TestRecord_Map tests conversion to plain maps
func TestRecord_Map(t *testing.T) {
	r := NewRecord(F("a", 1), F("nested", NewRecord(F("b", 2))))

	assert.Equal(t, map[string]interface{}{
		"a":      1,
		"nested": map[string]interface{}{"b": 2},
	}, r.Map())
}

// TestRecord_With tests copy-on-set
func TestRecord_With(t *testing.T) {
	r := NewRecord(F("a", 1))
	updated := r.With("b", 2)

	assert.False(t, r.Has("b"))
	assert.Equal(t, []string{"a", "b"}, updated.Keys())
}

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

package readers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TestMongoReader_Validation tests required options
func TestMongoReader_Validation(t *testing.T) {
	_, err := NewMongoReader(WithMongoCollection("people"))
	var mrErr *MongoReaderError
	require.ErrorAs(t, err, &mrErr)
	assert.Equal(t, "validate", mrErr.Op)

	_, err = NewMongoReader(WithMongoDB("db"))
	require.Error(t, err)

	_, err = NewMongoReader(WithMongoDB("db"), WithMongoCollection("people"),
		WithMongoPipeline(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline is required")

	r, err := NewMongoReader(WithMongoDB("db"), WithMongoCollection("people"),
		WithMongoReadPreference("bogus"))
	require.NoError(t, err)
	_, err = r.buildClientOptions()
	assert.Error(t, err)
}

// TestMongoReader_RecordFromBSON tests field order and value mapping
func TestMongoReader_RecordFromBSON(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	doc := bson.D{
		{Key: "_id", Value: oid},
		{Key: "name", Value: "Peter"},
		{Key: "age", Value: int32(18)},
		{Key: "visits", Value: int64(3)},
		{Key: "score", Value: 7.5},
		{Key: "joined", Value: primitive.NewDateTimeFromTime(when)},
		{Key: "meta", Value: bson.D{{Key: "z", Value: nil}, {Key: "a", Value: bson.A{int32(1), "x"}}}},
		{Key: "blob", Value: primitive.Binary{Data: []byte("hi")}},
	}

	record := recordFromBSON(doc)
	assert.Equal(t, []string{"_id", "name", "age", "visits", "score", "joined", "meta", "blob"}, record.Keys())
	assert.Equal(t, oid.Hex(), record.Value("_id"))
	assert.Equal(t, json.Number("18"), record.Value("age"))
	assert.Equal(t, json.Number("3"), record.Value("visits"))
	assert.Equal(t, 7.5, record.Value("score"))
	assert.Equal(t, "2024-03-01T12:00:00Z", record.Value("joined"))
	assert.Equal(t, "aGk=", record.Value("blob"))

	data, err := json.Marshal(record.Value("meta"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"z":null,"a":[1,"x"]}`, string(data))
	assert.Equal(t, `{"z":null,"a":[1,"x"]}`, string(data))
}

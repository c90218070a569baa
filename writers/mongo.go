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

package writers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/jsontable/core"
)

// Package writers provides core.DataSink implementations used to export JSONTable rows.
//
// This file implements a batching MongoDB writer. Rows become bson.D documents so that the
// stored field order matches the JSON file.

// MongoWriterError wraps MongoDB-specific write errors with context about the operation.
type MongoWriterError struct {
	Op         string // Operation that failed (e.g., "connect", "insert", "encode")
	Collection string // Target collection
	Err        error  // Underlying error
}

func (e *MongoWriterError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo writer %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo writer %s: %v", e.Op, e.Err)
}

func (e *MongoWriterError) Unwrap() error {
	return e.Err
}

// MongoWriterStats holds MongoDB write statistics.
type MongoWriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	WriteDuration   time.Duration
	LastWriteTime   time.Time
	NullValueCounts map[string]int64
}

// MongoWriterOptions configures the MongoDB writer.
type MongoWriterOptions struct {
	URI        string        // MongoDB connection URI
	Database   string        // Database name
	Collection string        // Collection name
	BatchSize  int           // Documents per InsertMany call
	Ordered    bool          // Stop a batch at the first failed insert
	IDField    string        // Row field copied into _id (optional)
	Timeout    time.Duration // Connect and flush timeout
}

// WriterOptionMongo is a functional option for MongoWriterOptions.
type WriterOptionMongo func(*MongoWriterOptions)

// WithMongoWriterURI sets the connection URI.
func WithMongoWriterURI(uri string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.URI = uri
	}
}

// WithMongoTarget sets the database and collection written to.
func WithMongoTarget(database, collection string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Database = database
		opts.Collection = collection
	}
}

// WithMongoWriterBatchSize sets the number of documents per insert.
func WithMongoWriterBatchSize(size int) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.BatchSize = size
	}
}

// WithMongoOrdered sets whether inserts stop at the first failure.
func WithMongoOrdered(ordered bool) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Ordered = ordered
	}
}

// WithMongoIDField copies the named row field into the document _id.
func WithMongoIDField(field string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.IDField = field
	}
}

// MongoInserter is the subset of *mongo.Collection used by MongoWriter.
type MongoInserter interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// MongoWriter implements core.DataSink for a MongoDB collection.
type MongoWriter struct {
	mu         sync.Mutex
	client     *mongo.Client
	collection MongoInserter
	opts       MongoWriterOptions
	buffer     []interface{}
	stats      MongoWriterStats
	errorState bool
}

func defaultMongoWriterOptions() MongoWriterOptions {
	return MongoWriterOptions{
		URI:       "mongodb://localhost:27017",
		BatchSize: 500,
		Ordered:   true,
		Timeout:   30 * time.Second,
	}
}

// NewMongoWriter connects to MongoDB and returns a writer for the configured collection.
func NewMongoWriter(ctx context.Context, options ...WriterOptionMongo) (*MongoWriter, error) {
	opts := defaultMongoWriterOptions()
	for _, option := range options {
		option(&opts)
	}
	if opts.Database == "" || opts.Collection == "" {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("database and collection are required")}
	}

	clientOpts := mongoClientOptions(opts)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &MongoWriterError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &MongoWriterError{Op: "ping", Err: err}
	}

	w := newMongoWriter(client.Database(opts.Database).Collection(opts.Collection), opts)
	w.client = client
	return w, nil
}

// NewMongoWriterWithCollection creates a writer over an existing collection handle.
func NewMongoWriterWithCollection(collection MongoInserter, options ...WriterOptionMongo) *MongoWriter {
	opts := defaultMongoWriterOptions()
	for _, option := range options {
		option(&opts)
	}
	return newMongoWriter(collection, opts)
}

func newMongoWriter(collection MongoInserter, opts MongoWriterOptions) *MongoWriter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	return &MongoWriter{
		collection: collection,
		opts:       opts,
		buffer:     make([]interface{}, 0, opts.BatchSize),
		stats:      MongoWriterStats{NullValueCounts: make(map[string]int64)},
	}
}

func mongoClientOptions(opts MongoWriterOptions) *options.ClientOptions {
	clientOpts := options.Client().ApplyURI(opts.URI)
	if opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(opts.Timeout)
	}
	return clientOpts
}

// Write converts the record to a document and inserts a batch when the buffer is full.
func (w *MongoWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.errorState {
		return &MongoWriterError{Op: "write", Collection: w.opts.Collection, Err: fmt.Errorf("writer is in error state")}
	}

	doc, err := w.document(record)
	if err != nil {
		return &MongoWriterError{Op: "encode", Collection: w.opts.Collection, Err: err}
	}

	record.Each(func(key string, value interface{}) bool {
		if value == nil {
			w.stats.NullValueCounts[key]++
		}
		return true
	})

	w.buffer = append(w.buffer, doc)
	w.stats.RecordsWritten++

	if len(w.buffer) >= w.opts.BatchSize {
		if err := w.flushUnsafe(ctx); err != nil {
			w.errorState = true
			return err
		}
	}
	return nil
}

// Flush inserts any buffered documents.
func (w *MongoWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
	defer cancel()
	return w.flushUnsafe(ctx)
}

// Close flushes and disconnects the client when the writer owns it.
func (w *MongoWriter) Close() error {
	flushErr := w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		if err := w.client.Disconnect(context.Background()); err != nil && flushErr == nil {
			flushErr = &MongoWriterError{Op: "disconnect", Err: err}
		}
		w.client = nil
	}
	return flushErr
}

// Stats returns a copy of the current statistics.
func (w *MongoWriter) Stats() MongoWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	stats.NullValueCounts = make(map[string]int64, len(w.stats.NullValueCounts))
	for k, v := range w.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

func (w *MongoWriter) flushUnsafe(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	start := time.Now()

	_, err := w.collection.InsertMany(ctx, w.buffer, options.InsertMany().SetOrdered(w.opts.Ordered))
	if err != nil {
		return &MongoWriterError{Op: "insert", Collection: w.opts.Collection, Err: err}
	}

	w.stats.BatchesWritten++
	w.stats.WriteDuration += time.Since(start)
	w.stats.LastWriteTime = time.Now()
	w.buffer = make([]interface{}, 0, w.opts.BatchSize)
	return nil
}

// document converts a record to bson.D, placing the id field first as _id when configured.
func (w *MongoWriter) document(record core.Record) (bson.D, error) {
	doc, err := bsonFromRecord(record)
	if err != nil {
		return nil, err
	}
	if w.opts.IDField == "" {
		return doc, nil
	}
	id, ok := record.Get(w.opts.IDField)
	if !ok {
		return doc, nil
	}
	idValue, err := bsonFromJSON(id)
	if err != nil {
		return nil, err
	}
	return append(bson.D{{Key: "_id", Value: idValue}}, doc...), nil
}

// bsonFromRecord converts a record to an ordered BSON document.
func bsonFromRecord(record core.Record) (bson.D, error) {
	doc := make(bson.D, 0, record.Len())
	var err error
	record.Each(func(key string, value interface{}) bool {
		var converted interface{}
		converted, err = bsonFromJSON(value)
		if err != nil {
			err = fmt.Errorf("field %s: %w", key, err)
			return false
		}
		doc = append(doc, bson.E{Key: key, Value: converted})
		return true
	})
	return doc, err
}

// bsonFromJSON maps a JSON cell to a BSON value. Whole numbers become int64, other
// numbers float64, and numbers outside both ranges Decimal128.
func bsonFromJSON(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		if f, err := v.Float64(); err == nil {
			return f, nil
		}
		return primitive.ParseDecimal128(v.String())
	case core.Record:
		return bsonFromRecord(v)
	case []interface{}:
		arr := make(bson.A, len(v))
		for i, item := range v {
			converted, err := bsonFromJSON(item)
			if err != nil {
				return nil, err
			}
			arr[i] = converted
		}
		return arr, nil
	default:
		return v, nil
	}
}

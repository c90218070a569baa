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
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aaronlmathis/jsontable/core"
)

// Package readers provides core.DataSource implementations used to import rows into a JSONTable collection.
//
// This file implements a MongoDB reader. Documents are decoded as bson.D so that field order
// survives into the imported rows, and BSON-specific types are mapped onto JSON values.

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed (e.g., "connect", "query", "decode", "aggregate")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// MongoReaderStats holds statistics about the MongoDB reader's performance
type MongoReaderStats struct {
	RecordsRead     int64            // Total records read
	QueriesExecuted int64            // Total queries executed
	ReadDuration    time.Duration    // Total time spent reading
	LastReadTime    time.Time        // Time of last read
	NullValueCounts map[string]int64 // Count of null values per field
	ErrorCount      int64            // Number of errors encountered
}

// MongoReadMode defines how data should be read from MongoDB
type MongoReadMode string

const (
	ModeFind      MongoReadMode = "find"      // Standard find query
	ModeAggregate MongoReadMode = "aggregate" // Aggregation pipeline
)

// MongoReaderOptions configures the MongoDB reader
type MongoReaderOptions struct {
	URI            string        // MongoDB connection URI
	Database       string        // Database name
	Collection     string        // Collection name
	Mode           MongoReadMode // Read mode
	Filter         bson.M        // Query filter for find operations
	Projection     bson.M        // Field projection
	Sort           bson.D        // Sort specification, in priority order
	Pipeline       []bson.M      // Aggregation pipeline stages
	BatchSize      int32         // Batch size for cursor
	Limit          int64         // Maximum number of documents to read
	Skip           int64         // Number of documents to skip
	Timeout        time.Duration // Connect timeout
	MaxPoolSize    uint64        // Connection pool size
	ReadPreference string        // Read preference: primary, secondary, etc.
	AuthDatabase   string        // Authentication database
	Username       string        // Authentication username
	Password       string        // Authentication password
	TLS            bool          // Enable TLS
	TLSInsecure    bool          // Skip TLS verification
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

// WithMongoURI sets the connection URI.
func WithMongoURI(uri string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.URI = uri
	}
}

// WithMongoDB sets the database name.
func WithMongoDB(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Database = database
	}
}

// WithMongoCollection sets the collection name.
func WithMongoCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Collection = collection
	}
}

// WithMongoFilter sets the find filter.
func WithMongoFilter(filter bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Filter = filter
	}
}

// WithMongoProjection sets the find projection.
func WithMongoProjection(projection bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Projection = projection
	}
}

// WithMongoSort sets the find sort order.
func WithMongoSort(sort bson.D) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Sort = sort
	}
}

// WithMongoPipeline switches the reader to aggregate mode with the given stages.
func WithMongoPipeline(pipeline []bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Pipeline = pipeline
		opts.Mode = ModeAggregate
	}
}

// WithMongoLimit caps the number of documents read.
func WithMongoLimit(limit int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Limit = limit
	}
}

// WithMongoSkip skips leading documents.
func WithMongoSkip(skip int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Skip = skip
	}
}

// WithMongoBatchSize sets the cursor batch size.
func WithMongoBatchSize(batchSize int32) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMongoTimeout sets the connect timeout.
func WithMongoTimeout(timeout time.Duration) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Timeout = timeout
	}
}

// WithMongoReadPreference sets the read preference by name.
func WithMongoReadPreference(preference string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.ReadPreference = preference
	}
}

// WithMongoAuth sets username/password credentials.
func WithMongoAuth(username, password, authDB string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

// WithMongoTLS enables TLS.
func WithMongoTLS(enabled, insecure bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.TLS = enabled
		opts.TLSInsecure = insecure
	}
}

// MongoReader implements core.DataSource over a MongoDB find or aggregate cursor.
type MongoReader struct {
	client     *mongo.Client
	collection *mongo.Collection
	cursor     *mongo.Cursor
	opts       *MongoReaderOptions
	stats      MongoReaderStats
	connected  bool
}

// NewMongoReader creates a new MongoDB reader. The connection is opened lazily on the first Read.
func NewMongoReader(options ...ReaderOptionMongo) (*MongoReader, error) {
	opts := &MongoReaderOptions{
		URI:            "mongodb://localhost:27017",
		Mode:           ModeFind,
		BatchSize:      1000,
		Timeout:        30 * time.Second,
		MaxPoolSize:    100,
		ReadPreference: "primary",
	}
	for _, option := range options {
		option(opts)
	}

	if opts.Database == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}
	if opts.Mode == ModeAggregate && len(opts.Pipeline) == 0 {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("pipeline is required for aggregate mode")}
	}

	return &MongoReader{
		opts:  opts,
		stats: MongoReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Connect establishes connection to MongoDB
func (mr *MongoReader) Connect(ctx context.Context) error {
	if mr.connected {
		return nil
	}

	clientOpts, err := mr.buildClientOptions()
	if err != nil {
		return &MongoReaderError{Op: "build_options", Err: err}
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return &MongoReaderError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return &MongoReaderError{Op: "ping", Err: err}
	}

	mr.client = client
	mr.collection = client.Database(mr.opts.Database).Collection(mr.opts.Collection)
	mr.connected = true
	return nil
}

// buildClientOptions constructs MongoDB client options from reader configuration
func (mr *MongoReader) buildClientOptions() (*options.ClientOptions, error) {
	clientOpts := options.Client().ApplyURI(mr.opts.URI)

	if mr.opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(mr.opts.MaxPoolSize)
	}
	if mr.opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(mr.opts.Timeout)
	}

	if mr.opts.Username != "" && mr.opts.Password != "" {
		auth := options.Credential{
			Username:   mr.opts.Username,
			Password:   mr.opts.Password,
			AuthSource: mr.opts.AuthDatabase,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = mr.opts.Database
		}
		clientOpts.SetAuth(auth)
	}

	if mr.opts.TLS {
		clientOpts.SetTLSConfig(&tls.Config{InsecureSkipVerify: mr.opts.TLSInsecure})
	}

	if mr.opts.ReadPreference != "" {
		var readPref *readpref.ReadPref
		switch mr.opts.ReadPreference {
		case "primary":
			readPref = readpref.Primary()
		case "primaryPreferred":
			readPref = readpref.PrimaryPreferred()
		case "secondary":
			readPref = readpref.Secondary()
		case "secondaryPreferred":
			readPref = readpref.SecondaryPreferred()
		case "nearest":
			readPref = readpref.Nearest()
		default:
			return nil, fmt.Errorf("invalid read preference: %s", mr.opts.ReadPreference)
		}
		clientOpts.SetReadPreference(readPref)
	}

	return clientOpts, nil
}

// Read implements the core.DataSource interface
func (mr *MongoReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		mr.stats.ReadDuration += time.Since(start)
		mr.stats.LastReadTime = time.Now()
	}()

	if err := ctx.Err(); err != nil {
		return core.Record{}, &MongoReaderError{Op: "read", Collection: mr.opts.Collection, Err: err}
	}

	if !mr.connected {
		if err := mr.Connect(ctx); err != nil {
			return core.Record{}, err
		}
	}

	if mr.cursor == nil {
		if err := mr.initializeCursor(ctx); err != nil {
			return core.Record{}, &MongoReaderError{Op: "init_cursor", Collection: mr.opts.Collection, Err: err}
		}
	}

	if !mr.cursor.Next(ctx) {
		if err := mr.cursor.Err(); err != nil {
			mr.stats.ErrorCount++
			return core.Record{}, &MongoReaderError{Op: "cursor_next", Collection: mr.opts.Collection, Err: err}
		}
		return core.Record{}, io.EOF
	}

	var doc bson.D
	if err := mr.cursor.Decode(&doc); err != nil {
		mr.stats.ErrorCount++
		return core.Record{}, &MongoReaderError{Op: "decode", Collection: mr.opts.Collection, Err: err}
	}

	record := recordFromBSON(doc)
	mr.stats.RecordsRead++
	record.Each(func(key string, val interface{}) bool {
		if val == nil {
			mr.stats.NullValueCounts[key]++
		}
		return true
	})
	return record, nil
}

// Close implements the core.DataSource interface
func (mr *MongoReader) Close() error {
	ctx := context.Background()
	var firstErr error

	if mr.cursor != nil {
		if err := mr.cursor.Close(ctx); err != nil {
			firstErr = &MongoReaderError{Op: "cursor_close", Collection: mr.opts.Collection, Err: err}
		}
		mr.cursor = nil
	}
	if mr.client != nil {
		if err := mr.client.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = &MongoReaderError{Op: "disconnect", Err: err}
		}
		mr.client = nil
	}
	mr.connected = false
	return firstErr
}

// Stats returns MongoDB reader performance statistics
func (mr *MongoReader) Stats() MongoReaderStats {
	return mr.stats
}

// initializeCursor opens the find or aggregate cursor
func (mr *MongoReader) initializeCursor(ctx context.Context) error {
	mr.stats.QueriesExecuted++

	switch mr.opts.Mode {
	case ModeFind:
		findOpts := options.Find()
		if mr.opts.BatchSize > 0 {
			findOpts.SetBatchSize(mr.opts.BatchSize)
		}
		if mr.opts.Limit > 0 {
			findOpts.SetLimit(mr.opts.Limit)
		}
		if mr.opts.Skip > 0 {
			findOpts.SetSkip(mr.opts.Skip)
		}
		if mr.opts.Projection != nil {
			findOpts.SetProjection(mr.opts.Projection)
		}
		if mr.opts.Sort != nil {
			findOpts.SetSort(mr.opts.Sort)
		}

		filter := mr.opts.Filter
		if filter == nil {
			filter = bson.M{}
		}
		cursor, err := mr.collection.Find(ctx, filter, findOpts)
		if err != nil {
			return err
		}
		mr.cursor = cursor
		return nil

	case ModeAggregate:
		aggOpts := options.Aggregate()
		if mr.opts.BatchSize > 0 {
			aggOpts.SetBatchSize(mr.opts.BatchSize)
		}
		cursor, err := mr.collection.Aggregate(ctx, mr.opts.Pipeline, aggOpts)
		if err != nil {
			return err
		}
		mr.cursor = cursor
		return nil

	default:
		return fmt.Errorf("unsupported read mode: %s", mr.opts.Mode)
	}
}

// recordFromBSON converts a decoded document into a record, keeping field order.
func recordFromBSON(doc bson.D) core.Record {
	record := core.NewRecord()
	for _, elem := range doc {
		record.Set(elem.Key, jsonFromBSON(elem.Value))
	}
	return record
}

// jsonFromBSON maps BSON values onto JSON cells. Integers become json.Number like
// parsed file content; dates and ids become strings.
func jsonFromBSON(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return nil
	case int32:
		return json.Number(strconv.FormatInt(int64(v), 10))
	case int64:
		return json.Number(strconv.FormatInt(v, 10))
	case primitive.Decimal128:
		return json.Number(v.String())
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC().Format(time.RFC3339)
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(v.Data)
	case primitive.Regex:
		return v.Pattern
	case primitive.JavaScript:
		return string(v)
	case primitive.Symbol:
		return string(v)
	case bson.D:
		return recordFromBSON(v)
	case bson.A:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = jsonFromBSON(val)
		}
		return result
	default:
		return v
	}
}

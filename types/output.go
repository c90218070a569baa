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

package types

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/jsontable/core"
	"github.com/aaronlmathis/jsontable/store"
	"github.com/aaronlmathis/jsontable/writers"
)

// OutputFormat represents a supported export format.
type OutputFormat int

const (
	FormatCSV OutputFormat = iota
	FormatJSON
	FormatParquet
	FormatPostgres
	FormatMongo
)

var formatNames = map[string]OutputFormat{
	"csv":      FormatCSV,
	"json":     FormatJSON,
	"jsonl":    FormatJSON,
	"parquet":  FormatParquet,
	"postgres": FormatPostgres,
	"mongo":    FormatMongo,
}

// ParseFormat maps a format name such as "csv" or "parquet" to an OutputFormat.
func ParseFormat(name string) (OutputFormat, error) {
	format, ok := formatNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown output format %q", name)
	}
	return format, nil
}

func (f OutputFormat) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "jsonl"
	case FormatParquet:
		return "parquet"
	case FormatPostgres:
		return "postgres"
	case FormatMongo:
		return "mongo"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// OutputLocation creates a DataSink for a given format.
type OutputLocation interface {
	NewSink(ctx context.Context, format OutputFormat) (core.DataSink, error)
}

// FileLocation writes output to a local filesystem path.
type FileLocation struct {
	Path string
}

// NewSink instantiates a writer for the file location.
func (f FileLocation) NewSink(_ context.Context, format OutputFormat) (core.DataSink, error) {
	switch format {
	case FormatCSV:
		file, err := os.Create(f.Path)
		if err != nil {
			return nil, err
		}
		return writers.NewCSVWriter(file)
	case FormatJSON:
		file, err := os.Create(f.Path)
		if err != nil {
			return nil, err
		}
		return writers.NewJSONWriter(file), nil
	case FormatParquet:
		return writers.NewParquetWriter(f.Path)
	default:
		return nil, fmt.Errorf("unsupported format %s for FileLocation", format)
	}
}

// S3Location uploads the exported object to an S3 bucket when the sink is closed.
type S3Location struct {
	Client store.S3API
	Bucket string
	Key    string
}

type s3WriteCloser struct {
	ctx    context.Context
	buf    *bytes.Buffer
	client store.S3API
	bucket string
	key    string
}

func (s *s3WriteCloser) Write(p []byte) (int, error) { return s.buf.Write(p) }

func (s *s3WriteCloser) Close() error {
	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   bytes.NewReader(s.buf.Bytes()),
	})
	return err
}

type parquetS3Sink struct {
	*writers.ParquetWriter
	ctx      context.Context
	client   store.S3API
	bucket   string
	key      string
	filename string
}

func (p *parquetS3Sink) Close() error {
	defer os.Remove(p.filename)
	if err := p.ParquetWriter.Close(); err != nil {
		return err
	}
	file, err := os.Open(p.filename)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = p.client.PutObject(p.ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key),
		Body:   file,
	})
	return err
}

// NewSink creates a writer uploading to S3. The upload uses ctx, so it must outlive the sink.
func (s S3Location) NewSink(ctx context.Context, format OutputFormat) (core.DataSink, error) {
	if s.Client == nil || s.Bucket == "" || s.Key == "" {
		return nil, fmt.Errorf("S3Location requires a client, bucket and key")
	}

	switch format {
	case FormatCSV:
		return writers.NewCSVWriter(&s3WriteCloser{ctx: ctx, buf: &bytes.Buffer{}, client: s.Client, bucket: s.Bucket, key: s.Key})
	case FormatJSON:
		return writers.NewJSONWriter(&s3WriteCloser{ctx: ctx, buf: &bytes.Buffer{}, client: s.Client, bucket: s.Bucket, key: s.Key}), nil
	case FormatParquet:
		tmp, err := os.CreateTemp("", "jsontable-*.parquet")
		if err != nil {
			return nil, err
		}
		filename := tmp.Name()
		tmp.Close()
		pw, err := writers.NewParquetWriter(filename)
		if err != nil {
			os.Remove(filename)
			return nil, err
		}
		return &parquetS3Sink{ParquetWriter: pw, ctx: ctx, client: s.Client, bucket: s.Bucket, key: s.Key, filename: filename}, nil
	default:
		return nil, fmt.Errorf("unsupported format %s for S3Location", format)
	}
}

// PostgresLocation directs output to a PostgreSQL table, created on first write.
type PostgresLocation struct {
	DSN   string
	Table string
}

// NewSink instantiates a PostgreSQL writer.
func (p PostgresLocation) NewSink(_ context.Context, format OutputFormat) (core.DataSink, error) {
	if format != FormatPostgres {
		return nil, fmt.Errorf("unsupported format %s for PostgresLocation", format)
	}
	return writers.NewPostgresWriter(
		writers.WithPostgresDSN(p.DSN),
		writers.WithTableName(p.Table),
		writers.WithCreateTable(true),
	)
}

// MongoLocation directs output to a MongoDB collection.
type MongoLocation struct {
	URI        string
	Database   string
	Collection string
	IDField    string
}

// NewSink connects to MongoDB and instantiates a writer.
func (m MongoLocation) NewSink(ctx context.Context, format OutputFormat) (core.DataSink, error) {
	if format != FormatMongo {
		return nil, fmt.Errorf("unsupported format %s for MongoLocation", format)
	}
	opts := []writers.WriterOptionMongo{
		writers.WithMongoTarget(m.Database, m.Collection),
		writers.WithMongoIDField(m.IDField),
	}
	if m.URI != "" {
		opts = append(opts, writers.WithMongoWriterURI(m.URI))
	}
	return writers.NewMongoWriter(ctx, opts...)
}

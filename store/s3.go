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

package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/jsontable/core"
)

// S3StoreError provides structured error information for S3 store setup.
type S3StoreError struct {
	Op  string // Operation that failed (e.g., "validate_options", "create_aws_config")
	Err error  // Underlying error
}

func (e *S3StoreError) Error() string {
	return fmt.Sprintf("s3 store %s: %v", e.Op, e.Err)
}

func (e *S3StoreError) Unwrap() error {
	return e.Err
}

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
}

// S3StoreOptions configures the S3 store.
type S3StoreOptions struct {
	Bucket         string          // S3 bucket name
	Key            string          // Source object key
	OutputKey      string          // Destination key; generated under Prefix when empty
	Prefix         string          // Prefix for generated output and backup keys
	Region         string          // AWS region
	Profile        string          // AWS profile to use
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
	ContentType    string          // Content type of written objects
}

// S3StoreOption represents a configuration function for S3Store.
type S3StoreOption func(*S3StoreOptions)

func WithS3Bucket(bucket string) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.Bucket = bucket
	}
}

func WithS3Key(key string) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.Key = key
	}
}

func WithS3OutputKey(key string) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.OutputKey = key
	}
}

func WithS3Prefix(prefix string) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.Prefix = prefix
	}
}

func WithS3Region(region string) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.Region = region
	}
}

func WithS3Profile(profile string) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.Profile = profile
	}
}

func WithS3Credentials(creds aws.Credentials) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.Credentials = creds
	}
}

func WithS3Endpoint(endpoint string) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.EndpointURL = endpoint
	}
}

func WithS3PathStyle(pathStyle bool) S3StoreOption {
	return func(opts *S3StoreOptions) {
		opts.ForcePathStyle = pathStyle
	}
}

// S3Store reads and writes a table document stored as an S3 object.
type S3Store struct {
	client S3API
	opts   S3StoreOptions
	keys   PathGenerator
	logger *slog.Logger
}

// NewS3Store creates an S3 store using the default AWS credential chain.
func NewS3Store(ctx context.Context, options ...S3StoreOption) (*S3Store, error) {
	opts := applyS3Options(options)
	if err := validateS3Options(opts); err != nil {
		return nil, err
	}

	cfg, err := createAWSConfig(ctx, opts)
	if err != nil {
		return nil, &S3StoreError{Op: "create_aws_config", Err: err}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return newS3Store(client, opts), nil
}

// NewS3StoreWithClient creates an S3 store on top of an existing client.
func NewS3StoreWithClient(client S3API, options ...S3StoreOption) (*S3Store, error) {
	if client == nil {
		return nil, &S3StoreError{Op: "validate_options", Err: fmt.Errorf("client is required")}
	}
	opts := applyS3Options(options)
	if err := validateS3Options(opts); err != nil {
		return nil, err
	}
	return newS3Store(client, opts), nil
}

func newS3Store(client S3API, opts S3StoreOptions) *S3Store {
	return &S3Store{
		client: client,
		opts:   opts,
		keys:   UUIDKeys{Prefix: opts.Prefix},
		logger: slog.Default(),
	}
}

// WithKeyGenerator replaces the generator used for default output and backup keys.
func (s *S3Store) WithKeyGenerator(g PathGenerator) *S3Store {
	if g != nil {
		s.keys = g
	}
	return s
}

// WithLogger replaces the logger used for save and backup notices.
func (s *S3Store) WithLogger(logger *slog.Logger) *S3Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Read implements the Store interface.
func (s *S3Store) Read(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.opts.Key),
	})
	if err != nil {
		return nil, &core.IOError{Op: "read", Path: s.uri(s.opts.Key), Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &core.IOError{Op: "read", Path: s.uri(s.opts.Key), Err: err}
	}
	return data, nil
}

// Write implements the Store interface.
// Locations are reported as s3://bucket/key URIs.
func (s *S3Store) Write(ctx context.Context, content []byte) (Location, error) {
	outputKey := s.opts.OutputKey
	if outputKey == "" {
		outputKey = s.keys.Generate()
	}

	var loc Location
	if outputKey == s.opts.Key {
		s.logger.Info("output key is the source key, backing up the source first",
			"path", s.uri(s.opts.Key))
		backupKey := s.keys.Generate()
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.opts.Bucket),
			CopySource: aws.String(s.opts.Bucket + "/" + s.opts.Key),
			Key:        aws.String(backupKey),
		})
		if err != nil {
			return Location{}, &core.IOError{Op: "backup", Path: s.uri(backupKey), Err: err}
		}
		loc.BackupPath = s.uri(backupKey)
		s.logger.Info("backup saved", "source", s.uri(s.opts.Key), "backup", loc.BackupPath)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(outputKey),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(s.opts.ContentType),
	})
	if err != nil {
		return Location{}, &core.IOError{Op: "write", Path: s.uri(outputKey), Err: err}
	}

	loc.OutputPath = s.uri(outputKey)
	return loc, nil
}

func (s *S3Store) uri(key string) string {
	return "s3://" + s.opts.Bucket + "/" + key
}

func applyS3Options(options []S3StoreOption) S3StoreOptions {
	opts := S3StoreOptions{
		ContentType: "application/json",
	}
	for _, option := range options {
		option(&opts)
	}
	return opts
}

func validateS3Options(opts S3StoreOptions) error {
	if opts.Bucket == "" {
		return &S3StoreError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}
	if opts.Key == "" {
		return &S3StoreError{Op: "validate_options", Err: fmt.Errorf("key is required")}
	}
	return nil
}

// createAWSConfig creates AWS configuration from options
func createAWSConfig(ctx context.Context, opts S3StoreOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}

	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}

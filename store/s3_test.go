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
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/jsontable/core"
)

// mockS3 is an in-memory S3API for testing
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	copies  []string
	failPut bool
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", aws.ToString(in.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return nil, errors.New("access denied")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := aws.ToString(in.CopySource)
	data, ok := m.objects[src]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", src)
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = append([]byte(nil), data...)
	m.copies = append(m.copies, src)
	return &s3.CopyObjectOutput{}, nil
}

// TestS3Store_Options tests option validation
func TestS3Store_Options(t *testing.T) {
	_, err := NewS3StoreWithClient(newMockS3(), WithS3Key("rows.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")

	_, err = NewS3StoreWithClient(newMockS3(), WithS3Bucket("b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is required")

	_, err = NewS3StoreWithClient(nil, WithS3Bucket("b"), WithS3Key("k"))
	require.Error(t, err)

	s, err := NewS3StoreWithClient(newMockS3(),
		WithS3Bucket("b"), WithS3Key("k"), WithS3OutputKey("o"), WithS3Prefix("p"),
		WithS3Region("eu-west-1"), WithS3Endpoint("http://localhost:9000"), WithS3PathStyle(true))
	require.NoError(t, err)
	assert.Equal(t, "o", s.opts.OutputKey)
	assert.Equal(t, "application/json", s.opts.ContentType)
	assert.True(t, s.opts.ForcePathStyle)
}

// TestS3Store_ReadWrite tests reading the source object and writing a generated key
func TestS3Store_ReadWrite(t *testing.T) {
	client := newMockS3()
	client.objects["tables/rows.json"] = []byte(`[{"a":1}]`)

	s, err := NewS3StoreWithClient(client, WithS3Bucket("tables"), WithS3Key("rows.json"))
	require.NoError(t, err)
	s.WithKeyGenerator(PathGeneratorFunc(func() string { return "out/fixed.json" })).
		WithLogger(discardLogger())

	data, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `[{"a":1}]`, string(data))

	loc, err := s.Write(context.Background(), []byte(`[{"a":2}]`))
	require.NoError(t, err)
	assert.Equal(t, "s3://tables/out/fixed.json", loc.OutputPath)
	assert.Empty(t, loc.BackupPath)
	assert.Equal(t, `[{"a":2}]`, string(client.objects["tables/out/fixed.json"]))
	assert.Empty(t, client.copies)
}

// TestS3Store_WriteInPlaceBacksUp tests the copy taken before overwriting the source key
func TestS3Store_WriteInPlaceBacksUp(t *testing.T) {
	client := newMockS3()
	client.objects["tables/rows.json"] = []byte(`["original"]`)

	s, err := NewS3StoreWithClient(client,
		WithS3Bucket("tables"), WithS3Key("rows.json"), WithS3OutputKey("rows.json"))
	require.NoError(t, err)
	s.WithKeyGenerator(PathGeneratorFunc(func() string { return "backup/1.json" })).
		WithLogger(discardLogger())

	loc, err := s.Write(context.Background(), []byte(`["updated"]`))
	require.NoError(t, err)

	assert.Equal(t, "s3://tables/rows.json", loc.OutputPath)
	assert.Equal(t, "s3://tables/backup/1.json", loc.BackupPath)
	assert.Equal(t, []string{"tables/rows.json"}, client.copies)
	assert.Equal(t, `["original"]`, string(client.objects["tables/backup/1.json"]))
	assert.Equal(t, `["updated"]`, string(client.objects["tables/rows.json"]))
}

// TestS3Store_Errors tests I/O failures
func TestS3Store_Errors(t *testing.T) {
	client := newMockS3()
	s, err := NewS3StoreWithClient(client, WithS3Bucket("tables"), WithS3Key("missing.json"))
	require.NoError(t, err)
	s.WithLogger(discardLogger())

	_, err = s.Read(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrIO))

	client.failPut = true
	_, err = s.Write(context.Background(), []byte(`[]`))
	require.Error(t, err)

	var ioErr *core.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "write", ioErr.Op)
}

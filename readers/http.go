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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/aaronlmathis/jsontable/core"
)

// HTTPReaderError provides structured error information for HTTP reader operations
type HTTPReaderError struct {
	Op         string // Operation that failed (e.g., "request", "auth", "parse")
	StatusCode int    // HTTP status code if applicable
	URL        string // URL being accessed when error occurred
	Err        error  // Underlying error
}

func (e *HTTPReaderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("http reader %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("http reader %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPReaderError) Unwrap() error {
	return e.Err
}

// HTTPReaderStats holds statistics about the HTTP reader's performance
type HTTPReaderStats struct {
	RequestCount    int64            // Total HTTP requests made
	RecordsRead     int64            // Total records read
	BytesRead       int64            // Total bytes read
	ReadDuration    time.Duration    // Total time spent reading
	LastReadTime    time.Time        // Time of last read
	RetryCount      int64            // Number of retries performed
	NullValueCounts map[string]int64 // Count of null values per field
}

// AuthConfig holds authentication settings for HTTP requests
type AuthConfig struct {
	Type       string // "bearer", "basic" or "apikey"
	Token      string // Bearer token or API key
	Username   string // For basic auth
	Password   string // For basic auth
	HeaderName string // Header carrying the API key
}

// PaginationConfig defines how follow-up pages are requested
type PaginationConfig struct {
	Type         string // "page", "offset", "cursor" or "none"
	LimitParam   string // Parameter name for page size
	OffsetParam  string // Parameter name for offset
	PageParam    string // Parameter name for page number
	CursorParam  string // Parameter name for cursor
	PageSize     int    // Number of records per page
	MaxPages     int    // Maximum pages to fetch (0 = unlimited)
	CursorField  string // Dotted path of the next cursor in the response
	HasMoreField string // Dotted path of a boolean "more data" flag
}

// HTTPReaderOptions configures the HTTP reader
type HTTPReaderOptions struct {
	Method           string            // HTTP method (default: GET)
	Headers          map[string]string // Additional headers
	QueryParams      map[string]string // Query parameters
	Auth             *AuthConfig       // Authentication configuration
	Pagination       *PaginationConfig // Pagination configuration
	Timeout          time.Duration     // Request timeout
	RetryAttempts    int               // Number of retry attempts
	RetryDelay       time.Duration     // Base delay between retries
	ResponseFormat   string            // "json", "jsonl" or "csv"
	DataPath         string            // Dotted path of the row array in a JSON response
	MaxResponseSize  int64             // Maximum response size in bytes
	ValidStatusCodes []int             // Accepted HTTP status codes
	UserAgent        string            // User agent string
	CustomClient     *http.Client      // Custom HTTP client
}

// ReaderOptionHTTP represents a configuration function for HTTPReader
type ReaderOptionHTTP func(*HTTPReaderOptions)

// WithHTTPMethod sets the request method
func WithHTTPMethod(method string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Method = method
	}
}

// WithHTTPHeaders adds request headers
func WithHTTPHeaders(headers map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

// WithHTTPQueryParams adds query parameters to every request
func WithHTTPQueryParams(params map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		for k, v := range params {
			opts.QueryParams[k] = v
		}
	}
}

func WithHTTPBearerToken(token string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "bearer", Token: token}
	}
}

func WithHTTPBasicAuth(username, password string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "basic", Username: username, Password: password}
	}
}

func WithHTTPAPIKey(headerName, apiKey string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "apikey", HeaderName: headerName, Token: apiKey}
	}
}

// WithHTTPPagination enables fetching of follow-up pages
func WithHTTPPagination(pagination *PaginationConfig) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Pagination = pagination
	}
}

func WithHTTPTimeout(timeout time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Timeout = timeout
	}
}

// WithHTTPRetries sets the retry count and the base backoff delay
func WithHTTPRetries(attempts int, delay time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.RetryAttempts = attempts
		opts.RetryDelay = delay
	}
}

// WithHTTPResponseFormat selects "json", "jsonl" or "csv" decoding
func WithHTTPResponseFormat(format string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.ResponseFormat = format
	}
}

// WithHTTPDataPath sets the dotted path of the row array, e.g. "data.items"
func WithHTTPDataPath(path string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.DataPath = path
	}
}

func WithHTTPClient(client *http.Client) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.CustomClient = client
	}
}

// HTTPReader implements core.DataSource for JSON, JSON lines and CSV APIs.
// Rows keep the field order of the response.
type HTTPReader struct {
	baseURL      string
	client       *http.Client
	opts         *HTTPReaderOptions
	stats        HTTPReaderStats
	currentData  []core.Record
	currentIndex int
	hasMoreData  bool
	nextCursor   string
	currentPage  int
}

// NewHTTPReader creates a new HTTP API reader with configurable options
func NewHTTPReader(rawURL string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	opts := &HTTPReaderOptions{
		Method:           http.MethodGet,
		Headers:          make(map[string]string),
		QueryParams:      make(map[string]string),
		Timeout:          30 * time.Second,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
		ResponseFormat:   "json",
		MaxResponseSize:  100 * 1024 * 1024, // 100MB
		ValidStatusCodes: []int{200, 201, 202},
		UserAgent:        "jsontable-http-reader/1.0",
	}

	for _, option := range options {
		option(opts)
	}

	if _, err := url.Parse(rawURL); err != nil {
		return nil, &HTTPReaderError{Op: "validate_options", URL: rawURL, Err: err}
	}
	switch opts.ResponseFormat {
	case "json", "jsonl", "csv":
	default:
		return nil, &HTTPReaderError{Op: "validate_options", URL: rawURL,
			Err: fmt.Errorf("unsupported response format: %s", opts.ResponseFormat)}
	}

	client := opts.CustomClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPReader{
		baseURL:     rawURL,
		client:      client,
		opts:        opts,
		stats:       HTTPReaderStats{NullValueCounts: make(map[string]int64)},
		hasMoreData: true,
		currentPage: 1,
	}, nil
}

// Read implements the core.DataSource interface
func (hr *HTTPReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		hr.stats.ReadDuration += time.Since(start)
		hr.stats.LastReadTime = time.Now()
	}()

	if err := ctx.Err(); err != nil {
		return core.Record{}, &HTTPReaderError{Op: "read", URL: hr.baseURL, Err: err}
	}

	// Empty pages are skipped as long as the server reports more data
	for hr.currentIndex >= len(hr.currentData) {
		if !hr.hasMoreData {
			return core.Record{}, io.EOF
		}
		if err := hr.loadNextBatch(ctx); err != nil {
			return core.Record{}, err
		}
		hr.currentIndex = 0
	}

	record := hr.currentData[hr.currentIndex]
	hr.currentIndex++
	hr.stats.RecordsRead++

	record.Each(func(key string, val interface{}) bool {
		if val == nil {
			hr.stats.NullValueCounts[key]++
		}
		return true
	})

	return record, nil
}

// Close implements the core.DataSource interface
func (hr *HTTPReader) Close() error {
	return nil
}

// Stats returns HTTP reader performance statistics
func (hr *HTTPReader) Stats() HTTPReaderStats {
	stats := hr.stats
	stats.NullValueCounts = make(map[string]int64, len(hr.stats.NullValueCounts))
	for k, v := range hr.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

// loadNextBatch fetches and decodes the next page
func (hr *HTTPReader) loadNextBatch(ctx context.Context) error {
	requestURL, err := hr.requestURL()
	if err != nil {
		return &HTTPReaderError{Op: "build_url", URL: hr.baseURL, Err: err}
	}

	data, err := hr.executeRequestWithRetry(ctx, requestURL)
	if err != nil {
		return err
	}
	hr.stats.RequestCount++

	records, err := hr.parseResponse(ctx, data)
	if err != nil {
		return &HTTPReaderError{Op: "parse", URL: requestURL, Err: err}
	}
	hr.currentData = records

	hr.updatePaginationState(data)
	return nil
}

// requestURL builds the URL for the current page
func (hr *HTTPReader) requestURL() (string, error) {
	u, err := url.Parse(hr.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range hr.opts.QueryParams {
		q.Set(k, v)
	}

	if pg := hr.opts.Pagination; pg != nil {
		if pg.LimitParam != "" && pg.PageSize > 0 {
			q.Set(pg.LimitParam, strconv.Itoa(pg.PageSize))
		}
		switch pg.Type {
		case "offset":
			if pg.OffsetParam != "" {
				q.Set(pg.OffsetParam, strconv.Itoa((hr.currentPage-1)*pg.PageSize))
			}
		case "page":
			if pg.PageParam != "" {
				q.Set(pg.PageParam, strconv.Itoa(hr.currentPage))
			}
		case "cursor":
			if pg.CursorParam != "" && hr.nextCursor != "" {
				q.Set(pg.CursorParam, hr.nextCursor)
			}
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// executeRequestWithRetry retries throttled and server-side failures with exponential backoff
func (hr *HTTPReader) executeRequestWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= hr.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := hr.opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &HTTPReaderError{Op: "retry", URL: requestURL, Err: ctx.Err()}
			}
			hr.stats.RetryCount++
		}

		data, err := hr.executeRequest(ctx, requestURL)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var httpErr *HTTPReaderError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500) {
			continue
		}
		break
	}

	return nil, lastErr
}

// executeRequest executes a single HTTP request
func (hr *HTTPReader) executeRequest(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, hr.opts.Method, requestURL, nil)
	if err != nil {
		return nil, &HTTPReaderError{Op: "create_request", URL: requestURL, Err: err}
	}

	req.Header.Set("User-Agent", hr.opts.UserAgent)
	for k, v := range hr.opts.Headers {
		req.Header.Set(k, v)
	}
	if err := hr.addAuthentication(req); err != nil {
		return nil, &HTTPReaderError{Op: "auth", URL: requestURL, Err: err}
	}

	resp, err := hr.client.Do(req)
	if err != nil {
		return nil, &HTTPReaderError{Op: "request", URL: requestURL, Err: err}
	}
	defer resp.Body.Close()

	if !hr.isValidStatusCode(resp.StatusCode) {
		return nil, &HTTPReaderError{
			Op:         "status_check",
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, hr.opts.MaxResponseSize))
	if err != nil {
		return nil, &HTTPReaderError{Op: "read_response", URL: requestURL, Err: err}
	}

	hr.stats.BytesRead += int64(len(data))
	return data, nil
}

func (hr *HTTPReader) addAuthentication(req *http.Request) error {
	auth := hr.opts.Auth
	if auth == nil {
		return nil
	}

	switch auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
	case "apikey":
		req.Header.Set(auth.HeaderName, auth.Token)
	default:
		return fmt.Errorf("unsupported auth type: %s", auth.Type)
	}
	return nil
}

// parseResponse decodes a response body according to the configured format
func (hr *HTTPReader) parseResponse(ctx context.Context, data []byte) ([]core.Record, error) {
	switch hr.opts.ResponseFormat {
	case "jsonl":
		return drain(ctx, NewJSONReader(io.NopCloser(bytes.NewReader(data))))
	case "csv":
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		src, err := NewCSVReader(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, err
		}
		return drain(ctx, src)
	default:
		return hr.parseJSONResponse(data)
	}
}

// parseJSONResponse accepts an array of objects or a single object, optionally nested under DataPath
func (hr *HTTPReader) parseJSONResponse(data []byte) ([]core.Record, error) {
	if hr.opts.DataPath != "" {
		value, _, _, err := jsonparser.Get(data, splitPath(hr.opts.DataPath)...)
		if err != nil {
			return nil, fmt.Errorf("data path %q: %w", hr.opts.DataPath, err)
		}
		data = value
	}

	decoded, err := core.DecodeJSON(data)
	if err != nil {
		return nil, err
	}

	switch v := decoded.(type) {
	case []interface{}:
		records := make([]core.Record, 0, len(v))
		for i, item := range v {
			record, ok := item.(core.Record)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not an object", i, item)
			}
			records = append(records, record)
		}
		return records, nil
	case core.Record:
		return []core.Record{v}, nil
	default:
		return nil, fmt.Errorf("unexpected response shape: %T", decoded)
	}
}

// updatePaginationState decides whether another page should be requested
func (hr *HTTPReader) updatePaginationState(data []byte) {
	pg := hr.opts.Pagination
	if pg == nil || pg.Type == "none" {
		hr.hasMoreData = false
		return
	}

	if pg.MaxPages > 0 && hr.currentPage >= pg.MaxPages {
		hr.hasMoreData = false
		return
	}
	hr.currentPage++

	switch pg.Type {
	case "cursor":
		cursor, err := jsonparser.GetString(data, splitPath(pg.CursorField)...)
		hr.nextCursor = cursor
		hr.hasMoreData = err == nil && cursor != ""
	case "offset", "page":
		if pg.HasMoreField != "" {
			more, err := jsonparser.GetBoolean(data, splitPath(pg.HasMoreField)...)
			hr.hasMoreData = err == nil && more
		} else {
			hr.hasMoreData = pg.PageSize > 0 && len(hr.currentData) >= pg.PageSize
		}
	default:
		hr.hasMoreData = false
	}
}

func (hr *HTTPReader) isValidStatusCode(statusCode int) bool {
	for _, validCode := range hr.opts.ValidStatusCodes {
		if statusCode == validCode {
			return true
		}
	}
	return false
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func drain(ctx context.Context, src core.DataSource) ([]core.Record, error) {
	defer src.Close()
	var records []core.Record
	for {
		record, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
}

// NewPaginatedHTTPReader creates an HTTP reader using limit/page query parameters
func NewPaginatedHTTPReader(rawURL string, pageSize int, paginationType string) (*HTTPReader, error) {
	return NewHTTPReader(rawURL, WithHTTPPagination(&PaginationConfig{
		Type:        paginationType,
		PageSize:    pageSize,
		LimitParam:  "limit",
		OffsetParam: "offset",
		PageParam:   "page",
	}))
}

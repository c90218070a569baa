package readers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/jsontable/core"
)

// Package readers provides core.DataSource implementations used to import rows into a JSONTable collection.
//
// This file implements a Parquet reader on top of Arrow record batches. Columns keep their
// schema order in the produced records.

// ParquetReaderError wraps Parquet read errors with the failing operation.
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "read", "load_batch", "open_file", "schema")
	Err error  // Underlying error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReader implements core.DataSource for Parquet files.
type ParquetReader struct {
	fileHandle      *os.File
	recordReader    pqarrow.RecordReader
	currentBatch    arrow.Record
	currentBatchIdx int
	schema          *arrow.Schema
	stats           ReaderStats
	opts            *ParquetReaderOptions
}

// ReaderStats holds statistics about the Parquet reader's performance
type ReaderStats struct {
	RecordsRead     int64
	BatchesRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// ParquetReaderOptions configures the Parquet reader
type ParquetReaderOptions struct {
	BatchSize int64    // Rows per Arrow batch
	Columns   []string // Optional column projection, in output order
}

// ReaderOption represents a configuration function
type ReaderOption func(*ParquetReaderOptions)

// WithBatchSize sets the number of rows decoded per batch.
func WithBatchSize(size int64) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.BatchSize = size
	}
}

// WithColumnProjection restricts the reader to the named columns.
func WithColumnProjection(columns ...string) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.Columns = append([]string(nil), columns...)
	}
}

// NewParquetReader opens a Parquet file and prepares an Arrow RecordReader
func NewParquetReader(filename string, options ...ReaderOption) (*ParquetReader, error) {
	opts := (&ParquetReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open_file", Err: err}
	}

	parquetReader, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return nil, &ParquetReaderError{Op: "create_reader", Err: err}
	}

	arrowReader, err := pqarrow.NewFileReader(parquetReader,
		pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		f.Close()
		return nil, &ParquetReaderError{Op: "create_arrow_reader", Err: err}
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		f.Close()
		return nil, &ParquetReaderError{Op: "get_schema", Err: err}
	}

	var colIndices []int
	for _, name := range opts.Columns {
		indices := schema.FieldIndices(name)
		if len(indices) == 0 {
			f.Close()
			return nil, &ParquetReaderError{Op: "column_projection", Err: fmt.Errorf("column %q not found in schema", name)}
		}
		colIndices = append(colIndices, indices[0])
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), colIndices, nil)
	if err != nil {
		f.Close()
		return nil, &ParquetReaderError{Op: "create_record_reader", Err: err}
	}

	return &ParquetReader{
		fileHandle:   f,
		recordReader: recordReader,
		schema:       recordReader.Schema(),
		stats:        ReaderStats{NullValueCounts: make(map[string]int64)},
		opts:         opts,
	}, nil
}

// Read returns the next row as a record, or io.EOF.
func (p *ParquetReader) Read(ctx context.Context) (core.Record, error) {
	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	if err := ctx.Err(); err != nil {
		return core.Record{}, &ParquetReaderError{Op: "read", Err: err}
	}

	for p.currentBatch == nil || p.currentBatchIdx >= int(p.currentBatch.NumRows()) {
		if err := p.loadNextBatch(); err != nil {
			if errors.Is(err, io.EOF) {
				return core.Record{}, io.EOF
			}
			return core.Record{}, &ParquetReaderError{Op: "load_batch", Err: err}
		}
	}

	result := p.extractRecordFromBatch(p.currentBatch, p.currentBatchIdx)
	p.currentBatchIdx++
	p.stats.RecordsRead++
	return result, nil
}

// Close releases resources and closes the underlying file
func (p *ParquetReader) Close() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.fileHandle != nil {
		err := p.fileHandle.Close()
		p.fileHandle = nil
		return err
	}
	return nil
}

// Schema returns the Arrow schema of the rows produced.
func (p *ParquetReader) Schema() *arrow.Schema {
	return p.schema
}

// Stats returns statistics about the Parquet reader's performance
func (p *ParquetReader) Stats() ReaderStats {
	return p.stats
}

func (opts *ParquetReaderOptions) withDefaults() *ParquetReaderOptions {
	result := &ParquetReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	return result
}

// loadNextBatch swaps in the next Arrow batch. The reader owns returned batches,
// so each one is retained while rows are extracted from it.
func (p *ParquetReader) loadNextBatch() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}

	rec, err := p.recordReader.Read()
	if err != nil {
		return err
	}
	if rec == nil {
		return io.EOF
	}

	rec.Retain()
	p.currentBatch = rec
	p.currentBatchIdx = 0
	p.stats.BatchesRead++
	return nil
}

// extractRecordFromBatch builds a record from one row of a batch, in schema order
func (p *ParquetReader) extractRecordFromBatch(batch arrow.Record, pos int) core.Record {
	res := core.NewRecord()
	sch := batch.Schema()
	for i := 0; i < int(batch.NumCols()); i++ {
		name := sch.Field(i).Name
		res.Set(name, p.extractValueFromColumn(batch.Column(i), pos, name))
	}
	return res
}

// extractValueFromColumn maps an Arrow cell onto a JSON value. Integers become
// json.Number; timestamps and dates become RFC 3339 strings.
func (p *ParquetReader) extractValueFromColumn(col arrow.Array, rowIdx int, fieldName string) interface{} {
	if col.IsNull(rowIdx) {
		p.stats.NullValueCounts[fieldName]++
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(rowIdx)
	case *array.Int8:
		return intNumber(int64(arr.Value(rowIdx)))
	case *array.Int16:
		return intNumber(int64(arr.Value(rowIdx)))
	case *array.Int32:
		return intNumber(int64(arr.Value(rowIdx)))
	case *array.Int64:
		return intNumber(arr.Value(rowIdx))
	case *array.Uint8:
		return intNumber(int64(arr.Value(rowIdx)))
	case *array.Uint16:
		return intNumber(int64(arr.Value(rowIdx)))
	case *array.Uint32:
		return intNumber(int64(arr.Value(rowIdx)))
	case *array.Uint64:
		return json.Number(strconv.FormatUint(arr.Value(rowIdx), 10))
	case *array.Float32:
		return float64(arr.Value(rowIdx))
	case *array.Float64:
		return arr.Value(rowIdx)
	case *array.String:
		return arr.Value(rowIdx)
	case *array.Binary:
		return base64.StdEncoding.EncodeToString(arr.Value(rowIdx))
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(rowIdx).ToTime(unit).UTC().Format(time.RFC3339Nano)
	case *array.Date32:
		return arr.Value(rowIdx).ToTime().Format("2006-01-02")
	case *array.Date64:
		return arr.Value(rowIdx).ToTime().Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(rowIdx))
	}
}

func intNumber(v int64) json.Number {
	return json.Number(strconv.FormatInt(v, 10))
}

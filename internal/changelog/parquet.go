package changelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

var parquetSchema = arrow.NewSchema([]arrow.Field{
	{Name: "cycle", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "kind", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "action", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "before_index", Type: arrow.PrimitiveTypes.Uint32, Nullable: true},
	{Name: "before", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "after_index", Type: arrow.PrimitiveTypes.Uint32, Nullable: true},
	{Name: "after", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// ParquetSink writes entries to a Parquet file, one row per entry.
// Versions are stored as JSON strings next to their index.
type ParquetSink struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

// NewParquetSink creates a new Parquet change log at path.
func NewParquetSink(path string, batchSize int) (*ParquetSink, error) {
	if batchSize <= 0 {
		batchSize = 10000
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(parquetSchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &ParquetSink{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, parquetSchema),
		batchSize: batchSize,
	}, nil
}

func (s *ParquetSink) appendVersion(col int, v *Version) error {
	idx := s.builder.Field(col).(*array.Uint32Builder)
	body := s.builder.Field(col + 1).(*array.StringBuilder)
	if v == nil {
		idx.AppendNull()
		body.AppendNull()
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	idx.Append(uint32(v.Index))
	body.Append(string(b))
	return nil
}

func (s *ParquetSink) Write(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.builder.Field(0).(*array.StringBuilder).Append(e.Cycle)
		s.builder.Field(1).(*array.StringBuilder).Append(e.Kind.String())
		s.builder.Field(2).(*array.Int64Builder).Append(int64(e.ID))
		s.builder.Field(3).(*array.StringBuilder).Append(string(e.Action))
		if err := s.appendVersion(4, e.Before); err != nil {
			return fmt.Errorf("failed to encode %s/%d before: %w", e.Kind, e.ID, err)
		}
		if err := s.appendVersion(6, e.After); err != nil {
			return fmt.Errorf("failed to encode %s/%d after: %w", e.Kind, e.ID, err)
		}

		s.count++
		if s.count >= s.batchSize {
			if err := s.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ParquetSink) flush() error {
	if s.count == 0 {
		return nil
	}
	rec := s.builder.NewRecord()
	defer rec.Release()
	err := s.writer.Write(rec)
	s.count = 0
	return err
}

// Close flushes pending rows and closes the file.
func (s *ParquetSink) Close() error {
	if err := s.flush(); err != nil {
		return err
	}
	if err := s.writer.Close(); err != nil {
		s.file.Close()
		return err
	}
	// The writer may already have closed the file.
	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

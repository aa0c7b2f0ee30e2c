package changelog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// JSONSink appends entries as JSON lines to a file.
type JSONSink struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewJSONSink opens path for appending.
func NewJSONSink(path string) (*JSONSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open change log: %w", err)
	}
	buf := bufio.NewWriterSize(f, 1<<20)
	return &JSONSink{file: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (s *JSONSink) Write(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.enc.Encode(e); err != nil {
			return fmt.Errorf("failed to encode change log entry %s/%d: %w", e.Kind, e.ID, err)
		}
	}
	return s.buf.Flush()
}

func (s *JSONSink) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

package format

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LineReader reads newline-terminated records. The trailing newline counts
// toward Index but is stripped from the record value.
type LineReader struct {
	file   *os.File
	reader *bufio.Reader
	index  int64
	lineNo int
}

// OpenLineReader opens path for line-format reading.
func OpenLineReader(path string) (*LineReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open line file: %w", err)
	}
	return &LineReader{file: file, reader: bufio.NewReader(file)}, nil
}

// Read returns the next line as a record, io.EOF at end of file.
func (r *LineReader) Read() (*Record, error) {
	line, err := r.reader.ReadString('\n')
	if len(line) == 0 {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line: %w", err)
		}
	}
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read line: %w", err)
	}
	r.index += int64(len(line))
	r.lineNo++
	return &Record{
		Key:   strconv.Itoa(r.lineNo),
		Value: strings.TrimSuffix(line, "\n"),
	}, nil
}

// Index reports bytes consumed from the file so far.
func (r *LineReader) Index() int64 { return r.index }

// Close closes the underlying file.
func (r *LineReader) Close() error { return r.file.Close() }

// LineWriter writes records as newline-terminated values, keys are dropped.
type LineWriter struct {
	file   *os.File
	writer *bufio.Writer
	index  int64
}

// CreateLineWriter creates (truncating) path for line-format writing.
func CreateLineWriter(path string) (*LineWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create line file: %w", err)
	}
	return &LineWriter{file: file, writer: bufio.NewWriter(file)}, nil
}

// Write appends one record.
func (w *LineWriter) Write(rec *Record) error {
	n, err := w.writer.WriteString(rec.Value + "\n")
	w.index += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	return nil
}

// Index reports bytes written so far.
func (w *LineWriter) Index() int64 { return w.index }

// Close flushes and closes the underlying file.
func (w *LineWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush line file: %w", err)
	}
	return w.file.Close()
}

package format

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// KVReader reads key<TAB>value records, one per line.
type KVReader struct {
	file   *os.File
	reader *bufio.Reader
	index  int64
}

// OpenKVReader opens path for kv-format reading.
func OpenKVReader(path string) (*KVReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv file: %w", err)
	}
	return &KVReader{file: file, reader: bufio.NewReader(file)}, nil
}

// Read returns the next record, io.EOF at end of file. Lines without a tab
// become records with an empty value.
func (r *KVReader) Read() (*Record, error) {
	line, err := r.reader.ReadString('\n')
	if len(line) == 0 {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read kv line: %w", err)
		}
	}
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read kv line: %w", err)
	}
	r.index += int64(len(line))
	line = strings.TrimSuffix(line, "\n")
	key, value, _ := strings.Cut(line, "\t")
	return &Record{Key: key, Value: value}, nil
}

// Index reports bytes consumed from the file so far.
func (r *KVReader) Index() int64 { return r.index }

// Close closes the underlying file.
func (r *KVReader) Close() error { return r.file.Close() }

// KVWriter writes key<TAB>value records, one per line.
type KVWriter struct {
	file   *os.File
	writer *bufio.Writer
	index  int64
}

// CreateKVWriter creates (truncating) path for kv-format writing.
func CreateKVWriter(path string) (*KVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create kv file: %w", err)
	}
	return &KVWriter{file: file, writer: bufio.NewWriter(file)}, nil
}

// Write appends one record.
func (w *KVWriter) Write(rec *Record) error {
	n, err := w.writer.WriteString(rec.Key + "\t" + rec.Value + "\n")
	w.index += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write kv line: %w", err)
	}
	return nil
}

// Index reports bytes written so far.
func (w *KVWriter) Index() int64 { return w.index }

// Close flushes and closes the underlying file.
func (w *KVWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush kv file: %w", err)
	}
	return w.file.Close()
}

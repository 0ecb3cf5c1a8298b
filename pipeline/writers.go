package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/isbn-finder/models"
)

// ResultColumns is the CSV header used for exports.
var ResultColumns = []string{"isbn", "site", "title", "author", "publisher", "price", "url", "status", "error_message"}

// resultRow lays rec out in ResultColumns order.
func resultRow(rec models.SearchResultRecord) []string {
	return []string{
		rec.ISBN,
		rec.Site,
		rec.Title,
		rec.Author,
		rec.Publisher,
		rec.Price,
		rec.URL,
		string(rec.Status),
		rec.ErrorMessage,
	}
}

// CSVWriter writes result records to CSV.
type CSVWriter struct {
	file   *os.File
	out    io.Writer
	writer *csv.Writer
	rows   int
	mu     sync.Mutex
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	cw, err := NewCSVStreamWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.file = f
	return cw, nil
}

// NewCSVStreamWriter writes CSV to w, e.g. an HTTP response. Close does not close w.
func NewCSVStreamWriter(w io.Writer) (*CSVWriter, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(ResultColumns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &CSVWriter{out: w, writer: writer}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []models.SearchResultRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, rec := range records {
		if err := cw.writer.Write(resultRow(rec)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle, if any.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	if cw.file != nil {
		return cw.file.Close()
	}
	return nil
}

// Validate ensures at least one record was written.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.rows == 0 {
		return fmt.Errorf("csv output has no records")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	rows    int
	mu      sync.Mutex
}

// NewJSONWriter creates filename for JSON lines output.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	jw := NewJSONStreamWriter(f)
	jw.file = f
	return jw, nil
}

// NewJSONStreamWriter writes JSON lines to w. Close does not close w.
func NewJSONStreamWriter(w io.Writer) *JSONWriter {
	buffer := bufio.NewWriter(w)
	return &JSONWriter{
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []models.SearchResultRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, rec := range records {
		if err := jw.encoder.Encode(rec); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		jw.rows++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file, if any.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	if jw.file != nil {
		return jw.file.Close()
	}
	return nil
}

// Validate ensures at least one record was written.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.rows == 0 {
		return fmt.Errorf("json output has no records")
	}
	return nil
}

// NewFileWriter opens the writer for format ("csv", "json", "xlsx" or "dual") at filename.
// Dual output writes the JSON lines next to the CSV file with a .jsonl extension.
func NewFileWriter(format, filename string) (ResultWriter, error) {
	switch format {
	case "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONWriter(filename)
	case "xlsx":
		return NewXLSXWriter(filename)
	case "dual":
		ext := filepath.Ext(filename)
		return NewDualWriter(filename, filename[:len(filename)-len(ext)]+".jsonl")
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
